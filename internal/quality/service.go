package quality

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/obs"
)

var (
	// ErrReceptionNotFound is returned when the target reception does not exist.
	ErrReceptionNotFound = errors.New("reception not found")
	// ErrReadingExists is returned when a reception already has a quality reading.
	ErrReadingExists = errors.New("quality reading already exists for reception")
	// ErrReadingNotFound is returned when an update targets a reception without a reading.
	ErrReadingNotFound = errors.New("quality reading not found")
)

// SubtypeCacaoVerde marks receptions whose lab-sample weight adjustment applies.
const SubtypeCacaoVerde = "cacao-verde"

// TaskReceptionRecompute is the queue task kind for background recomputes.
const TaskReceptionRecompute = "reception-recompute"

// RecomputeTaskPayload is the JSON payload of a TaskReceptionRecompute task.
type RecomputeTaskPayload struct {
	ReceptionID uuid.UUID `json:"reception_id"`
}

// ReceptionWeights is the slice of the reception row the orchestrator needs.
type ReceptionWeights struct {
	ID                   uuid.UUID
	FruitTypeID          uuid.UUID
	Subtype              string
	OriginalWeight       decimal.Decimal
	LabSampleWetWeight   decimal.Decimal
	LabSampleDriedWeight decimal.Decimal
	HasPricing           bool
}

// MetricValues is the write model for a quality reading. Nil pointers mean
// the metric was not evaluated.
type MetricValues struct {
	Violetas *decimal.Decimal
	Humedad  *decimal.Decimal
	Moho     *decimal.Decimal
}

// ReadingRecord mirrors a persisted quality reading.
type ReadingRecord struct {
	ID          uuid.UUID
	ReceptionID uuid.UUID
	Values      MetricValues
	RecordedBy  string
}

// Readings converts the stored metric values into engine inputs.
func (r ReadingRecord) Readings() []Reading {
	out := make([]Reading, 0, len(EvaluationOrder))
	add := func(metric Metric, v *decimal.Decimal) {
		if v == nil {
			out = append(out, Reading{Metric: metric, Valid: false})
			return
		}
		out = append(out, Reading{Metric: metric, Value: *v, Valid: !v.IsNegative()})
	}
	add(MetricVioletas, r.Values.Violetas)
	add(MetricHumedad, r.Values.Humedad)
	add(MetricMoho, r.Values.Moho)
	return out
}

// Querier captures the database methods required by the quality service.
type Querier interface {
	GetReceptionWeights(ctx context.Context, receptionID uuid.UUID) (ReceptionWeights, error)
	GetReadingByReception(ctx context.Context, receptionID uuid.UUID) (ReadingRecord, error)
	InsertReading(ctx context.Context, receptionID uuid.UUID, recordedBy string, values MetricValues) (ReadingRecord, error)
	UpdateReading(ctx context.Context, receptionID uuid.UUID, values MetricValues) (ReadingRecord, error)
	DeleteLineItems(ctx context.Context, receptionID uuid.UUID) error
	InsertLineItems(ctx context.Context, receptionID uuid.UUID, items []LineItem) error
	UpdateReceptionWeights(ctx context.Context, receptionID uuid.UUID, totalDiscount, finalWeight decimal.Decimal) error
	WithTx(tx pgx.Tx) Querier
}

// ThresholdSource yields the enabled thresholds for a fruit type.
type ThresholdSource interface {
	EnabledThresholds(ctx context.Context, fruitTypeID uuid.UUID) ([]Threshold, error)
}

// Pricer recomputes the monetary calculation for a reception after its
// weights changed. With onlyIfPriced the recompute is limited to receptions
// that already carry a pricing calculation.
type Pricer interface {
	Recalculate(ctx context.Context, receptionID uuid.UUID, onlyIfPriced bool) error
}

// TxStarter begins database transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ TxStarter = (*pgxpool.Pool)(nil)

// Service orchestrates quality readings, discount recomputation and the
// downstream pricing refresh for receptions.
type Service struct {
	Q          Querier
	Pool       TxStarter
	Thresholds ThresholdSource
	Pricer     Pricer
	Logger     zerolog.Logger
}

// RecomputeOutcome reports the state of a reception after a recompute.
type RecomputeOutcome struct {
	Reading  ReadingRecord
	Discount DiscountResult
	// FinalWeight is the stored reception weight including the lab-sample
	// adjustment, which the raw engine result does not carry.
	FinalWeight decimal.Decimal
}

// CreateReading records the first quality reading for a reception and runs
// the initial discount computation. A second create for the same reception
// fails with ErrReadingExists.
func (s *Service) CreateReading(ctx context.Context, receptionID uuid.UUID, recordedBy string, values MetricValues) (RecomputeOutcome, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return RecomputeOutcome{}, errors.New("quality service not configured")
	}
	weights, err := s.Q.GetReceptionWeights(ctx, receptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecomputeOutcome{}, ErrReceptionNotFound
		}
		return RecomputeOutcome{}, err
	}
	if _, err := s.Q.GetReadingByReception(ctx, receptionID); err == nil {
		return RecomputeOutcome{}, ErrReadingExists
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return RecomputeOutcome{}, err
	}

	outcome, err := s.persistRecompute(ctx, weights, func(ctx context.Context, q Querier) (ReadingRecord, error) {
		return q.InsertReading(ctx, receptionID, recordedBy, values)
	})
	if err != nil {
		// The exists-check above does not lock the row, so a concurrent
		// create can still trip the unique constraint on the insert.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return RecomputeOutcome{}, ErrReadingExists
		}
		s.countRecompute("create", "error")
		return RecomputeOutcome{}, err
	}
	s.countRecompute("create", "ok")

	// Pricing at creation time is best effort: a missing daily price is a
	// normal outcome, and a transient pricing failure must not undo the
	// recorded reading.
	if s.Pricer != nil {
		if err := s.Pricer.Recalculate(ctx, receptionID, false); err != nil {
			s.Logger.Warn().Err(err).Str("reception_id", receptionID.String()).Msg("pricing recompute after reading create")
		}
	}
	return outcome, nil
}

// UpdateReading replaces the metric values of an existing reading and re-runs
// the discount and pricing computation. Updating a reception without a
// reading fails with ErrReadingNotFound.
func (s *Service) UpdateReading(ctx context.Context, receptionID uuid.UUID, values MetricValues) (RecomputeOutcome, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return RecomputeOutcome{}, errors.New("quality service not configured")
	}
	weights, err := s.Q.GetReceptionWeights(ctx, receptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecomputeOutcome{}, ErrReceptionNotFound
		}
		return RecomputeOutcome{}, err
	}
	if _, err := s.Q.GetReadingByReception(ctx, receptionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecomputeOutcome{}, ErrReadingNotFound
		}
		return RecomputeOutcome{}, err
	}

	outcome, err := s.persistRecompute(ctx, weights, func(ctx context.Context, q Querier) (ReadingRecord, error) {
		return q.UpdateReading(ctx, receptionID, values)
	})
	if err != nil {
		s.countRecompute("update", "error")
		return RecomputeOutcome{}, err
	}
	s.countRecompute("update", "ok")

	if s.Pricer != nil {
		if err := s.Pricer.Recalculate(ctx, receptionID, true); err != nil {
			s.Logger.Warn().Err(err).Str("reception_id", receptionID.String()).Msg("pricing recompute after reading update")
		}
	}
	return outcome, nil
}

// Recompute re-derives discounts and pricing from the currently stored
// reading and thresholds. Receptions without a reading are left untouched.
// Used by the background worker after threshold or price changes.
func (s *Service) Recompute(ctx context.Context, receptionID uuid.UUID) error {
	if s == nil || s.Q == nil || s.Pool == nil {
		return errors.New("quality service not configured")
	}
	weights, err := s.Q.GetReceptionWeights(ctx, receptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReceptionNotFound
		}
		return err
	}
	if _, err := s.Q.GetReadingByReception(ctx, receptionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	_, err = s.persistRecompute(ctx, weights, func(ctx context.Context, q Querier) (ReadingRecord, error) {
		return q.GetReadingByReception(ctx, weights.ID)
	})
	if err != nil {
		s.countRecompute("background", "error")
		return err
	}
	s.countRecompute("background", "ok")

	if s.Pricer != nil {
		if err := s.Pricer.Recalculate(ctx, receptionID, true); err != nil {
			return err
		}
	}
	return nil
}

// persistRecompute runs one full recompute inside a transaction: mutate the
// reading, replace every discount line item and re-derive the reception
// weights from scratch. Replacing rather than patching guarantees a metric
// that dropped below its threshold leaves no stale line item behind, and
// makes repeated recomputes with identical inputs converge to the same rows.
func (s *Service) persistRecompute(ctx context.Context, weights ReceptionWeights, mutate func(context.Context, Querier) (ReadingRecord, error)) (RecomputeOutcome, error) {
	thresholds, err := s.thresholdsFor(ctx, weights.FruitTypeID)
	if err != nil {
		return RecomputeOutcome{}, err
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return RecomputeOutcome{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Q.WithTx(tx)

	reading, err := mutate(ctx, qtx)
	if err != nil {
		return RecomputeOutcome{}, err
	}

	result := ComputeDiscount(weights.OriginalWeight, thresholds, reading.Readings())
	finalWeight := applyLabSampleAdjustment(weights, result)

	if err := qtx.DeleteLineItems(ctx, weights.ID); err != nil {
		return RecomputeOutcome{}, err
	}
	if len(result.Breakdown) > 0 {
		if err := qtx.InsertLineItems(ctx, weights.ID, result.Breakdown); err != nil {
			return RecomputeOutcome{}, err
		}
	}
	if err := qtx.UpdateReceptionWeights(ctx, weights.ID, result.TotalDiscountWeight, finalWeight); err != nil {
		return RecomputeOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return RecomputeOutcome{}, err
	}

	if obs.DiscountPercentApplied != nil {
		f, _ := result.TotalDiscountPercent.Float64()
		obs.DiscountPercentApplied.Observe(f)
	}
	return RecomputeOutcome{Reading: reading, Discount: result, FinalWeight: finalWeight}, nil
}

// applyLabSampleAdjustment re-derives the stored final weight from the
// invariant final = original - discount + (driedSample - wetSample). The
// adjustment only applies to the cacao-verde subtype; every other reception
// prices the engine result directly.
func applyLabSampleAdjustment(weights ReceptionWeights, result DiscountResult) decimal.Decimal {
	final := result.FinalWeight
	if weights.Subtype == SubtypeCacaoVerde {
		final = final.Add(weights.LabSampleDriedWeight.Sub(weights.LabSampleWetWeight))
	}
	return final
}

func (s *Service) thresholdsFor(ctx context.Context, fruitTypeID uuid.UUID) ([]Threshold, error) {
	if s.Thresholds == nil {
		return nil, nil
	}
	thresholds, err := s.Thresholds.EnabledThresholds(ctx, fruitTypeID)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	return thresholds, nil
}

func (s *Service) countRecompute(trigger, result string) {
	if obs.RecomputeTotal != nil {
		obs.RecomputeTotal.WithLabelValues(trigger, result).Inc()
	}
}

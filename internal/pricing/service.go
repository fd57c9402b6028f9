package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/obs"
	"github.com/noah-isme/acopio-api/internal/quality"
	"github.com/noah-isme/acopio-api/internal/queue"
)

var (
	// ErrReceptionNotFound is returned when the reception does not exist.
	ErrReceptionNotFound = errors.New("reception not found")
	// ErrFruitTypeNotFound is returned when a daily price targets an unknown fruit type.
	ErrFruitTypeNotFound = errors.New("fruit type not found")
)

// Pricing statuses reported by CalculateForReception.
const (
	StatusPriced      = "priced"
	StatusUnavailable = "price_unavailable"
)

// Calculation is one persisted pricing calculation for a reception.
type Calculation struct {
	ID           uuid.UUID
	ReceptionID  uuid.UUID
	CurrencyCode string
	PriceDate    time.Time
	Amounts
}

// ReceptionRow is the reception slice the pricing service reads.
type ReceptionRow struct {
	ID             uuid.UUID
	FruitTypeID    uuid.UUID
	ReceivedAt     time.Time
	OriginalWeight decimal.Decimal
	FinalWeight    decimal.Decimal
	HasPricing     bool
}

// DailyPrice is a unit price for a fruit type effective from ValidDate on.
type DailyPrice struct {
	ID          uuid.UUID
	FruitTypeID uuid.UUID
	PricePerKG  decimal.Decimal
	ValidDate   time.Time
}

// Querier captures the database methods required by the pricing service.
type Querier interface {
	GetReceptionForPricing(ctx context.Context, receptionID uuid.UUID) (ReceptionRow, error)
	// EffectivePrice returns the price row with the greatest valid date not
	// after the given date. pgx.ErrNoRows means no price applies.
	EffectivePrice(ctx context.Context, fruitTypeID uuid.UUID, onDate time.Time) (DailyPrice, error)
	UpsertCalculation(ctx context.Context, calc Calculation) (uuid.UUID, error)
	SetReceptionPricing(ctx context.Context, receptionID, calculationID uuid.UUID) error
	UpsertDailyPrice(ctx context.Context, fruitTypeID uuid.UUID, pricePerKG decimal.Decimal, validDate time.Time) (DailyPrice, error)
	ListDailyPrices(ctx context.Context, fruitTypeID uuid.UUID, limit int) ([]DailyPrice, error)
	ListReceptionIDsByFruitTypeSince(ctx context.Context, fruitTypeID uuid.UUID, since time.Time) ([]uuid.UUID, error)
	WithTx(tx pgx.Tx) Querier
}

// TxStarter begins database transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ TxStarter = (*pgxpool.Pool)(nil)

// Enqueuer publishes background tasks. queue.Enqueuer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// Service computes and stores pricing calculations and manages the daily
// price table.
type Service struct {
	Q        Querier
	Pool     TxStarter
	Currency string
	Enqueue  Enqueuer
	Logger   zerolog.Logger
}

// Outcome is the result of a pricing attempt. A missing daily price is a
// normal outcome, not an error: Status is StatusUnavailable and Calculation
// is nil.
type Outcome struct {
	Status      string
	Calculation *Calculation
}

// CalculateForReception prices a reception against the daily price table.
// The effective price is the latest one whose valid date does not exceed the
// reception date. Re-running the calculation replaces the stored amounts.
func (s *Service) CalculateForReception(ctx context.Context, receptionID uuid.UUID) (Outcome, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return Outcome{}, errors.New("pricing service not configured")
	}
	row, err := s.Q.GetReceptionForPricing(ctx, receptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Outcome{}, ErrReceptionNotFound
		}
		return Outcome{}, err
	}

	price, err := s.Q.EffectivePrice(ctx, row.FruitTypeID, row.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.countOutcome(StatusUnavailable)
			return Outcome{Status: StatusUnavailable}, nil
		}
		return Outcome{}, err
	}

	calc := Calculation{
		ReceptionID:  row.ID,
		CurrencyCode: s.Currency,
		PriceDate:    price.ValidDate,
		Amounts:      Compute(row.OriginalWeight, row.FinalWeight, price.PricePerKG),
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Q.WithTx(tx)

	calc.ID, err = qtx.UpsertCalculation(ctx, calc)
	if err != nil {
		return Outcome{}, err
	}
	if err := qtx.SetReceptionPricing(ctx, row.ID, calc.ID); err != nil {
		return Outcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, err
	}

	s.countOutcome(StatusPriced)
	return Outcome{Status: StatusPriced, Calculation: &calc}, nil
}

// Recalculate refreshes the stored calculation after a weight or price
// change. With onlyIfPriced, receptions that were never priced are skipped
// so a missing daily price does not become retroactively visible as an
// empty calculation.
func (s *Service) Recalculate(ctx context.Context, receptionID uuid.UUID, onlyIfPriced bool) error {
	if s == nil || s.Q == nil {
		return errors.New("pricing service not configured")
	}
	if onlyIfPriced {
		row, err := s.Q.GetReceptionForPricing(ctx, receptionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReceptionNotFound
			}
			return err
		}
		if !row.HasPricing {
			return nil
		}
	}
	_, err := s.CalculateForReception(ctx, receptionID)
	return err
}

// SetDailyPrice records the unit price for a fruit type effective from the
// given date, replacing any previous price for the same day, and schedules a
// background recompute for every reception the new price can affect.
func (s *Service) SetDailyPrice(ctx context.Context, fruitTypeID uuid.UUID, pricePerKG decimal.Decimal, validDate time.Time) (DailyPrice, error) {
	if s == nil || s.Q == nil {
		return DailyPrice{}, errors.New("pricing service not configured")
	}
	if pricePerKG.Sign() <= 0 {
		return DailyPrice{}, fmt.Errorf("price per kg must be positive, got %s", pricePerKG)
	}
	dp, err := s.Q.UpsertDailyPrice(ctx, fruitTypeID, pricePerKG, validDate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return DailyPrice{}, ErrFruitTypeNotFound
		}
		return DailyPrice{}, err
	}
	s.fanOutRecompute(ctx, fruitTypeID, validDate)
	return dp, nil
}

// ListDailyPrices returns the most recent prices for a fruit type.
func (s *Service) ListDailyPrices(ctx context.Context, fruitTypeID uuid.UUID, limit int) ([]DailyPrice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Q.ListDailyPrices(ctx, fruitTypeID, limit)
}

// fanOutRecompute enqueues one recompute task per affected reception. The
// fan-out is best effort: the price row is already committed, and a failed
// enqueue only delays the refresh until the next mutation.
func (s *Service) fanOutRecompute(ctx context.Context, fruitTypeID uuid.UUID, since time.Time) {
	if s.Enqueue == nil {
		return
	}
	ids, err := s.Q.ListReceptionIDsByFruitTypeSince(ctx, fruitTypeID, since)
	if err != nil {
		s.Logger.Error().Err(err).Str("fruit_type_id", fruitTypeID.String()).Msg("list receptions for price fan-out")
		return
	}
	for _, id := range ids {
		payload, err := json.Marshal(quality.RecomputeTaskPayload{ReceptionID: id})
		if err != nil {
			continue
		}
		task := queue.Task{
			Kind:           quality.TaskReceptionRecompute,
			Payload:        payload,
			IdempotencyKey: id.String(),
		}
		if err := s.Enqueue.Enqueue(ctx, task); err != nil {
			s.Logger.Error().Err(err).Str("reception_id", id.String()).Msg("enqueue recompute")
		}
	}
}

func (s *Service) countOutcome(outcome string) {
	if obs.PricingOutcomeTotal != nil {
		obs.PricingOutcomeTotal.WithLabelValues(outcome).Inc()
	}
}

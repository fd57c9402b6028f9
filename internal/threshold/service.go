package threshold

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/quality"
	"github.com/noah-isme/acopio-api/internal/queue"
)

var (
	// ErrThresholdExists is returned when a fruit type already has a threshold
	// for the metric.
	ErrThresholdExists = errors.New("threshold already exists for metric")
	// ErrThresholdNotFound is returned when the threshold does not exist.
	ErrThresholdNotFound = errors.New("threshold not found")
	// ErrFruitTypeNotFound is returned when the fruit type does not exist.
	ErrFruitTypeNotFound = errors.New("fruit type not found")
)

// Row is one configured threshold, including disabled ones.
type Row struct {
	ID           uuid.UUID
	FruitTypeID  uuid.UUID
	Metric       quality.Metric
	LimitPercent decimal.Decimal
	Enabled      bool
}

// Querier captures the database methods required by the threshold service.
type Querier interface {
	ListEnabledByFruitType(ctx context.Context, fruitTypeID uuid.UUID) ([]quality.Threshold, error)
	ListByFruitType(ctx context.Context, fruitTypeID uuid.UUID) ([]Row, error)
	Insert(ctx context.Context, fruitTypeID uuid.UUID, metric quality.Metric, limit decimal.Decimal) (Row, error)
	Update(ctx context.Context, id uuid.UUID, limit decimal.Decimal, enabled bool) (Row, error)
	ListReceptionIDsByFruitType(ctx context.Context, fruitTypeID uuid.UUID) ([]uuid.UUID, error)
}

// Enqueuer publishes background tasks. queue.Enqueuer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// Service manages quality thresholds. It is the ThresholdSource for the
// discount engine and the trigger for reception recomputes after a
// threshold changes.
type Service struct {
	Q       Querier
	Cache   *Cache
	Enqueue Enqueuer
	Logger  zerolog.Logger
}

// EnabledThresholds returns the active thresholds for a fruit type,
// preferring the cache.
func (s *Service) EnabledThresholds(ctx context.Context, fruitTypeID uuid.UUID) ([]quality.Threshold, error) {
	if cached, ok := s.Cache.Get(ctx, fruitTypeID); ok {
		return cached, nil
	}
	thresholds, err := s.Q.ListEnabledByFruitType(ctx, fruitTypeID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, fruitTypeID, thresholds)
	return thresholds, nil
}

// List returns every threshold configured for a fruit type, enabled or not.
func (s *Service) List(ctx context.Context, fruitTypeID uuid.UUID) ([]Row, error) {
	return s.Q.ListByFruitType(ctx, fruitTypeID)
}

// Create adds a threshold for a metric the fruit type does not have yet.
func (s *Service) Create(ctx context.Context, fruitTypeID uuid.UUID, metric quality.Metric, limit decimal.Decimal) (Row, error) {
	row, err := s.Q.Insert(ctx, fruitTypeID, metric, limit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Row{}, ErrThresholdExists
			case "23503":
				return Row{}, ErrFruitTypeNotFound
			}
		}
		return Row{}, err
	}
	s.afterMutation(ctx, row.FruitTypeID)
	return row, nil
}

// Update changes a threshold's limit or enabled flag. Disabling keeps the
// row so the limit survives a later re-enable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, limit decimal.Decimal, enabled bool) (Row, error) {
	row, err := s.Q.Update(ctx, id, limit, enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrThresholdNotFound
		}
		return Row{}, err
	}
	s.afterMutation(ctx, row.FruitTypeID)
	return row, nil
}

// afterMutation invalidates the cache and schedules a recompute for every
// reception of the fruit type. Stored discounts are derived data: a changed
// threshold makes all of them stale at once.
func (s *Service) afterMutation(ctx context.Context, fruitTypeID uuid.UUID) {
	s.Cache.Invalidate(ctx, fruitTypeID)
	if s.Enqueue == nil {
		return
	}
	ids, err := s.Q.ListReceptionIDsByFruitType(ctx, fruitTypeID)
	if err != nil {
		s.Logger.Error().Err(err).Str("fruit_type_id", fruitTypeID.String()).Msg("list receptions for threshold fan-out")
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

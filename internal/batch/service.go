package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/obs"
)

var (
	// ErrBatchNotFound is returned when the batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrReceptionNotFound is returned when a contribution references an
	// unknown reception.
	ErrReceptionNotFound = errors.New("reception not found")
	// ErrBatchCompleted is returned when a completed batch is mutated.
	ErrBatchCompleted = errors.New("batch already completed")
	// ErrContributionExists is returned when a reception is added to the same
	// batch twice.
	ErrContributionExists = errors.New("reception already contributes to batch")
	// ErrUnknownProcessType is returned for process types outside the known set.
	ErrUnknownProcessType = errors.New("unknown process type")
)

// Batch process types.
const (
	ProcessDrying       = "drying"
	ProcessFermentation = "fermentation"
	ProcessBoth         = "both"
)

// Batch statuses.
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
)

// Batch is a post-harvest processing batch of pooled cacao.
type Batch struct {
	ID             uuid.UUID
	ProcessType    string
	Status         string
	TotalWetWeight decimal.Decimal
	TotalDried     *decimal.Decimal
	SackCount      *int64
	SackRemainder  *decimal.Decimal
	CreatedAt      time.Time
}

// StoredContribution is a persisted batch contribution, with its dried share
// once the batch is completed.
type StoredContribution struct {
	ID             uuid.UUID
	BatchID        uuid.UUID
	ReceptionID    uuid.UUID
	WetWeight      decimal.Decimal
	PercentOfTotal *decimal.Decimal
	DriedShare     *decimal.Decimal
}

// Querier captures the database methods required by the batch service.
type Querier interface {
	InsertBatch(ctx context.Context, processType string) (Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	ListBatches(ctx context.Context, limit, offset int) ([]Batch, error)
	InsertContribution(ctx context.Context, batchID, receptionID uuid.UUID, wetWeight decimal.Decimal) (StoredContribution, error)
	ListContributions(ctx context.Context, batchID uuid.UUID) ([]StoredContribution, error)
	UpdateContributionShares(ctx context.Context, batchID uuid.UUID, shares []Share) error
	CompleteBatch(ctx context.Context, batchID uuid.UUID, totalDried decimal.Decimal, sackCount int64, sackRemainder decimal.Decimal) error
	WithTx(tx pgx.Tx) Querier
}

// TxStarter begins database transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ TxStarter = (*pgxpool.Pool)(nil)

// Service manages processing batches and dried-weight distribution.
type Service struct {
	Q          Querier
	Pool       TxStarter
	SackWeight decimal.Decimal
	Logger     zerolog.Logger
}

// Create opens a new batch for the given process type.
func (s *Service) Create(ctx context.Context, processType string) (Batch, error) {
	switch processType {
	case ProcessDrying, ProcessFermentation, ProcessBoth:
	default:
		return Batch{}, ErrUnknownProcessType
	}
	return s.Q.InsertBatch(ctx, processType)
}

// AddContribution registers a reception's wet weight into an open batch.
func (s *Service) AddContribution(ctx context.Context, batchID, receptionID uuid.UUID, wetWeight decimal.Decimal) (StoredContribution, error) {
	if wetWeight.Sign() <= 0 {
		return StoredContribution{}, errors.New("wet weight must be positive")
	}
	b, err := s.Q.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredContribution{}, ErrBatchNotFound
		}
		return StoredContribution{}, err
	}
	if b.Status != StatusOpen {
		return StoredContribution{}, ErrBatchCompleted
	}
	contrib, err := s.Q.InsertContribution(ctx, batchID, receptionID, wetWeight)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return StoredContribution{}, ErrContributionExists
			case "23503":
				return StoredContribution{}, ErrReceptionNotFound
			}
		}
		return StoredContribution{}, err
	}
	return contrib, nil
}

// SetDriedWeight records the measured dried output of a batch, distributes
// it proportionally across the contributions and closes the batch. The
// distribution and the completion commit together.
func (s *Service) SetDriedWeight(ctx context.Context, batchID uuid.UUID, totalDried decimal.Decimal) (Batch, []StoredContribution, error) {
	if totalDried.Sign() <= 0 {
		return Batch{}, nil, errors.New("dried weight must be positive")
	}
	b, err := s.Q.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, nil, ErrBatchNotFound
		}
		return Batch{}, nil, err
	}
	if b.Status != StatusOpen {
		return Batch{}, nil, ErrBatchCompleted
	}

	stored, err := s.Q.ListContributions(ctx, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	contribs := make([]Contribution, 0, len(stored))
	for _, c := range stored {
		contribs = append(contribs, Contribution{ReceptionID: c.ReceptionID, WetWeight: c.WetWeight})
	}
	shares, err := DistributeDriedWeight(contribs, totalDried)
	if err != nil {
		return Batch{}, nil, err
	}
	sackCount, sackRemainder := SackBreakdown(totalDried, s.SackWeight)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Batch{}, nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Q.WithTx(tx)

	if err := qtx.UpdateContributionShares(ctx, batchID, shares); err != nil {
		return Batch{}, nil, err
	}
	if err := qtx.CompleteBatch(ctx, batchID, totalDried, sackCount, sackRemainder); err != nil {
		return Batch{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Batch{}, nil, err
	}

	if obs.BatchDistributionTotal != nil {
		obs.BatchDistributionTotal.Inc()
	}

	result, err := s.Q.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	final, err := s.Q.ListContributions(ctx, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	return result, final, nil
}

// Get returns a batch with its contributions.
func (s *Service) Get(ctx context.Context, batchID uuid.UUID) (Batch, []StoredContribution, error) {
	b, err := s.Q.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, nil, ErrBatchNotFound
		}
		return Batch{}, nil, err
	}
	contribs, err := s.Q.ListContributions(ctx, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	return b, contribs, nil
}

// List returns batches, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Batch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Q.ListBatches(ctx, limit, offset)
}

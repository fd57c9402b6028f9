package batch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB implements Querier against Postgres.
type DB struct {
	db DBTX
}

// NewDB wraps a pool or transaction.
func NewDB(db DBTX) *DB { return &DB{db: db} }

// WithTx returns a Querier bound to the given transaction.
func (d *DB) WithTx(tx pgx.Tx) Querier { return &DB{db: tx} }

const batchColumns = `
	id::text, process_type, status,
	total_wet_kg::text, total_dried_kg::text,
	sack_count, sack_remainder_kg::text, created_at`

func (d *DB) InsertBatch(ctx context.Context, processType string) (Batch, error) {
	const q = `
		INSERT INTO cacao_batches (process_type, status)
		VALUES ($1, 'open')
		RETURNING ` + batchColumns
	return scanBatch(d.db.QueryRow(ctx, q, processType))
}

func (d *DB) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	const q = `SELECT ` + batchColumns + ` FROM cacao_batches WHERE id = $1`
	return scanBatch(d.db.QueryRow(ctx, q, id))
}

func (d *DB) ListBatches(ctx context.Context, limit, offset int) ([]Batch, error) {
	const q = `
		SELECT ` + batchColumns + `
		FROM cacao_batches
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`
	rows, err := d.db.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) InsertContribution(ctx context.Context, batchID, receptionID uuid.UUID, wetWeight decimal.Decimal) (StoredContribution, error) {
	const q = `
		WITH inserted AS (
			INSERT INTO batch_contributions (batch_id, reception_id, wet_weight_kg)
			VALUES ($1, $2, $3)
			RETURNING id
		), updated AS (
			UPDATE cacao_batches
			SET total_wet_kg = total_wet_kg + $3, updated_at = now()
			WHERE id = $1
		)
		SELECT id::text FROM inserted`
	var id string
	if err := d.db.QueryRow(ctx, q, batchID, receptionID, wetWeight.String()).Scan(&id); err != nil {
		return StoredContribution{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return StoredContribution{}, fmt.Errorf("parse contribution id: %w", err)
	}
	return StoredContribution{ID: parsed, BatchID: batchID, ReceptionID: receptionID, WetWeight: wetWeight}, nil
}

func (d *DB) ListContributions(ctx context.Context, batchID uuid.UUID) ([]StoredContribution, error) {
	const q = `
		SELECT id::text, batch_id::text, reception_id::text,
		       wet_weight_kg::text, percent_of_total::text, dried_share_kg::text
		FROM batch_contributions
		WHERE batch_id = $1
		ORDER BY created_at, id`
	rows, err := d.db.Query(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredContribution
	for rows.Next() {
		var (
			c                   StoredContribution
			id, bID, recID      string
			wet                 string
			percent, driedShare *string
		)
		if err := rows.Scan(&id, &bID, &recID, &wet, &percent, &driedShare); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse contribution id: %w", err)
		}
		if c.BatchID, err = uuid.Parse(bID); err != nil {
			return nil, fmt.Errorf("parse batch id: %w", err)
		}
		if c.ReceptionID, err = uuid.Parse(recID); err != nil {
			return nil, fmt.Errorf("parse reception id: %w", err)
		}
		if c.WetWeight, err = decimal.NewFromString(wet); err != nil {
			return nil, fmt.Errorf("parse wet weight: %w", err)
		}
		if c.PercentOfTotal, err = parseNullableDecimal(percent); err != nil {
			return nil, fmt.Errorf("parse percent of total: %w", err)
		}
		if c.DriedShare, err = parseNullableDecimal(driedShare); err != nil {
			return nil, fmt.Errorf("parse dried share: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) UpdateContributionShares(ctx context.Context, batchID uuid.UUID, shares []Share) error {
	const q = `
		UPDATE batch_contributions
		SET percent_of_total = $3, dried_share_kg = $4
		WHERE batch_id = $1 AND reception_id = $2`
	for _, share := range shares {
		tag, err := d.db.Exec(ctx, q, batchID, share.ReceptionID,
			share.PercentOfTotal.String(), share.DriedShare.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("contribution for reception %s not found in batch %s", share.ReceptionID, batchID)
		}
	}
	return nil
}

func (d *DB) CompleteBatch(ctx context.Context, batchID uuid.UUID, totalDried decimal.Decimal, sackCount int64, sackRemainder decimal.Decimal) error {
	const q = `
		UPDATE cacao_batches
		SET status = 'completed', total_dried_kg = $2,
		    sack_count = $3, sack_remainder_kg = $4, updated_at = now()
		WHERE id = $1 AND status = 'open'`
	tag, err := d.db.Exec(ctx, q, batchID, totalDried.String(), sackCount, sackRemainder.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchCompleted
	}
	return nil
}

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b                    Batch
		id, wet              string
		dried, sackRemainder *string
		sackCount            *int64
	)
	err := row.Scan(&id, &b.ProcessType, &b.Status, &wet, &dried, &sackCount, &sackRemainder, &b.CreatedAt)
	if err != nil {
		return Batch{}, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return Batch{}, fmt.Errorf("parse batch id: %w", err)
	}
	if b.TotalWetWeight, err = decimal.NewFromString(wet); err != nil {
		return Batch{}, fmt.Errorf("parse total wet weight: %w", err)
	}
	if b.TotalDried, err = parseNullableDecimal(dried); err != nil {
		return Batch{}, fmt.Errorf("parse total dried weight: %w", err)
	}
	if b.SackRemainder, err = parseNullableDecimal(sackRemainder); err != nil {
		return Batch{}, fmt.Errorf("parse sack remainder: %w", err)
	}
	b.SackCount = sackCount
	return b, nil
}

func parseNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

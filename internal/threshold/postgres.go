package threshold

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/quality"
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

func (d *DB) ListEnabledByFruitType(ctx context.Context, fruitTypeID uuid.UUID) ([]quality.Threshold, error) {
	const q = `
		SELECT metric, limit_percent::text
		FROM quality_thresholds
		WHERE fruit_type_id = $1 AND enabled
		ORDER BY metric`
	rows, err := d.db.Query(ctx, q, fruitTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []quality.Threshold
	for rows.Next() {
		var (
			metric string
			limit  string
		)
		if err := rows.Scan(&metric, &limit); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(limit)
		if err != nil {
			return nil, fmt.Errorf("parse limit percent: %w", err)
		}
		thresholds = append(thresholds, quality.Threshold{Metric: quality.Metric(metric), LimitPercent: parsed})
	}
	return thresholds, rows.Err()
}

func (d *DB) ListByFruitType(ctx context.Context, fruitTypeID uuid.UUID) ([]Row, error) {
	const q = `
		SELECT id::text, fruit_type_id::text, metric, limit_percent::text, enabled
		FROM quality_thresholds
		WHERE fruit_type_id = $1
		ORDER BY metric`
	rows, err := d.db.Query(ctx, q, fruitTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) Insert(ctx context.Context, fruitTypeID uuid.UUID, metric quality.Metric, limit decimal.Decimal) (Row, error) {
	const q = `
		INSERT INTO quality_thresholds (fruit_type_id, metric, limit_percent, enabled)
		VALUES ($1, $2, $3, true)
		RETURNING id::text, fruit_type_id::text, metric, limit_percent::text, enabled`
	return scanRow(d.db.QueryRow(ctx, q, fruitTypeID, string(metric), limit.String()))
}

func (d *DB) Update(ctx context.Context, id uuid.UUID, limit decimal.Decimal, enabled bool) (Row, error) {
	const q = `
		UPDATE quality_thresholds
		SET limit_percent = $2, enabled = $3, updated_at = now()
		WHERE id = $1
		RETURNING id::text, fruit_type_id::text, metric, limit_percent::text, enabled`
	return scanRow(d.db.QueryRow(ctx, q, id, limit.String(), enabled))
}

func (d *DB) ListReceptionIDsByFruitType(ctx context.Context, fruitTypeID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT id::text FROM receptions WHERE fruit_type_id = $1 ORDER BY received_at`
	rows, err := d.db.Query(ctx, q, fruitTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse reception id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRow(row pgx.Row) (Row, error) {
	var (
		r               Row
		id, fruitTypeID string
		metric, limit   string
	)
	if err := row.Scan(&id, &fruitTypeID, &metric, &limit, &r.Enabled); err != nil {
		return Row{}, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return Row{}, fmt.Errorf("parse threshold id: %w", err)
	}
	if r.FruitTypeID, err = uuid.Parse(fruitTypeID); err != nil {
		return Row{}, fmt.Errorf("parse fruit type id: %w", err)
	}
	r.Metric = quality.Metric(metric)
	if r.LimitPercent, err = decimal.NewFromString(limit); err != nil {
		return Row{}, fmt.Errorf("parse limit percent: %w", err)
	}
	return r, nil
}

package pricing

import (
	"context"
	"fmt"
	"time"

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

func (d *DB) GetReceptionForPricing(ctx context.Context, receptionID uuid.UUID) (ReceptionRow, error) {
	const q = `
		SELECT id::text, fruit_type_id::text, received_at,
		       original_weight_kg::text,
		       COALESCE(final_weight_kg, original_weight_kg)::text,
		       pricing_calculation_id IS NOT NULL
		FROM receptions
		WHERE id = $1`
	var (
		row             ReceptionRow
		id, fruitTypeID string
		original, final string
	)
	err := d.db.QueryRow(ctx, q, receptionID).Scan(&id, &fruitTypeID, &row.ReceivedAt, &original, &final, &row.HasPricing)
	if err != nil {
		return ReceptionRow{}, err
	}
	if row.ID, err = uuid.Parse(id); err != nil {
		return ReceptionRow{}, fmt.Errorf("parse reception id: %w", err)
	}
	if row.FruitTypeID, err = uuid.Parse(fruitTypeID); err != nil {
		return ReceptionRow{}, fmt.Errorf("parse fruit type id: %w", err)
	}
	if row.OriginalWeight, err = decimal.NewFromString(original); err != nil {
		return ReceptionRow{}, fmt.Errorf("parse original weight: %w", err)
	}
	if row.FinalWeight, err = decimal.NewFromString(final); err != nil {
		return ReceptionRow{}, fmt.Errorf("parse final weight: %w", err)
	}
	return row, nil
}

func (d *DB) EffectivePrice(ctx context.Context, fruitTypeID uuid.UUID, onDate time.Time) (DailyPrice, error) {
	const q = `
		SELECT id::text, fruit_type_id::text, price_per_kg::text, valid_date
		FROM daily_prices
		WHERE fruit_type_id = $1 AND valid_date <= $2
		ORDER BY valid_date DESC
		LIMIT 1`
	return d.scanDailyPrice(d.db.QueryRow(ctx, q, fruitTypeID, onDate))
}

func (d *DB) UpsertCalculation(ctx context.Context, calc Calculation) (uuid.UUID, error) {
	const q = `
		INSERT INTO pricing_calculations
			(reception_id, currency_code, price_per_kg, gross_amount, discount_amount, net_amount, price_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reception_id) DO UPDATE SET
			currency_code = EXCLUDED.currency_code,
			price_per_kg = EXCLUDED.price_per_kg,
			gross_amount = EXCLUDED.gross_amount,
			discount_amount = EXCLUDED.discount_amount,
			net_amount = EXCLUDED.net_amount,
			price_date = EXCLUDED.price_date,
			updated_at = now()
		RETURNING id::text`
	var id string
	err := d.db.QueryRow(ctx, q, calc.ReceptionID, calc.CurrencyCode,
		calc.PricePerKG.String(), calc.GrossAmount.String(),
		calc.DiscountAmount.String(), calc.NetAmount.String(), calc.PriceDate,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse calculation id: %w", err)
	}
	return parsed, nil
}

func (d *DB) SetReceptionPricing(ctx context.Context, receptionID, calculationID uuid.UUID) error {
	const q = `UPDATE receptions SET pricing_calculation_id = $2, updated_at = now() WHERE id = $1`
	_, err := d.db.Exec(ctx, q, receptionID, calculationID)
	return err
}

func (d *DB) UpsertDailyPrice(ctx context.Context, fruitTypeID uuid.UUID, pricePerKG decimal.Decimal, validDate time.Time) (DailyPrice, error) {
	const q = `
		INSERT INTO daily_prices (fruit_type_id, price_per_kg, valid_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (fruit_type_id, valid_date) DO UPDATE SET
			price_per_kg = EXCLUDED.price_per_kg,
			updated_at = now()
		RETURNING id::text, fruit_type_id::text, price_per_kg::text, valid_date`
	return d.scanDailyPrice(d.db.QueryRow(ctx, q, fruitTypeID, pricePerKG.String(), validDate))
}

func (d *DB) ListDailyPrices(ctx context.Context, fruitTypeID uuid.UUID, limit int) ([]DailyPrice, error) {
	const q = `
		SELECT id::text, fruit_type_id::text, price_per_kg::text, valid_date
		FROM daily_prices
		WHERE fruit_type_id = $1
		ORDER BY valid_date DESC
		LIMIT $2`
	rows, err := d.db.Query(ctx, q, fruitTypeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		dp, err := d.scanDailyPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, dp)
	}
	return prices, rows.Err()
}

func (d *DB) ListReceptionIDsByFruitTypeSince(ctx context.Context, fruitTypeID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	const q = `
		SELECT id::text
		FROM receptions
		WHERE fruit_type_id = $1 AND received_at >= $2
		ORDER BY received_at`
	rows, err := d.db.Query(ctx, q, fruitTypeID, since)
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

func (d *DB) scanDailyPrice(row pgx.Row) (DailyPrice, error) {
	var (
		dp              DailyPrice
		id, fruitTypeID string
		price           string
	)
	if err := row.Scan(&id, &fruitTypeID, &price, &dp.ValidDate); err != nil {
		return DailyPrice{}, err
	}
	var err error
	if dp.ID, err = uuid.Parse(id); err != nil {
		return DailyPrice{}, fmt.Errorf("parse price id: %w", err)
	}
	if dp.FruitTypeID, err = uuid.Parse(fruitTypeID); err != nil {
		return DailyPrice{}, fmt.Errorf("parse fruit type id: %w", err)
	}
	if dp.PricePerKG, err = decimal.NewFromString(price); err != nil {
		return DailyPrice{}, fmt.Errorf("parse price per kg: %w", err)
	}
	return dp, nil
}

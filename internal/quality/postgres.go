package quality

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

func (d *DB) GetReceptionWeights(ctx context.Context, receptionID uuid.UUID) (ReceptionWeights, error) {
	const q = `
		SELECT id::text, fruit_type_id::text, COALESCE(cacao_subtype, ''),
		       original_weight_kg::text,
		       COALESCE(lab_sample_wet_kg, 0)::text,
		       COALESCE(lab_sample_dried_kg, 0)::text,
		       pricing_calculation_id IS NOT NULL
		FROM receptions
		WHERE id = $1`
	var (
		w                              ReceptionWeights
		id, fruitTypeID                string
		original, wetSample, driedSmpl string
	)
	err := d.db.QueryRow(ctx, q, receptionID).Scan(
		&id, &fruitTypeID, &w.Subtype, &original, &wetSample, &driedSmpl, &w.HasPricing,
	)
	if err != nil {
		return ReceptionWeights{}, err
	}
	if w.ID, err = uuid.Parse(id); err != nil {
		return ReceptionWeights{}, fmt.Errorf("parse reception id: %w", err)
	}
	if w.FruitTypeID, err = uuid.Parse(fruitTypeID); err != nil {
		return ReceptionWeights{}, fmt.Errorf("parse fruit type id: %w", err)
	}
	if w.OriginalWeight, err = decimal.NewFromString(original); err != nil {
		return ReceptionWeights{}, fmt.Errorf("parse original weight: %w", err)
	}
	if w.LabSampleWetWeight, err = decimal.NewFromString(wetSample); err != nil {
		return ReceptionWeights{}, fmt.Errorf("parse wet sample weight: %w", err)
	}
	if w.LabSampleDriedWeight, err = decimal.NewFromString(driedSmpl); err != nil {
		return ReceptionWeights{}, fmt.Errorf("parse dried sample weight: %w", err)
	}
	return w, nil
}

func (d *DB) GetReadingByReception(ctx context.Context, receptionID uuid.UUID) (ReadingRecord, error) {
	const q = `
		SELECT id::text, reception_id::text,
		       violetas_percent::text, humedad_percent::text, moho_percent::text,
		       COALESCE(recorded_by, '')
		FROM quality_readings
		WHERE reception_id = $1`
	var (
		r                      ReadingRecord
		id, recID              string
		violetas, humedad, moh *string
	)
	err := d.db.QueryRow(ctx, q, receptionID).Scan(&id, &recID, &violetas, &humedad, &moh, &r.RecordedBy)
	if err != nil {
		return ReadingRecord{}, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return ReadingRecord{}, fmt.Errorf("parse reading id: %w", err)
	}
	if r.ReceptionID, err = uuid.Parse(recID); err != nil {
		return ReadingRecord{}, fmt.Errorf("parse reception id: %w", err)
	}
	if r.Values.Violetas, err = parseNullableDecimal(violetas); err != nil {
		return ReadingRecord{}, fmt.Errorf("parse violetas: %w", err)
	}
	if r.Values.Humedad, err = parseNullableDecimal(humedad); err != nil {
		return ReadingRecord{}, fmt.Errorf("parse humedad: %w", err)
	}
	if r.Values.Moho, err = parseNullableDecimal(moh); err != nil {
		return ReadingRecord{}, fmt.Errorf("parse moho: %w", err)
	}
	return r, nil
}

func (d *DB) InsertReading(ctx context.Context, receptionID uuid.UUID, recordedBy string, values MetricValues) (ReadingRecord, error) {
	const q = `
		INSERT INTO quality_readings (reception_id, violetas_percent, humedad_percent, moho_percent, recorded_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id::text`
	var id string
	err := d.db.QueryRow(ctx, q, receptionID,
		decimalArg(values.Violetas), decimalArg(values.Humedad), decimalArg(values.Moho), recordedBy,
	).Scan(&id)
	if err != nil {
		return ReadingRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ReadingRecord{}, fmt.Errorf("parse reading id: %w", err)
	}
	return ReadingRecord{ID: parsed, ReceptionID: receptionID, Values: values, RecordedBy: recordedBy}, nil
}

func (d *DB) UpdateReading(ctx context.Context, receptionID uuid.UUID, values MetricValues) (ReadingRecord, error) {
	const q = `
		UPDATE quality_readings
		SET violetas_percent = $2, humedad_percent = $3, moho_percent = $4, updated_at = now()
		WHERE reception_id = $1
		RETURNING id::text, COALESCE(recorded_by, '')`
	var id, recordedBy string
	err := d.db.QueryRow(ctx, q, receptionID,
		decimalArg(values.Violetas), decimalArg(values.Humedad), decimalArg(values.Moho),
	).Scan(&id, &recordedBy)
	if err != nil {
		return ReadingRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ReadingRecord{}, fmt.Errorf("parse reading id: %w", err)
	}
	return ReadingRecord{ID: parsed, ReceptionID: receptionID, Values: values, RecordedBy: recordedBy}, nil
}

func (d *DB) DeleteLineItems(ctx context.Context, receptionID uuid.UUID) error {
	_, err := d.db.Exec(ctx, `DELETE FROM discount_line_items WHERE reception_id = $1`, receptionID)
	return err
}

func (d *DB) InsertLineItems(ctx context.Context, receptionID uuid.UUID, items []LineItem) error {
	const q = `
		INSERT INTO discount_line_items
			(reception_id, position, parameter, threshold_percent, observed_percent, discount_percent, deducted_weight_kg)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, item := range items {
		_, err := d.db.Exec(ctx, q, receptionID, i+1, string(item.Parameter),
			item.ThresholdPercent.String(), item.ObservedPercent.String(),
			item.DiscountPercent.String(), item.DeductedWeight.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) UpdateReceptionWeights(ctx context.Context, receptionID uuid.UUID, totalDiscount, finalWeight decimal.Decimal) error {
	const q = `
		UPDATE receptions
		SET total_discount_kg = $2, final_weight_kg = $3, updated_at = now()
		WHERE id = $1`
	_, err := d.db.Exec(ctx, q, receptionID, totalDiscount.String(), finalWeight.String())
	return err
}

// LineItemsByReception returns the stored breakdown in evaluation order.
func (d *DB) LineItemsByReception(ctx context.Context, receptionID uuid.UUID) ([]LineItem, error) {
	const q = `
		SELECT parameter, threshold_percent::text, observed_percent::text,
		       discount_percent::text, deducted_weight_kg::text
		FROM discount_line_items
		WHERE reception_id = $1
		ORDER BY position`
	rows, err := d.db.Query(ctx, q, receptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var (
			item                                     LineItem
			parameter                                string
			threshold, observed, discount, deducted string
		)
		if err := rows.Scan(&parameter, &threshold, &observed, &discount, &deducted); err != nil {
			return nil, err
		}
		item.Parameter = Metric(parameter)
		if item.ThresholdPercent, err = decimal.NewFromString(threshold); err != nil {
			return nil, fmt.Errorf("parse threshold percent: %w", err)
		}
		if item.ObservedPercent, err = decimal.NewFromString(observed); err != nil {
			return nil, fmt.Errorf("parse observed percent: %w", err)
		}
		if item.DiscountPercent, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("parse discount percent: %w", err)
		}
		if item.DeductedWeight, err = decimal.NewFromString(deducted); err != nil {
			return nil, fmt.Errorf("parse deducted weight: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
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

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

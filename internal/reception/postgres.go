package reception

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
	db      DBTX
	quality *quality.DB
}

// NewDB wraps a pool or transaction.
func NewDB(db DBTX) *DB {
	return &DB{db: db, quality: quality.NewDB(db)}
}

func (d *DB) GetFruitTypeByCode(ctx context.Context, code string) (FruitType, error) {
	const q = `SELECT id::text, code, name FROM fruit_types WHERE code = $1`
	var (
		ft FruitType
		id string
	)
	if err := d.db.QueryRow(ctx, q, code).Scan(&id, &ft.Code, &ft.Name); err != nil {
		return FruitType{}, err
	}
	var err error
	if ft.ID, err = uuid.Parse(id); err != nil {
		return FruitType{}, fmt.Errorf("parse fruit type id: %w", err)
	}
	return ft, nil
}

const receptionColumns = `
	r.id::text, r.fruit_type_id::text, ft.code, r.supplier_name,
	COALESCE(r.cacao_subtype, ''), r.received_at,
	r.original_weight_kg::text,
	r.total_discount_kg::text, r.final_weight_kg::text,
	r.lab_sample_wet_kg::text, r.lab_sample_dried_kg::text,
	r.pricing_calculation_id::text`

func (d *DB) InsertReception(ctx context.Context, fruitTypeID uuid.UUID, n NewReception) (Reception, error) {
	const q = `
		WITH inserted AS (
			INSERT INTO receptions
				(fruit_type_id, supplier_name, cacao_subtype, received_at,
				 original_weight_kg, lab_sample_wet_kg, lab_sample_dried_kg)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
			RETURNING *
		)
		SELECT ` + receptionColumns + `
		FROM inserted r
		JOIN fruit_types ft ON ft.id = r.fruit_type_id`
	return scanReception(d.db.QueryRow(ctx, q, fruitTypeID, n.SupplierName, n.CacaoSubtype,
		n.ReceivedAt, n.OriginalWeight.String(),
		decimalArg(n.LabSampleWetWeight), decimalArg(n.LabSampleDriedWeight)))
}

func (d *DB) GetReception(ctx context.Context, id uuid.UUID) (Reception, error) {
	const q = `
		SELECT ` + receptionColumns + `
		FROM receptions r
		JOIN fruit_types ft ON ft.id = r.fruit_type_id
		WHERE r.id = $1`
	return scanReception(d.db.QueryRow(ctx, q, id))
}

func (d *DB) ListReceptions(ctx context.Context, limit, offset int) ([]Reception, error) {
	const q = `
		SELECT ` + receptionColumns + `
		FROM receptions r
		JOIN fruit_types ft ON ft.id = r.fruit_type_id
		ORDER BY r.received_at DESC, r.id
		LIMIT $1 OFFSET $2`
	rows, err := d.db.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reception
	for rows.Next() {
		rec, err := scanReception(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) LineItemsByReception(ctx context.Context, receptionID uuid.UUID) ([]quality.LineItem, error) {
	return d.quality.LineItemsByReception(ctx, receptionID)
}

func (d *DB) GetCalculation(ctx context.Context, calculationID uuid.UUID) (CalculationSummary, error) {
	const q = `
		SELECT id::text, currency_code, price_date,
		       price_per_kg::text, gross_amount::text, discount_amount::text, net_amount::text
		FROM pricing_calculations
		WHERE id = $1`
	var (
		c                             CalculationSummary
		id                            string
		price, gross, discount, nett string
	)
	err := d.db.QueryRow(ctx, q, calculationID).Scan(&id, &c.CurrencyCode, &c.PriceDate, &price, &gross, &discount, &nett)
	if err != nil {
		return CalculationSummary{}, err
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return CalculationSummary{}, fmt.Errorf("parse calculation id: %w", err)
	}
	if c.PricePerKG, err = decimal.NewFromString(price); err != nil {
		return CalculationSummary{}, fmt.Errorf("parse price per kg: %w", err)
	}
	if c.GrossAmount, err = decimal.NewFromString(gross); err != nil {
		return CalculationSummary{}, fmt.Errorf("parse gross amount: %w", err)
	}
	if c.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return CalculationSummary{}, fmt.Errorf("parse discount amount: %w", err)
	}
	if c.NetAmount, err = decimal.NewFromString(nett); err != nil {
		return CalculationSummary{}, fmt.Errorf("parse net amount: %w", err)
	}
	return c, nil
}

func scanReception(row pgx.Row) (Reception, error) {
	var (
		rec                        Reception
		id, fruitTypeID            string
		original                   string
		discount, final            *string
		wetSample, driedSample     *string
		pricingID                  *string
	)
	err := row.Scan(&id, &fruitTypeID, &rec.FruitTypeCode, &rec.SupplierName,
		&rec.CacaoSubtype, &rec.ReceivedAt, &original,
		&discount, &final, &wetSample, &driedSample, &pricingID)
	if err != nil {
		return Reception{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return Reception{}, fmt.Errorf("parse reception id: %w", err)
	}
	if rec.FruitTypeID, err = uuid.Parse(fruitTypeID); err != nil {
		return Reception{}, fmt.Errorf("parse fruit type id: %w", err)
	}
	if rec.OriginalWeight, err = decimal.NewFromString(original); err != nil {
		return Reception{}, fmt.Errorf("parse original weight: %w", err)
	}
	if rec.TotalDiscount, err = parseNullableDecimal(discount); err != nil {
		return Reception{}, fmt.Errorf("parse total discount: %w", err)
	}
	if rec.FinalWeight, err = parseNullableDecimal(final); err != nil {
		return Reception{}, fmt.Errorf("parse final weight: %w", err)
	}
	if rec.LabSampleWetWeight, err = parseNullableDecimal(wetSample); err != nil {
		return Reception{}, fmt.Errorf("parse wet sample: %w", err)
	}
	if rec.LabSampleDriedWeight, err = parseNullableDecimal(driedSample); err != nil {
		return Reception{}, fmt.Errorf("parse dried sample: %w", err)
	}
	if pricingID != nil {
		parsed, err := uuid.Parse(*pricingID)
		if err != nil {
			return Reception{}, fmt.Errorf("parse pricing calculation id: %w", err)
		}
		rec.PricingCalculationID = &parsed
	}
	return rec, nil
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

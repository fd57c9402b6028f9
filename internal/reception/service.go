package reception

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/common"
	"github.com/noah-isme/acopio-api/internal/quality"
)

var (
	// ErrReceptionNotFound is returned when the reception does not exist.
	ErrReceptionNotFound = errors.New("reception not found")
	// ErrFruitTypeNotFound is returned when the fruit type code is unknown.
	ErrFruitTypeNotFound = errors.New("fruit type not found")
)

// FruitTypeCacao is the only fruit type that accepts subtypes and lab samples.
const FruitTypeCacao = "cacao"

// FruitType is one product the collection center receives.
type FruitType struct {
	ID   uuid.UUID
	Code string
	Name string
}

// Reception is one delivery of produce from a supplier.
type Reception struct {
	ID                   uuid.UUID
	FruitTypeID          uuid.UUID
	FruitTypeCode        string
	SupplierName         string
	CacaoSubtype         string
	ReceivedAt           time.Time
	OriginalWeight       decimal.Decimal
	TotalDiscount        *decimal.Decimal
	FinalWeight          *decimal.Decimal
	LabSampleWetWeight   *decimal.Decimal
	LabSampleDriedWeight *decimal.Decimal
	PricingCalculationID *uuid.UUID
}

// CalculationSummary is the stored pricing outcome attached to a reception.
type CalculationSummary struct {
	ID             uuid.UUID
	CurrencyCode   string
	PriceDate      time.Time
	PricePerKG     decimal.Decimal
	GrossAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	NetAmount      decimal.Decimal
}

// Detail is a reception with its discount breakdown and pricing, when present.
type Detail struct {
	Reception Reception
	Breakdown []quality.LineItem
	Pricing   *CalculationSummary
}

// NewReception carries the validated input for a reception create.
type NewReception struct {
	FruitTypeCode        string
	SupplierName         string
	CacaoSubtype         string
	ReceivedAt           time.Time
	OriginalWeight       decimal.Decimal
	LabSampleWetWeight   *decimal.Decimal
	LabSampleDriedWeight *decimal.Decimal
}

// Querier captures the database methods required by the reception service.
type Querier interface {
	GetFruitTypeByCode(ctx context.Context, code string) (FruitType, error)
	InsertReception(ctx context.Context, fruitTypeID uuid.UUID, n NewReception) (Reception, error)
	GetReception(ctx context.Context, id uuid.UUID) (Reception, error)
	ListReceptions(ctx context.Context, limit, offset int) ([]Reception, error)
	LineItemsByReception(ctx context.Context, receptionID uuid.UUID) ([]quality.LineItem, error)
	GetCalculation(ctx context.Context, calculationID uuid.UUID) (CalculationSummary, error)
}

// Service manages reception intake and detail views.
type Service struct {
	Q      Querier
	Logger zerolog.Logger
}

// Create validates and stores a new reception. Discounts and pricing come
// later, once a quality reading exists.
func (s *Service) Create(ctx context.Context, n NewReception) (Reception, error) {
	if err := validateNew(&n); err != nil {
		return Reception{}, err
	}
	ft, err := s.Q.GetFruitTypeByCode(ctx, n.FruitTypeCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reception{}, ErrFruitTypeNotFound
		}
		return Reception{}, err
	}
	if n.CacaoSubtype != "" && ft.Code != FruitTypeCacao {
		return Reception{}, common.Validation("cacao_subtype is only valid for cacao receptions", nil)
	}
	return s.Q.InsertReception(ctx, ft.ID, n)
}

// Get returns a reception with its discount breakdown and pricing.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	rec, err := s.Q.GetReception(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, ErrReceptionNotFound
		}
		return Detail{}, err
	}
	detail := Detail{Reception: rec}

	detail.Breakdown, err = s.Q.LineItemsByReception(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if rec.PricingCalculationID != nil {
		calc, err := s.Q.GetCalculation(ctx, *rec.PricingCalculationID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return Detail{}, err
			}
		} else {
			detail.Pricing = &calc
		}
	}
	return detail, nil
}

// List returns receptions ordered by date, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Reception, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Q.ListReceptions(ctx, limit, offset)
}

func validateNew(n *NewReception) error {
	if n.FruitTypeCode == "" {
		return common.Validation("fruit_type is required", nil)
	}
	if n.SupplierName == "" {
		return common.Validation("supplier_name is required", nil)
	}
	if n.OriginalWeight.Sign() <= 0 {
		return common.Validation("original_weight_kg must be positive", nil)
	}
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now().UTC()
	}
	hasSample := n.LabSampleWetWeight != nil || n.LabSampleDriedWeight != nil
	if hasSample {
		if n.CacaoSubtype != quality.SubtypeCacaoVerde {
			return common.Validation("lab sample weights are only valid for cacao-verde receptions", nil)
		}
		if n.LabSampleWetWeight == nil || n.LabSampleDriedWeight == nil {
			return common.Validation("both lab sample weights are required", nil)
		}
		if n.LabSampleWetWeight.Sign() <= 0 || n.LabSampleDriedWeight.Sign() <= 0 {
			return common.Validation("lab sample weights must be positive", nil)
		}
		if n.LabSampleDriedWeight.GreaterThan(*n.LabSampleWetWeight) {
			return common.Validation("dried lab sample cannot outweigh the wet sample", nil)
		}
	}
	return nil
}

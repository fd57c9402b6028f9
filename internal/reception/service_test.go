package reception

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acopio-api/internal/common"
	"github.com/noah-isme/acopio-api/internal/quality"
)

type fakeStore struct {
	fruitTypes map[string]FruitType
	receptions map[uuid.UUID]Reception
}

func newFakeStore() *fakeStore {
	cacao := FruitType{ID: uuid.New(), Code: "cacao", Name: "Cacao"}
	cafe := FruitType{ID: uuid.New(), Code: "cafe", Name: "Café"}
	return &fakeStore{
		fruitTypes: map[string]FruitType{"cacao": cacao, "cafe": cafe},
		receptions: map[uuid.UUID]Reception{},
	}
}

func (f *fakeStore) GetFruitTypeByCode(_ context.Context, code string) (FruitType, error) {
	ft, ok := f.fruitTypes[code]
	if !ok {
		return FruitType{}, pgx.ErrNoRows
	}
	return ft, nil
}

func (f *fakeStore) InsertReception(_ context.Context, fruitTypeID uuid.UUID, n NewReception) (Reception, error) {
	rec := Reception{
		ID:                   uuid.New(),
		FruitTypeID:          fruitTypeID,
		FruitTypeCode:        n.FruitTypeCode,
		SupplierName:         n.SupplierName,
		CacaoSubtype:         n.CacaoSubtype,
		ReceivedAt:           n.ReceivedAt,
		OriginalWeight:       n.OriginalWeight,
		LabSampleWetWeight:   n.LabSampleWetWeight,
		LabSampleDriedWeight: n.LabSampleDriedWeight,
	}
	f.receptions[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) GetReception(_ context.Context, id uuid.UUID) (Reception, error) {
	rec, ok := f.receptions[id]
	if !ok {
		return Reception{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (f *fakeStore) ListReceptions(_ context.Context, limit, offset int) ([]Reception, error) {
	var out []Reception
	for _, rec := range f.receptions {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) LineItemsByReception(context.Context, uuid.UUID) ([]quality.LineItem, error) {
	return nil, nil
}

func (f *fakeStore) GetCalculation(context.Context, uuid.UUID) (CalculationSummary, error) {
	return CalculationSummary{}, pgx.ErrNoRows
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d := dec(t, s)
	return &d
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return &Service{Q: store, Logger: zerolog.Nop()}, store
}

func TestCreateReception(t *testing.T) {
	svc, store := newTestService()

	rec, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:  "cafe",
		SupplierName:   "Finca La Esperanza",
		OriginalWeight: dec(t, "350.5"),
	})
	require.NoError(t, err)
	require.Contains(t, store.receptions, rec.ID)
	require.False(t, rec.ReceivedAt.IsZero(), "missing date defaults to today")
}

func TestCreateRejectsNonPositiveWeight(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:  "cafe",
		SupplierName:   "x",
		OriginalWeight: decimal.Zero,
	})
	requireValidation(t, err)
}

func TestCreateRejectsSubtypeForNonCacao(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:  "cafe",
		SupplierName:   "x",
		CacaoSubtype:   quality.SubtypeCacaoVerde,
		OriginalWeight: dec(t, "10"),
	})
	requireValidation(t, err)
}

func TestCreateRejectsLabSamplesWithoutCacaoVerde(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:      "cacao",
		SupplierName:       "x",
		CacaoSubtype:       "cacao-seco",
		OriginalWeight:     dec(t, "10"),
		LabSampleWetWeight: decPtr(t, "2"),
	})
	requireValidation(t, err)
}

func TestCreateRejectsDriedHeavierThanWet(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:        "cacao",
		SupplierName:         "x",
		CacaoSubtype:         quality.SubtypeCacaoVerde,
		OriginalWeight:       dec(t, "10"),
		LabSampleWetWeight:   decPtr(t, "1.5"),
		LabSampleDriedWeight: decPtr(t, "2"),
	})
	requireValidation(t, err)
}

func TestCreateCacaoVerdeWithSamples(t *testing.T) {
	svc, _ := newTestService()
	rec, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:        "cacao",
		SupplierName:         "Cooperativa Norte",
		CacaoSubtype:         quality.SubtypeCacaoVerde,
		ReceivedAt:           time.Now(),
		OriginalWeight:       dec(t, "120"),
		LabSampleWetWeight:   decPtr(t, "2"),
		LabSampleDriedWeight: decPtr(t, "1.4"),
	})
	require.NoError(t, err)
	require.Equal(t, quality.SubtypeCacaoVerde, rec.CacaoSubtype)
}

func TestCreateUnknownFruitType(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), NewReception{
		FruitTypeCode:  "platano",
		SupplierName:   "x",
		OriginalWeight: dec(t, "10"),
	})
	require.ErrorIs(t, err, ErrFruitTypeNotFound)
}

func TestGetMissingReception(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrReceptionNotFound)
}

func requireValidation(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

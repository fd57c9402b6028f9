package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeTx struct{}

func (fakeTx) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(context.Context) error          { return nil }
func (fakeTx) Rollback(context.Context) error        { return nil }
func (fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (fakeTx) Conn() *pgx.Conn                                         { return nil }

type fakePool struct{}

func (fakePool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) { return fakeTx{}, nil }

type fakeStore struct {
	weights       map[uuid.UUID]ReceptionWeights
	readings      map[uuid.UUID]ReadingRecord
	lineItems     map[uuid.UUID][]LineItem
	insertReadErr error

	storedDiscount map[uuid.UUID]decimal.Decimal
	storedFinal    map[uuid.UUID]decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		weights:        map[uuid.UUID]ReceptionWeights{},
		readings:       map[uuid.UUID]ReadingRecord{},
		lineItems:      map[uuid.UUID][]LineItem{},
		storedDiscount: map[uuid.UUID]decimal.Decimal{},
		storedFinal:    map[uuid.UUID]decimal.Decimal{},
	}
}

func (f *fakeStore) GetReceptionWeights(_ context.Context, id uuid.UUID) (ReceptionWeights, error) {
	w, ok := f.weights[id]
	if !ok {
		return ReceptionWeights{}, pgx.ErrNoRows
	}
	return w, nil
}

func (f *fakeStore) GetReadingByReception(_ context.Context, id uuid.UUID) (ReadingRecord, error) {
	r, ok := f.readings[id]
	if !ok {
		return ReadingRecord{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) InsertReading(_ context.Context, id uuid.UUID, recordedBy string, values MetricValues) (ReadingRecord, error) {
	if f.insertReadErr != nil {
		return ReadingRecord{}, f.insertReadErr
	}
	r := ReadingRecord{ID: uuid.New(), ReceptionID: id, Values: values, RecordedBy: recordedBy}
	f.readings[id] = r
	return r, nil
}

func (f *fakeStore) UpdateReading(_ context.Context, id uuid.UUID, values MetricValues) (ReadingRecord, error) {
	r, ok := f.readings[id]
	if !ok {
		return ReadingRecord{}, pgx.ErrNoRows
	}
	r.Values = values
	f.readings[id] = r
	return r, nil
}

func (f *fakeStore) DeleteLineItems(_ context.Context, id uuid.UUID) error {
	delete(f.lineItems, id)
	return nil
}

func (f *fakeStore) InsertLineItems(_ context.Context, id uuid.UUID, items []LineItem) error {
	f.lineItems[id] = append([]LineItem(nil), items...)
	return nil
}

func (f *fakeStore) UpdateReceptionWeights(_ context.Context, id uuid.UUID, totalDiscount, finalWeight decimal.Decimal) error {
	f.storedDiscount[id] = totalDiscount
	f.storedFinal[id] = finalWeight
	return nil
}

func (f *fakeStore) WithTx(pgx.Tx) Querier { return f }

type fakeThresholds struct {
	thresholds []Threshold
}

func (f fakeThresholds) EnabledThresholds(context.Context, uuid.UUID) ([]Threshold, error) {
	return f.thresholds, nil
}

type fakePricer struct {
	calls        int
	onlyIfPriced []bool
	err          error
}

func (f *fakePricer) Recalculate(_ context.Context, _ uuid.UUID, onlyIfPriced bool) error {
	f.calls++
	f.onlyIfPriced = append(f.onlyIfPriced, onlyIfPriced)
	return f.err
}

func newTestService(store *fakeStore, thresholds []Threshold, pricer Pricer) *Service {
	return &Service{
		Q:          store,
		Pool:       fakePool{},
		Thresholds: fakeThresholds{thresholds: thresholds},
		Pricer:     pricer,
		Logger:     zerolog.Nop(),
	}
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d := dec(t, s)
	return &d
}

func seedReception(store *fakeStore, subtype string, original string) uuid.UUID {
	id := uuid.New()
	w := ReceptionWeights{
		ID:             id,
		FruitTypeID:    uuid.New(),
		Subtype:        subtype,
		OriginalWeight: decimal.RequireFromString(original),
	}
	store.weights[id] = w
	return id
}

func TestCreateReadingComputesAndStores(t *testing.T) {
	store := newFakeStore()
	pricer := &fakePricer{}
	svc := newTestService(store, cacaoThresholds(t), pricer)
	id := seedReception(store, "", "500")

	outcome, err := svc.CreateReading(context.Background(), id, "lab", MetricValues{
		Violetas: decPtr(t, "12"),
		Humedad:  decPtr(t, "18"),
		Moho:     decPtr(t, "7"),
	})
	require.NoError(t, err)

	require.True(t, outcome.FinalWeight.Equal(dec(t, "465.794")), "final: %s", outcome.FinalWeight)
	require.Len(t, store.lineItems[id], 3)
	require.True(t, store.storedDiscount[id].Equal(dec(t, "34.206")))
	require.True(t, store.storedFinal[id].Equal(dec(t, "465.794")))

	require.Equal(t, 1, pricer.calls)
	require.False(t, pricer.onlyIfPriced[0])
}

func TestCreateReadingConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)
	id := seedReception(store, "", "100")

	_, err := svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "7")})
	require.NoError(t, err)

	_, err = svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "8")})
	require.ErrorIs(t, err, ErrReadingExists)
}

func TestCreateReadingConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)
	id := seedReception(store, "", "100")

	// A racing create slips past the exists-check and the insert trips the
	// unique constraint instead.
	store.insertReadErr = &pgconn.PgError{Code: "23505"}

	_, err := svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "7")})
	require.ErrorIs(t, err, ErrReadingExists)
}

func TestCreateReadingReceptionNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), cacaoThresholds(t), nil)
	_, err := svc.CreateReading(context.Background(), uuid.New(), "", MetricValues{Moho: decPtr(t, "7")})
	require.ErrorIs(t, err, ErrReceptionNotFound)
}

func TestUpdateReadingRemovesStaleLineItems(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)
	id := seedReception(store, "", "200")

	_, err := svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "7")})
	require.NoError(t, err)
	require.Len(t, store.lineItems[id], 1)

	// Corrected reading drops below the threshold: no line item may survive.
	outcome, err := svc.UpdateReading(context.Background(), id, MetricValues{Moho: decPtr(t, "3")})
	require.NoError(t, err)
	require.Empty(t, store.lineItems[id])
	require.True(t, outcome.FinalWeight.Equal(dec(t, "200")))
	require.True(t, store.storedDiscount[id].IsZero())
}

func TestUpdateReadingWithoutReading(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)
	id := seedReception(store, "", "100")

	_, err := svc.UpdateReading(context.Background(), id, MetricValues{Moho: decPtr(t, "7")})
	require.ErrorIs(t, err, ErrReadingNotFound)
}

func TestCacaoVerdeLabSampleAdjustment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)

	id := uuid.New()
	store.weights[id] = ReceptionWeights{
		ID:                   id,
		FruitTypeID:          uuid.New(),
		Subtype:              SubtypeCacaoVerde,
		OriginalWeight:       decimal.RequireFromString("100"),
		LabSampleWetWeight:   decimal.RequireFromString("2"),
		LabSampleDriedWeight: decimal.RequireFromString("1.5"),
	}

	outcome, err := svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "7")})
	require.NoError(t, err)

	// Engine alone: 100 - 2 = 98. The drying loss of the lab sample shifts
	// the stored weight to 97.5.
	require.True(t, outcome.Discount.FinalWeight.Equal(dec(t, "98")))
	require.True(t, outcome.FinalWeight.Equal(dec(t, "97.5")), "final: %s", outcome.FinalWeight)
	require.True(t, store.storedFinal[id].Equal(dec(t, "97.5")))
}

func TestLabSampleIgnoredForOtherSubtypes(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)

	id := uuid.New()
	store.weights[id] = ReceptionWeights{
		ID:                   id,
		FruitTypeID:          uuid.New(),
		Subtype:              "cacao-seco",
		OriginalWeight:       decimal.RequireFromString("100"),
		LabSampleWetWeight:   decimal.RequireFromString("2"),
		LabSampleDriedWeight: decimal.RequireFromString("1.5"),
	}

	outcome, err := svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "7")})
	require.NoError(t, err)
	require.True(t, outcome.FinalWeight.Equal(dec(t, "98")))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	store := newFakeStore()
	pricer := &fakePricer{}
	svc := newTestService(store, cacaoThresholds(t), pricer)
	id := seedReception(store, "", "500")

	_, err := svc.CreateReading(context.Background(), id, "", MetricValues{
		Violetas: decPtr(t, "12"),
		Humedad:  decPtr(t, "18"),
		Moho:     decPtr(t, "7"),
	})
	require.NoError(t, err)
	firstFinal := store.storedFinal[id]
	firstItems := len(store.lineItems[id])

	require.NoError(t, svc.Recompute(context.Background(), id))
	require.NoError(t, svc.Recompute(context.Background(), id))

	require.True(t, store.storedFinal[id].Equal(firstFinal))
	require.Len(t, store.lineItems[id], firstItems)

	// Background recomputes only refresh already priced receptions.
	require.True(t, pricer.onlyIfPriced[len(pricer.onlyIfPriced)-1])
}

func TestRecomputeWithoutReadingIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, cacaoThresholds(t), nil)
	id := seedReception(store, "", "100")

	require.NoError(t, svc.Recompute(context.Background(), id))
	require.Empty(t, store.lineItems[id])
	_, stored := store.storedFinal[id]
	require.False(t, stored)
}

func TestCreateReadingSurvivesPricingFailure(t *testing.T) {
	store := newFakeStore()
	pricer := &fakePricer{err: errors.New("price service down")}
	svc := newTestService(store, cacaoThresholds(t), pricer)
	id := seedReception(store, "", "100")

	_, err := svc.CreateReading(context.Background(), id, "", MetricValues{Moho: decPtr(t, "7")})
	require.NoError(t, err)
	require.Len(t, store.lineItems[id], 1)
}

package threshold

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acopio-api/internal/quality"
	"github.com/noah-isme/acopio-api/internal/queue"
)

type fakeStore struct {
	rows       map[uuid.UUID]Row
	receptions map[uuid.UUID][]uuid.UUID
	listCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:       map[uuid.UUID]Row{},
		receptions: map[uuid.UUID][]uuid.UUID{},
	}
}

func (f *fakeStore) ListEnabledByFruitType(_ context.Context, fruitTypeID uuid.UUID) ([]quality.Threshold, error) {
	f.listCalls++
	var out []quality.Threshold
	for _, row := range f.rows {
		if row.FruitTypeID == fruitTypeID && row.Enabled {
			out = append(out, quality.Threshold{Metric: row.Metric, LimitPercent: row.LimitPercent})
		}
	}
	return out, nil
}

func (f *fakeStore) ListByFruitType(_ context.Context, fruitTypeID uuid.UUID) ([]Row, error) {
	var out []Row
	for _, row := range f.rows {
		if row.FruitTypeID == fruitTypeID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, fruitTypeID uuid.UUID, metric quality.Metric, limit decimal.Decimal) (Row, error) {
	row := Row{ID: uuid.New(), FruitTypeID: fruitTypeID, Metric: metric, LimitPercent: limit, Enabled: true}
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeStore) Update(_ context.Context, id uuid.UUID, limit decimal.Decimal, enabled bool) (Row, error) {
	row, ok := f.rows[id]
	if !ok {
		return Row{}, pgx.ErrNoRows
	}
	row.LimitPercent = limit
	row.Enabled = enabled
	f.rows[id] = row
	return row, nil
}

func (f *fakeStore) ListReceptionIDsByFruitType(_ context.Context, fruitTypeID uuid.UUID) ([]uuid.UUID, error) {
	return f.receptions[fruitTypeID], nil
}

type fakeEnqueuer struct {
	tasks []queue.Task
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t queue.Task) error {
	f.tasks = append(f.tasks, t)
	return nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	return &Cache{
		R:      redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Prefix: "test",
		TTL:    time.Minute,
	}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestEnabledThresholdsCachesResult(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Q: store, Cache: newTestCache(t), Logger: zerolog.Nop()}
	fruitType := uuid.New()
	_, err := store.Insert(context.Background(), fruitType, quality.MetricMoho, dec(t, "5"))
	require.NoError(t, err)

	first, err := svc.EnabledThresholds(context.Background(), fruitType)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.EnabledThresholds(context.Background(), fruitType)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 1, store.listCalls, "second read must come from cache")
}

func TestCreateInvalidatesCacheAndFansOut(t *testing.T) {
	store := newFakeStore()
	enq := &fakeEnqueuer{}
	svc := &Service{Q: store, Cache: newTestCache(t), Enqueue: enq, Logger: zerolog.Nop()}
	fruitType := uuid.New()
	receptionID := uuid.New()
	store.receptions[fruitType] = []uuid.UUID{receptionID}

	// Warm the cache with the empty threshold set.
	_, err := svc.EnabledThresholds(context.Background(), fruitType)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), fruitType, quality.MetricHumedad, dec(t, "15"))
	require.NoError(t, err)

	thresholds, err := svc.EnabledThresholds(context.Background(), fruitType)
	require.NoError(t, err)
	require.Len(t, thresholds, 1, "stale cache must not survive a create")

	require.Len(t, enq.tasks, 1)
	require.Equal(t, quality.TaskReceptionRecompute, enq.tasks[0].Kind)
	require.Equal(t, receptionID.String(), enq.tasks[0].IdempotencyKey)
}

func TestUpdateDisablesWithoutDeleting(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Q: store, Cache: newTestCache(t), Logger: zerolog.Nop()}
	fruitType := uuid.New()

	row, err := svc.Create(context.Background(), fruitType, quality.MetricVioletas, dec(t, "10"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), row.ID, dec(t, "10"), false)
	require.NoError(t, err)

	enabled, err := svc.EnabledThresholds(context.Background(), fruitType)
	require.NoError(t, err)
	require.Empty(t, enabled)

	all, err := svc.List(context.Background(), fruitType)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.False(t, all[0].Enabled)
}

func TestUpdateMissingThreshold(t *testing.T) {
	svc := &Service{Q: newFakeStore(), Cache: newTestCache(t), Logger: zerolog.Nop()}
	_, err := svc.Update(context.Background(), uuid.New(), dec(t, "5"), true)
	require.ErrorIs(t, err, ErrThresholdNotFound)
}

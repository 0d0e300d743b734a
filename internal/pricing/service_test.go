package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockQueries struct {
	totals      []MarketTotal
	totalsCalls atomic.Int32
	gate        chan struct{}
	missing     []MissingProduct
}

func (m *mockQueries) CalculateTotals(ctx context.Context, listID uuid.UUID) ([]MarketTotal, error) {
	m.totalsCalls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	return m.totals, nil
}

func (m *mockQueries) CompareTwoMarkets(ctx context.Context, listID, a, b uuid.UUID) ([]MarketComparison, error) {
	priceA := 10.5
	return []MarketComparison{{ProductID: uuid.New(), ProductName: "Arroz", PriceA: &priceA, Cheaper: "a", MissingIn: []string{"b"}}}, nil
}

func (m *mockQueries) FoundProducts(ctx context.Context, listID, supermarketID uuid.UUID) ([]FoundProduct, error) {
	return []FoundProduct{{ProductID: uuid.New(), ProductName: "Leite", Price: 4.99, Quantity: 2}}, nil
}

func (m *mockQueries) MissingProducts(ctx context.Context, listID, supermarketID uuid.UUID) ([]MissingProduct, error) {
	return m.missing, nil
}

func newTestService(t *testing.T, q Queries) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(q, NewCache(client, time.Minute), nil)
}

func TestTotalsCachesUntilBump(t *testing.T) {
	q := &mockQueries{totals: []MarketTotal{{SupermarketID: uuid.New(), SupermarketName: "Atacadão", TotalAmount: 120.4, FoundCount: 9, MissingCount: 1}}}
	svc := newTestService(t, q)
	ctx := context.Background()
	listID := uuid.New()

	first, err := svc.Totals(ctx, listID)
	require.NoError(t, err)
	require.Equal(t, q.totals, first)

	second, err := svc.Totals(ctx, listID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, q.totalsCalls.Load())

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Totals(ctx, listID)
	require.NoError(t, err)
	require.EqualValues(t, 2, q.totalsCalls.Load())
}

func TestTotalsCollapsesConcurrentLoads(t *testing.T) {
	q := &mockQueries{gate: make(chan struct{})}
	svc := newTestService(t, q)
	listID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Totals(context.Background(), listID)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return q.totalsCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(q.gate)
	wg.Wait()
	require.EqualValues(t, 1, q.totalsCalls.Load())
}

func TestServiceWithoutRedis(t *testing.T) {
	svc := NewService(&mockQueries{}, NewCache(nil, time.Minute), nil)
	rows, err := svc.Compare(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []string{"b"}, rows[0].MissingIn)
	require.NoError(t, svc.Invalidate(context.Background()))
}

func TestServiceRejectsNilIDs(t *testing.T) {
	svc := NewService(&mockQueries{}, nil, nil)
	_, err := svc.Totals(context.Background(), uuid.Nil)
	require.Error(t, err)
	_, err = svc.Compare(context.Background(), uuid.New(), uuid.Nil, uuid.New())
	require.Error(t, err)
	_, err = svc.Found(context.Background(), uuid.New(), uuid.Nil)
	require.Error(t, err)
}

func TestCacheVersionInitialisesAndBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "pricing", "totals", "x")
	require.NoError(t, err)
	require.Equal(t, "pricing:totals:x:v1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "pricing", "totals", "x")
	require.NoError(t, err)
	require.Equal(t, "pricing:totals:x:v2", key)
}

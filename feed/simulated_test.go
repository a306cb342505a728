package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-feed-go/infrastructure/alert"
	"market-feed-go/infrastructure/monitor"
	"market-feed-go/market"
	"market-feed-go/sim"
)

var _ Source = (*Simulated)(nil)

func newSeededSimulated(store PriceWriter, interval time.Duration, mon *monitor.Monitor) *Simulated {
	return NewSimulated(store, SimulatedOptions{
		Interval:  interval,
		Generator: []sim.Option{sim.WithSeedPrices(map[string]float64{"A": 100, "B": 50})},
		Monitor:   mon,
	}, nil)
}

func TestSimulatedStartSeedsStore(t *testing.T) {
	store := market.NewStore()
	s := newSeededSimulated(store, time.Hour, nil)
	require.NoError(t, s.Start(context.Background(), []string{"a", " B "}))
	defer s.Stop()

	a, ok := store.Read("A")
	require.True(t, ok)
	assert.Equal(t, 100.0, a.Price)
	assert.Equal(t, 100.0, a.PreviousPrice)
	assert.Equal(t, market.DirectionFlat, a.Direction())

	b, ok := store.Read("B")
	require.True(t, ok)
	assert.Equal(t, 50.0, b.Price)
	assert.Equal(t, market.DirectionFlat, b.Direction())

	assert.ElementsMatch(t, []string{"A", "B"}, s.Symbols())
}

func TestSimulatedTicksUpdateStore(t *testing.T) {
	store := market.NewStore()
	mon := monitor.New(monitor.DefaultConfig())
	s := newSeededSimulated(store, 5*time.Millisecond, mon)
	require.NoError(t, s.Start(context.Background(), []string{"A", "B"}))
	defer s.Stop()

	v := store.Version()
	require.Eventually(t, func() bool { return store.Version() > v }, time.Second, 5*time.Millisecond)
	assert.Greater(t, metricSum(t, mon, "feed_market_ticks_total"), 0.0)

	a, ok := store.Read("A")
	require.True(t, ok)
	assert.Greater(t, a.Price, 0.0)
}

func TestSimulatedAddAndRemoveSymbol(t *testing.T) {
	store := market.NewStore()
	s := newSeededSimulated(store, 2*time.Millisecond, nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, []string{"A"}))
	defer s.Stop()

	require.NoError(t, s.AddSymbol(ctx, "tsla"))
	snap, ok := store.Read("TSLA")
	require.True(t, ok, "added symbol must be readable immediately")
	assert.Greater(t, snap.Price, 0.0)
	assert.Contains(t, s.Symbols(), "TSLA")

	require.NoError(t, s.RemoveSymbol(ctx, "TSLA"))
	_, ok = store.Read("TSLA")
	assert.False(t, ok)
	// 后续周期不能把已删除的标的写回
	time.Sleep(20 * time.Millisecond)
	_, ok = store.Read("TSLA")
	assert.False(t, ok)
	assert.NotContains(t, s.Symbols(), "TSLA")
}

func TestSimulatedLifecycleErrors(t *testing.T) {
	store := market.NewStore()
	s := newSeededSimulated(store, time.Hour, nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.AddSymbol(ctx, "A"), ErrNotStarted)
	assert.NoError(t, s.Stop(), "stop before start is a no-op")
	assert.Empty(t, s.Symbols())

	store.Write("X", 10, 0)
	assert.NoError(t, s.RemoveSymbol(ctx, "x"))
	assert.False(t, store.Has("X"))
	assert.ErrorIs(t, s.RemoveSymbol(ctx, "  "), ErrEmptySymbol)

	require.NoError(t, s.Start(ctx, []string{"A"}))
	assert.ErrorIs(t, s.Start(ctx, []string{"A"}), ErrAlreadyStarted)
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestSimulatedSecondStopLeavesStoreUnchanged(t *testing.T) {
	store := market.NewStore()
	s := newSeededSimulated(store, 2*time.Millisecond, nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, []string{"A", "B"}))

	v0 := store.Version()
	require.Eventually(t, func() bool { return store.Version() > v0 }, time.Second, 2*time.Millisecond)
	require.NoError(t, s.Stop())

	v := store.Version()
	prices := store.ReadAll()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Stop())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, v, store.Version(), "no writes after the first stop")
	assert.Equal(t, prices, store.ReadAll())
}

func TestSimulatedStopClearsGenerator(t *testing.T) {
	store := market.NewStore()
	s := newSeededSimulated(store, time.Hour, nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, []string{"A", "B"}))
	require.NoError(t, s.Stop())

	assert.Empty(t, s.Symbols())
	assert.ErrorIs(t, s.AddSymbol(ctx, "C"), ErrNotStarted)
	assert.False(t, store.Has("C"))
	// 停止后缓存保留最后的价格
	assert.True(t, store.Has("A"))

	// 可以重新启动
	require.NoError(t, s.Start(ctx, []string{"C"}))
	defer s.Stop()
	assert.Equal(t, []string{"C"}, s.Symbols())
}

type fixedCorrelation float64

func (f fixedCorrelation) Correlation(a, b string) float64 { return float64(f) }

func TestSimulatedStartFailsOnInvalidCorrelation(t *testing.T) {
	s := NewSimulated(market.NewStore(), SimulatedOptions{
		Generator: []sim.Option{sim.WithCorrelation(fixedCorrelation(-0.9))},
	}, nil)
	err := s.Start(context.Background(), []string{"A", "B", "C"})
	assert.ErrorIs(t, err, sim.ErrNotPositiveDefinite)
	assert.Empty(t, s.Symbols())
	assert.NoError(t, s.Stop())
}

func TestSimulatedStopsWithContext(t *testing.T) {
	s := newSeededSimulated(market.NewStore(), time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, []string{"A"}))
	cancel()
	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}

type flakyStore struct {
	*market.Store
	panicking atomic.Bool
}

func (f *flakyStore) Write(symbol string, price, ts float64) market.Snapshot {
	if f.panicking.Load() {
		panic("write failed")
	}
	return f.Store.Write(symbol, price, ts)
}

func TestSimulatedRecoversFromTickPanic(t *testing.T) {
	store := &flakyStore{Store: market.NewStore()}
	mon := monitor.New(monitor.DefaultConfig())
	s := newSeededSimulated(store, 2*time.Millisecond, mon)
	require.NoError(t, s.Start(context.Background(), []string{"A"}))
	defer s.Stop()

	store.panicking.Store(true)
	require.Eventually(t, func() bool {
		return metricSum(t, mon, "feed_market_tick_errors_total") > 0
	}, time.Second, 2*time.Millisecond)

	store.panicking.Store(false)
	v := store.Version()
	require.Eventually(t, func() bool { return store.Version() > v }, time.Second, 2*time.Millisecond,
		"loop must keep running after a failed tick")
}

func TestSimulatedTickPanicRaisesThrottledAlert(t *testing.T) {
	store := &flakyStore{Store: market.NewStore()}
	mem := alert.NewMemoryChannel("mem")
	mon := monitor.New(monitor.DefaultConfig())
	s := NewSimulated(store, SimulatedOptions{
		Interval:  2 * time.Millisecond,
		Generator: []sim.Option{sim.WithSeedPrices(map[string]float64{"A": 100})},
		Monitor:   mon,
		Alerts:    alert.NewManager([]alert.Channel{mem}, time.Hour),
	}, nil)
	require.NoError(t, s.Start(context.Background(), []string{"A"}))
	defer s.Stop()

	store.panicking.Store(true)
	require.Eventually(t, func() bool {
		return metricSum(t, mon, "feed_market_tick_errors_total") >= 3
	}, time.Second, 2*time.Millisecond)
	store.panicking.Store(false)

	assert.Equal(t, 1, mem.Count(alert.LevelError), "repeated failures are throttled")
	a := mem.Alerts()[0]
	assert.Equal(t, "simulated", a.Source)
	assert.Equal(t, "write failed", a.Fields["panic"])
}

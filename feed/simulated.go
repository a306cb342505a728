package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/infrastructure/alert"
	"market-feed-go/infrastructure/monitor"
	"market-feed-go/sim"
)

const sourceSimulated = "simulated"

type SimulatedOptions struct {
	Interval         time.Duration // 默认 500ms
	ShockProbability float64       // <0 表示关闭冲击；0 使用默认 0.001
	ShockMin         float64
	ShockMax         float64
	Generator        []sim.Option // 额外的生成器选项（随机源、种子价等）
	Monitor          *monitor.Monitor
	Alerts           *alert.Manager
}

// Simulated 每个周期推进一次 GBM 生成器并写入全部价格。
// 生成器的 Step/AddSymbol/RemoveSymbol 都在 mu 下执行，
// 所以删除后的标的不会被进行中的周期重新写回缓存。
type Simulated struct {
	store PriceWriter
	opts  SimulatedOptions
	log   *zap.Logger

	mu     sync.Mutex
	gen    *sim.Generator
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSimulated(store PriceWriter, opts SimulatedOptions, log *zap.Logger) *Simulated {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.ShockProbability == 0 {
		opts.ShockProbability = sim.DefaultShockProbability
	}
	if opts.ShockProbability < 0 {
		opts.ShockProbability = 0
	}
	if opts.ShockMax <= 0 {
		opts.ShockMin, opts.ShockMax = sim.DefaultShockMin, sim.DefaultShockMax
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulated{store: store, opts: opts, log: log.With(zap.String("source", sourceSimulated))}
}

func (s *Simulated) Start(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	symbols = config.NormalizeSymbols(symbols)

	opts := []sim.Option{
		sim.WithShockProbability(s.opts.ShockProbability),
		sim.WithShockBand(s.opts.ShockMin, s.opts.ShockMax),
		sim.WithDt(s.opts.Interval.Seconds() / sim.TradingSecondsPerYear),
		sim.WithLogger(s.log),
	}
	gen, err := sim.NewGenerator(symbols, append(opts, s.opts.Generator...)...)
	if err != nil {
		return fmt.Errorf("start simulator: %w", err)
	}
	s.gen = gen
	// 先写入初始价格，首个周期之前读方就有数据
	for _, sym := range gen.Symbols() {
		if p, ok := gen.Price(sym); ok {
			s.store.Write(sym, p, 0)
		}
	}
	s.opts.Monitor.UpdateSymbols(len(symbols))

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)

	s.log.Info("simulator started", zap.Int("symbols", len(symbols)), zap.Duration("interval", s.opts.Interval))
	return nil
}

func (s *Simulated) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick()
		}
	}
}

// tick 单个周期；panic 只影响本周期。
func (s *Simulated) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("simulator step failed", zap.Any("panic", r))
			s.opts.Monitor.RecordTickError(sourceSimulated)
			_ = s.opts.Alerts.SendError(sourceSimulated, "simulator step failed", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return
	}
	for sym, p := range s.gen.Step() {
		s.store.Write(sym, p, 0)
	}
	s.opts.Monitor.RecordTick(sourceSimulated)
}

// Stop 停止周期并丢弃生成器状态；之后 AddSymbol 返回 ErrNotStarted，缓存保持停止时的样子。
func (s *Simulated) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.gen = nil, nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.log.Info("simulator stopped")
	return nil
}

// AddSymbol 加入生成器并立即写入初始价格；已存在时只刷新一次缓存。
func (s *Simulated) AddSymbol(ctx context.Context, symbol string) error {
	symbol = config.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return ErrNotStarted
	}
	if err := s.gen.AddSymbol(symbol); err != nil {
		return err
	}
	if p, ok := s.gen.Price(symbol); ok {
		s.store.Write(symbol, p, 0)
	}
	s.opts.Monitor.UpdateSymbols(len(s.gen.Symbols()))
	s.log.Info("symbol added", zap.String("symbol", symbol))
	return nil
}

// RemoveSymbol 未启动时也会清理缓存。
func (s *Simulated) RemoveSymbol(ctx context.Context, symbol string) error {
	symbol = config.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != nil {
		if err := s.gen.RemoveSymbol(symbol); err != nil {
			return err
		}
		s.opts.Monitor.UpdateSymbols(len(s.gen.Symbols()))
	}
	s.store.Remove(symbol)
	s.log.Info("symbol removed", zap.String("symbol", symbol))
	return nil
}

func (s *Simulated) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return []string{}
	}
	return s.gen.Symbols()
}

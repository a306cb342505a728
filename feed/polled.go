package feed

import (
	"context"
	"io"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/infrastructure/alert"
	"market-feed-go/infrastructure/monitor"
)

const sourcePolled = "polled"

const (
	defaultFailureThreshold = 3

	alertPollFailing   = "market data poll failing"
	alertPollRecovered = "market data poll recovered"
)

type PolledOptions struct {
	Interval         time.Duration // 默认 15s（免费档 5 次/分钟）
	Monitor          *monitor.Monitor
	Alerts           *alert.Manager
	FailureThreshold int // 连续失败多少次后告警，默认 3
}

// Polled 周期性拉取远端快照写入缓存。拉取失败时保留旧值。
type Polled struct {
	store   PriceWriter
	fetcher SnapshotFetcher
	opts    PolledOptions
	log     *zap.Logger

	mu      sync.Mutex
	symbols []string
	cancel  context.CancelFunc
	done    chan struct{}

	failures atomic.Int64 // 连续失败次数，成功一次清零
}

func NewPolled(store PriceWriter, fetcher SnapshotFetcher, opts PolledOptions, log *zap.Logger) *Polled {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Polled{store: store, fetcher: fetcher, opts: opts, log: log.With(zap.String("source", sourcePolled))}
}

// Start 立即拉取一次，之后按周期拉取。首次拉取失败不会让 Start 失败。
func (p *Polled) Start(ctx context.Context, symbols []string) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.symbols = config.NormalizeSymbols(symbols)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	n := len(p.symbols)
	p.mu.Unlock()

	p.opts.Monitor.UpdateSymbols(n)
	p.pollOnce(runCtx)
	go p.run(runCtx, done)

	p.log.Info("poller started", zap.Int("symbols", n), zap.Duration("interval", p.opts.Interval))
	return nil
}

func (p *Polled) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(p.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce 一个拉取周期；远端请求不持有任何锁。
func (p *Polled) pollOnce(ctx context.Context) {
	tickers := p.Symbols()
	if len(tickers) == 0 {
		return
	}
	snaps, err := p.fetcher.FetchSnapshots(ctx, tickers)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Error("poll failed", zap.Error(err), zap.Int("symbols", len(tickers)))
		p.opts.Monitor.RecordPollFailure()
		p.opts.Monitor.RecordTickError(sourcePolled)
		if n := p.failures.Add(1); n >= int64(p.opts.FailureThreshold) {
			_ = p.opts.Alerts.SendWarning(sourcePolled, alertPollFailing, map[string]interface{}{
				"consecutive": n,
				"error":       err.Error(),
				"symbols":     len(tickers),
			})
		}
		return
	}
	if n := p.failures.Swap(0); n >= int64(p.opts.FailureThreshold) {
		p.opts.Alerts.Resolve(alert.LevelWarning, sourcePolled, alertPollFailing)
		_ = p.opts.Alerts.SendInfo(sourcePolled, alertPollRecovered, map[string]interface{}{"failed_polls": n})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	processed := 0
	for _, snap := range snaps {
		sym := config.NormalizeSymbol(snap.Ticker)
		lt := snap.LastTrade
		if sym == "" || lt == nil || !(lt.Price > 0) || math.IsInf(lt.Price, 0) {
			p.log.Warn("skipping malformed snapshot", zap.String("symbol", snap.Ticker))
			p.opts.Monitor.RecordSkippedRecord()
			continue
		}
		// 拉取期间被移除的标的不再写回
		if !slices.Contains(p.symbols, sym) {
			continue
		}
		p.store.Write(sym, lt.Price, float64(lt.Timestamp)/1000.0)
		processed++
	}
	p.opts.Monitor.RecordTick(sourcePolled)
	p.log.Debug("poll done", zap.Int("updated", processed), zap.Int("symbols", len(p.symbols)))
}

func (p *Polled) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	if c, ok := p.fetcher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			p.log.Warn("close fetcher", zap.Error(err))
		}
	}
	p.log.Info("poller stopped")
	return nil
}

// AddSymbol 只更新列表，价格在下一次拉取后出现。
func (p *Polled) AddSymbol(ctx context.Context, symbol string) error {
	symbol = config.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	p.mu.Lock()
	if !slices.Contains(p.symbols, symbol) {
		p.symbols = append(p.symbols, symbol)
	}
	n := len(p.symbols)
	p.mu.Unlock()
	p.opts.Monitor.UpdateSymbols(n)
	p.log.Info("symbol added, visible after next poll", zap.String("symbol", symbol))
	return nil
}

func (p *Polled) RemoveSymbol(ctx context.Context, symbol string) error {
	symbol = config.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	p.mu.Lock()
	p.symbols = slices.DeleteFunc(p.symbols, func(s string) bool { return s == symbol })
	p.store.Remove(symbol)
	n := len(p.symbols)
	p.mu.Unlock()
	p.opts.Monitor.UpdateSymbols(n)
	p.log.Info("symbol removed", zap.String("symbol", symbol))
	return nil
}

func (p *Polled) Symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.symbols)
}

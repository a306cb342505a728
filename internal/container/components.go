package container

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/feed"
	"market-feed-go/mirror"
	"market-feed-go/stream"
)

// sourceComponent 行情源
type sourceComponent struct {
	source  feed.Source
	symbols []string
	started bool
	mu      sync.Mutex
}

func (s *sourceComponent) Name() string { return "feed_source" }

func (s *sourceComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.source.Start(ctx, s.symbols); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *sourceComponent) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return s.source.Stop()
}

func (s *sourceComponent) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("feed source not started")
	}
	return nil
}

// mirrorComponent 以推送流的方式驱动 Redis 镜像
type mirrorComponent struct {
	mirror   *mirror.Redis
	store    stream.Reader
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (m *mirrorComponent) Name() string { return "redis_mirror" }

func (m *mirrorComponent) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	// Redis 暂时不可用不阻止启动，写入失败会记日志和指标
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := m.mirror.Ping(pingCtx); err != nil {
		m.log.Warn("redis mirror unreachable at startup", zap.Error(err))
	}
	pingCancel()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel, m.done = cancel, make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := stream.Run(runCtx, m.mirror, m.store, m.interval); err != nil {
			m.log.Error("redis mirror stopped", zap.Error(err))
		}
	}(m.done)
	return nil
}

func (m *mirrorComponent) Stop() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return m.mirror.Close()
}

func (m *mirrorComponent) Health() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return errors.New("redis mirror not running")
	}
	return nil
}

// watcherComponent 配置文件变化时把 feed.symbols 同步到运行中的行情源
type watcherComponent struct {
	watcher config.Watcher
	source  feed.Source
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watcherComponent) Name() string { return "config_watcher" }

func (w *watcherComponent) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel, w.done = cancel, make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		err := w.watcher.Start(runCtx, func(cfg config.AppConfig) {
			reconcileSymbols(runCtx, w.source, cfg.Feed.Symbols, w.log)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("config watcher stopped", zap.Error(err))
		}
	}(w.done)
	return nil
}

func (w *watcherComponent) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (w *watcherComponent) Health() error { return nil }

// reconcileSymbols 加入缺少的标的、移除多余的标的
func reconcileSymbols(ctx context.Context, src feed.Source, desired []string, log *zap.Logger) {
	desired = config.NormalizeSymbols(desired)
	current := src.Symbols()
	for _, sym := range desired {
		if slices.Contains(current, sym) {
			continue
		}
		if err := src.AddSymbol(ctx, sym); err != nil {
			log.Warn("add symbol failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
	for _, sym := range current {
		if slices.Contains(desired, sym) {
			continue
		}
		if err := src.RemoveSymbol(ctx, sym); err != nil {
			log.Warn("remove symbol failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
}

package config

import (
	"context"
	"os"
	"testing"
	"time"
)

const watchedConfig = `
env: dev
feed:
  symbols: [AAPL, MSFT]
`

func TestWatcherStopsOnCancel(t *testing.T) {
	path := writeTempConfig(t, watchedConfig)
	w := Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Start(ctx, nil); err == nil {
		t.Fatalf("expected context cancellation")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	w := Watcher{Path: "/nonexistent-dir-for-test/cfg.yaml"}
	if err := w.Start(context.Background(), nil); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, watchedConfig)

	w := Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 8)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) { ch <- cfg })
	}()

	updated := `
env: dev
feed:
  symbols: [AAPL, TSLA]
`
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			// 写入过程中可能读到不完整但合法的文件，只认最终内容
			if len(cfg.Feed.Symbols) == 2 && cfg.Feed.Symbols[1] == "TSLA" {
				return
			}
		case <-tick.C:
			// 监听 goroutine 启动前的写入可能被错过，持续写直到收到回调
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
		case <-deadline:
			t.Fatalf("expected update callback")
		}
	}
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, watchedConfig)

	w := Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 8)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) { ch <- cfg })
	}()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("env: \"\"\n"), 0o644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config must not be delivered: %+v", cfg)
	case <-time.After(200 * time.Millisecond):
	}
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 基于 fsnotify 监听配置文件，变化时重新加载并回调。
// 监听的是所在目录，编辑器“写临时文件再改名”的保存方式也能捕获。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 两次回调的最小间隔
	Log      *zap.Logger
}

// Start blocks until ctx is done; onUpdate receives every successfully loaded config.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if w.Cooldown > 0 && time.Since(last) < w.Cooldown {
				continue
			}
			cfg, err := LoadWithEnvOverrides(target)
			if err != nil {
				log.Warn("config reload rejected", zap.String("path", target), zap.Error(err))
				continue
			}
			last = time.Now()
			log.Info("config reloaded", zap.String("path", target))
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}

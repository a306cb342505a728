package container

import (
	"context"
	"fmt"
	"strings"

	"market-feed-go/config"
	"market-feed-go/feed"
	"market-feed-go/infrastructure/alert"
	"market-feed-go/infrastructure/logger"
	"market-feed-go/infrastructure/monitor"
	"market-feed-go/market"
	"market-feed-go/mirror"
	"market-feed-go/stream"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	store  *market.Store
	source feed.Source
	stream *stream.Server
	mirror *mirror.Redis

	// HTTP服务器
	streamServer  *httpServerComponent
	metricsServer *httpServerComponent

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 加载配置（环境变量优先）并创建 Container；configPath 为空时使用默认配置
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, configPath), nil
}

// NewWithConfig 使用已加载的配置；configPath 非空时会监听其变化
func NewWithConfig(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        &cfg,
		configPath: configPath,
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildFeed(); err != nil {
		return fmt.Errorf("build feed failed: %w", err)
	}

	c.buildStream()
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(logger.FromAppConfig(c.cfg.Log))
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", c.logger.Logger),
	}, c.cfg.Alert.Throttle())
	c.lifecycle = NewLifecycleManager(c.logger.Logger)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildFeed() error {
	c.store = market.NewStore()
	c.monitor.ObserveStoreVersion(c.store.Version)

	src, err := feed.NewSource(c.cfg.Feed, c.store, feed.Deps{
		Log:              c.logger.Logger,
		Monitor:          c.monitor,
		Alerts:           c.alerts,
		FailureThreshold: c.cfg.Alert.FailureThreshold,
	})
	if err != nil {
		return err
	}
	c.source = src

	c.logger.LogFeed("feed_built", map[string]interface{}{
		"symbols": len(c.cfg.Feed.Symbols),
		"polled":  strings.TrimSpace(c.cfg.Feed.Massive.APIKey) != "",
	})
	return nil
}

func (c *Container) buildStream() {
	c.stream = stream.NewServer(c.store, c.cfg.Stream, c.logger.Logger, c.monitor)
	if c.cfg.Redis.Addr != "" {
		c.mirror = mirror.NewRedis(c.cfg.Redis, c.logger.Logger, c.monitor)
	}
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&sourceComponent{
		source:  c.source,
		symbols: c.cfg.Feed.Symbols,
	})

	if c.mirror != nil {
		c.lifecycle.Register(&mirrorComponent{
			mirror:   c.mirror,
			store:    c.store,
			interval: c.cfg.Stream.Interval(),
			log:      c.logger.Logger,
		})
	}

	c.streamServer = &httpServerComponent{
		name:    "stream_server",
		handler: c.stream.Handler(),
		addr:    c.cfg.Stream.Addr,
		log:     c.logger.Logger,
		onStop:  c.stream.Close,
	}
	c.lifecycle.Register(c.streamServer)

	if c.cfg.Metrics.Addr != "" {
		c.metricsServer = &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			log:     c.logger.Logger,
		}
		c.lifecycle.Register(c.metricsServer)
	}

	if c.configPath != "" {
		c.lifecycle.Register(&watcherComponent{
			watcher: config.Watcher{Path: c.configPath, Log: c.logger.Logger},
			source:  c.source,
			log:     c.logger.Logger,
		})
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Store 价格缓存
func (c *Container) Store() *market.Store { return c.store }

// Alerts 告警管理器
func (c *Container) Alerts() *alert.Manager { return c.alerts }

// Source 当前行情源
func (c *Container) Source() feed.Source { return c.source }

// StreamAddr 推送服务实际监听地址
func (c *Container) StreamAddr() string {
	if c.streamServer == nil {
		return ""
	}
	return c.streamServer.Addr()
}

// MetricsAddr metrics 服务实际监听地址
func (c *Container) MetricsAddr() string {
	if c.metricsServer == nil {
		return ""
	}
	return c.metricsServer.Addr()
}

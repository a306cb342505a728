package feed

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/gateway"
	"market-feed-go/infrastructure/alert"
	"market-feed-go/infrastructure/monitor"
)

// Deps 行情源共用的基础设施，都可以为 nil。
type Deps struct {
	Log              *zap.Logger
	Monitor          *monitor.Monitor
	Alerts           *alert.Manager
	FailureThreshold int
}

// NewSource 按配置选择行情源：API key 非空用轮询源，否则用模拟源。返回未启动的 Source。
func NewSource(cfg config.FeedConfig, store PriceWriter, deps Deps) (Source, error) {
	log, mon := deps.Log, deps.Monitor
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		return nil, errors.New("feed: store is required")
	}
	key := strings.TrimSpace(cfg.Massive.APIKey)
	if key != "" {
		if cfg.Massive.BaseURL == "" {
			return nil, errors.New("feed: massive base url is required")
		}
		client := gateway.NewMassiveClient(cfg.Massive.BaseURL, key, cfg.Massive.Timeout(), cfg.Massive.RateLimitPerMin)
		client.Monitor = mon
		log.Info("market data source: massive api", zap.Duration("poll_interval", cfg.Massive.PollInterval()))
		return NewPolled(store, client, PolledOptions{
			Interval:         cfg.Massive.PollInterval(),
			Monitor:          mon,
			Alerts:           deps.Alerts,
			FailureThreshold: deps.FailureThreshold,
		}, log), nil
	}
	log.Info("market data source: gbm simulator", zap.Duration("interval", cfg.Simulation.Interval()))
	shock := cfg.Simulation.ShockProbability
	if shock == 0 {
		shock = -1 // 配置里显式写 0 表示关闭冲击
	}
	return NewSimulated(store, SimulatedOptions{
		Interval:         cfg.Simulation.Interval(),
		ShockProbability: shock,
		ShockMin:         cfg.Simulation.ShockMin,
		ShockMax:         cfg.Simulation.ShockMax,
		Monitor:          mon,
		Alerts:           deps.Alerts,
	}, log), nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Feed    FeedConfig    `yaml:"feed"`
	Stream  StreamConfig  `yaml:"stream"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Alert   AlertConfig   `yaml:"alert"`
}

// FeedConfig 行情源配置；Massive.APIKey 非空时使用轮询源，否则使用模拟源。
type FeedConfig struct {
	Symbols    []string         `yaml:"symbols"`
	Simulation SimulationConfig `yaml:"simulation"`
	Massive    MassiveConfig    `yaml:"massive"`
}

type SimulationConfig struct {
	IntervalMs       int     `yaml:"intervalMs"`
	ShockProbability float64 `yaml:"shockProbability"`
	ShockMin         float64 `yaml:"shockMin"`
	ShockMax         float64 `yaml:"shockMax"`
}

type MassiveConfig struct {
	APIKey          string  `yaml:"apiKey"`
	BaseURL         string  `yaml:"baseURL"`
	PollIntervalMs  int     `yaml:"pollIntervalMs"` // 免费档 5 次/分钟 -> 15s
	TimeoutMs       int     `yaml:"timeoutMs"`
	RateLimitPerMin float64 `yaml:"rateLimitPerMin"`
}

type StreamConfig struct {
	Addr       string `yaml:"addr"`
	IntervalMs int    `yaml:"intervalMs"`
	// WebSocket 允许的 Origin；空表示只接受同源（或没有 Origin 头的客户端），"*" 表示全部
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 留空则不启动 metrics server
}

// RedisConfig 最新价镜像；Addr 为空则关闭。
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"keyPrefix"`
	Channel    string `yaml:"channel"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

// AlertConfig 行情源异常告警。同一条告警在 ThrottleSeconds 内只发一次。
type AlertConfig struct {
	ThrottleSeconds  int `yaml:"throttleSeconds"`
	FailureThreshold int `yaml:"failureThreshold"` // 连续拉取失败多少次后告警
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
}

// DefaultSymbols 默认自选列表。
var DefaultSymbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "NVDA", "META", "JPM", "V", "NFLX"}

// Default returns the documented defaults.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Feed: FeedConfig{
			Symbols: append([]string(nil), DefaultSymbols...),
			Simulation: SimulationConfig{
				IntervalMs:       500,
				ShockProbability: 0.001,
				ShockMin:         0.02,
				ShockMax:         0.05,
			},
			Massive: MassiveConfig{
				BaseURL:         "https://api.polygon.io",
				PollIntervalMs:  15000,
				TimeoutMs:       10000,
				RateLimitPerMin: 5,
			},
		},
		Stream: StreamConfig{
			Addr:       ":8000",
			IntervalMs: 500,
		},
		Metrics: MetricsConfig{Addr: ":9100"},
		Redis: RedisConfig{
			KeyPrefix: "price:",
			Channel:   "prices",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Outputs: []string{"stdout"},
		},
		Alert: AlertConfig{
			ThrottleSeconds:  300,
			FailureThreshold: 3,
		},
	}
}

// Load reads YAML config from path on top of the defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.Feed.Symbols = NormalizeSymbols(cfg.Feed.Symbols)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from env vars if present.
// An empty path starts from Default().
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if v, ok := os.LookupEnv("MASSIVE_API_KEY"); ok {
		cfg.Feed.Massive.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("FEED_SYMBOLS"); v != "" {
		cfg.Feed.Symbols = NormalizeSymbols(strings.Split(v, ","))
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	sim := cfg.Feed.Simulation
	if sim.IntervalMs <= 0 {
		return errors.New("feed.simulation.intervalMs must be > 0")
	}
	if sim.ShockProbability < 0 || sim.ShockProbability > 1 {
		return errors.New("feed.simulation.shockProbability must be within [0, 1]")
	}
	if sim.ShockMin < 0 || sim.ShockMax < sim.ShockMin || sim.ShockMax >= 1 {
		return fmt.Errorf("feed.simulation shock band [%v, %v] is invalid", sim.ShockMin, sim.ShockMax)
	}
	ms := cfg.Feed.Massive
	if ms.APIKey != "" {
		if ms.BaseURL == "" {
			return errors.New("feed.massive.baseURL is required when apiKey is set")
		}
		if ms.PollIntervalMs <= 0 {
			return errors.New("feed.massive.pollIntervalMs must be > 0")
		}
	}
	if ms.TimeoutMs < 0 || ms.RateLimitPerMin < 0 {
		return errors.New("feed.massive timeout/rate limit must be >= 0")
	}
	if cfg.Stream.IntervalMs <= 0 {
		return errors.New("stream.intervalMs must be > 0")
	}
	for _, sym := range cfg.Feed.Symbols {
		if sym == "" {
			return errors.New("feed.symbols contains an empty symbol")
		}
	}
	if cfg.Redis.TTLSeconds < 0 {
		return errors.New("redis.ttlSeconds must be >= 0")
	}
	if cfg.Alert.ThrottleSeconds < 0 || cfg.Alert.FailureThreshold < 0 {
		return errors.New("alert.throttleSeconds/failureThreshold must be >= 0")
	}
	return nil
}

// NormalizeSymbol 去空白并转大写。
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols 归一化并去重，保留首次出现的顺序，丢弃空项。
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (c SimulationConfig) Interval() time.Duration { return ms(c.IntervalMs) }

func (c MassiveConfig) PollInterval() time.Duration { return ms(c.PollIntervalMs) }

func (c MassiveConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }

func (c StreamConfig) Interval() time.Duration { return ms(c.IntervalMs) }

func (c RedisConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

func (c AlertConfig) Throttle() time.Duration { return time.Duration(c.ThrottleSeconds) * time.Second }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

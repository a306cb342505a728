package logger

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"market-feed-go/config"
)

// Logger 封装zap日志器，并持有打开的日志文件。
// 各业务包直接接收 *zap.Logger，容器通过 l.Logger 传入。
type Logger struct {
	*zap.Logger
	files []*os.File
}

// Config 日志配置
type Config struct {
	Level      string   // debug, info, warn, error
	Outputs    []string // stdout, stderr, file
	OutputFile string   // Outputs 含 file 时写入
	ErrorFile  string   // 非空时 error 及以上级别另写一份
	Format     string   // json 或 console
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// FromAppConfig 在默认值上叠加配置文件里的 log 段，空字段保持默认。
func FromAppConfig(c config.LogConfig) Config {
	cfg := DefaultConfig()
	if c.Level != "" {
		cfg.Level = c.Level
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}
	if len(c.Outputs) > 0 {
		cfg.Outputs = c.Outputs
	}
	cfg.OutputFile = c.OutputFile
	cfg.ErrorFile = c.ErrorFile
	return cfg
}

func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	stdEncoder := zapcore.NewJSONEncoder(encCfg)
	if cfg.Format == "console" {
		stdEncoder = zapcore.NewConsoleEncoder(encCfg)
	}
	// 文件始终写 JSON，不带颜色
	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	l := &Logger{}
	var cores []zapcore.Core
	if slices.Contains(cfg.Outputs, "stdout") {
		cores = append(cores, zapcore.NewCore(stdEncoder, zapcore.Lock(os.Stdout), level))
	}
	if slices.Contains(cfg.Outputs, "stderr") {
		cores = append(cores, zapcore.NewCore(stdEncoder.Clone(), zapcore.Lock(os.Stderr), level))
	}
	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		f, err := l.open(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), level))
	}
	if cfg.ErrorFile != "" {
		f, err := l.open(cfg.ErrorFile)
		if err != nil {
			l.closeFiles()
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zapcore.ErrorLevel))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return l, nil
}

func (l *Logger) open(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	l.files = append(l.files, f)
	return f, nil
}

// LogFeed 记录行情源事件（构建、启动、增删标的）
func (l *Logger) LogFeed(event string, fields map[string]interface{}) {
	l.Info("feed_event", eventFields("event", event, fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, fields map[string]interface{}) {
	l.Error("error_event", eventFields("error", err.Error(), fields)...)
}

func eventFields(key, value string, extra map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(extra)+2)
	out = append(out,
		zap.String(key, value),
		zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
	)
	for k, v := range extra {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Close 刷新缓冲并关闭日志文件。stdout 的 Sync 错误（如 EINVAL）忽略。
func (l *Logger) Close() error {
	_ = l.Sync()
	return l.closeFiles()
}

func (l *Logger) closeFiles() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

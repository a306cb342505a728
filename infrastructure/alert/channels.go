package alert

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogChannel 把告警写进结构化日志。
type LogChannel struct {
	name string
	log  *zap.Logger
}

func NewLogChannel(name string, log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{name: name, log: log.With(zap.String("component", "alert"))}
}

func (c *LogChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+3)
	fields = append(fields,
		zap.String("level", string(a.Level)),
		zap.String("source", a.Source),
		zap.Time("alert_ts", a.Timestamp),
	)
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := c.log.Check(zapLevel(a.Level), a.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// MemoryChannel 在内存里保存收到的告警（测试用）。
type MemoryChannel struct {
	name string

	mu     sync.Mutex
	alerts []Alert
	fail   bool
}

func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("memory channel failure")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MemoryChannel) Name() string { return c.name }

func (c *MemoryChannel) SetFailing(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *MemoryChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

// Count 某一级别的告警数量；level 为空时返回总数。
func (c *MemoryChannel) Count(level Level) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if level == "" {
		return len(c.alerts)
	}
	n := 0
	for _, a := range c.alerts {
		if a.Level == level {
			n++
		}
	}
	return n
}

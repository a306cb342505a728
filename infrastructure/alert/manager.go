// Package alert 行情源异常告警：限流后分发到各个通道。
package alert

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Alert 一条告警。Source 是产生告警的行情源（simulated / polled）。
type Alert struct {
	Level     Level
	Source    string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 按 key 限流，同一个 key 在 interval 内只放行一次。
type Throttler struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Reset 清除一个 key，下一次同样的告警立即放行。
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Manager 告警管理器。nil Manager 的所有方法都是空操作，行情源不需要判空。
type Manager struct {
	mu       sync.RWMutex
	channels []Channel
	throttle *Throttler
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

func throttleKey(a Alert) string {
	return fmt.Sprintf("%s:%s:%s", a.Level, a.Source, a.Message)
}

// SendAlert 分发到全部通道；被限流时静默返回 nil。
// 只有全部通道都失败时才返回错误。
func (m *Manager) SendAlert(a Alert) error {
	if m == nil {
		return nil
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if !m.throttle.Allow(throttleKey(a)) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
		}
	}
	if len(errs) > 0 && len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

func (m *Manager) SendInfo(source, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelInfo, Source: source, Message: message, Fields: fields})
}

func (m *Manager) SendWarning(source, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelWarning, Source: source, Message: message, Fields: fields})
}

func (m *Manager) SendError(source, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelError, Source: source, Message: message, Fields: fields})
}

// Resolve 解除某条告警的限流，故障恢复后再次出现时立即告警。
func (m *Manager) Resolve(level Level, source, message string) {
	if m == nil {
		return
	}
	m.throttle.Reset(throttleKey(Alert{Level: level, Source: source, Message: message}))
}

func (m *Manager) AddChannel(ch Channel) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

func (m *Manager) Channels() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

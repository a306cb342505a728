package alert

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendAlert(t *testing.T) {
	mem := NewMemoryChannel("mem")
	mgr := NewManager([]Channel{mem}, 5*time.Minute)

	err := mgr.SendWarning("polled", "market data poll failing", map[string]interface{}{"consecutive": 3})
	if err != nil {
		t.Fatalf("SendWarning failed: %v", err)
	}
	if mem.Count("") != 1 {
		t.Fatalf("expected 1 alert, got %d", mem.Count(""))
	}
	a := mem.Alerts()[0]
	if a.Level != LevelWarning || a.Source != "polled" {
		t.Errorf("unexpected alert %+v", a)
	}
	if a.Fields["consecutive"] != 3 {
		t.Errorf("field consecutive = %v, want 3", a.Fields["consecutive"])
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestSendLevels(t *testing.T) {
	tests := []struct {
		name   string
		sendFn func(*Manager) error
		want   Level
	}{
		{"info", func(m *Manager) error { return m.SendInfo("polled", "recovered", nil) }, LevelInfo},
		{"warning", func(m *Manager) error { return m.SendWarning("polled", "failing", nil) }, LevelWarning},
		{"error", func(m *Manager) error { return m.SendError("simulated", "step failed", nil) }, LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemoryChannel("mem")
			mgr := NewManager([]Channel{mem}, time.Minute)
			if err := tt.sendFn(mgr); err != nil {
				t.Fatalf("send failed: %v", err)
			}
			if mem.Count(tt.want) != 1 {
				t.Fatalf("expected 1 %s alert, got %+v", tt.want, mem.Alerts())
			}
		})
	}
}

func TestThrottling(t *testing.T) {
	mem := NewMemoryChannel("mem")
	mgr := NewManager([]Channel{mem}, 100*time.Millisecond)

	_ = mgr.SendError("simulated", "step failed", nil)
	_ = mgr.SendError("simulated", "step failed", nil)
	if mem.Count("") != 1 {
		t.Fatalf("repeated alert should be throttled, got %d", mem.Count(""))
	}

	// 不同来源、不同级别不互相限流
	_ = mgr.SendError("polled", "step failed", nil)
	_ = mgr.SendWarning("simulated", "step failed", nil)
	if mem.Count("") != 3 {
		t.Fatalf("expected 3 alerts, got %d", mem.Count(""))
	}

	time.Sleep(150 * time.Millisecond)
	_ = mgr.SendError("simulated", "step failed", nil)
	if mem.Count("") != 4 {
		t.Fatalf("after throttle period: expected 4 alerts, got %d", mem.Count(""))
	}
}

func TestResolveLiftsThrottle(t *testing.T) {
	mem := NewMemoryChannel("mem")
	mgr := NewManager([]Channel{mem}, time.Hour)

	_ = mgr.SendWarning("polled", "failing", nil)
	mgr.Resolve(LevelWarning, "polled", "failing")
	_ = mgr.SendWarning("polled", "failing", nil)
	if mem.Count(LevelWarning) != 2 {
		t.Fatalf("expected 2 warnings after resolve, got %d", mem.Count(LevelWarning))
	}
}

func TestChannelFailures(t *testing.T) {
	bad := NewMemoryChannel("bad")
	bad.SetFailing(true)
	mgr := NewManager([]Channel{bad}, time.Minute)
	if err := mgr.SendInfo("polled", "x", nil); err == nil {
		t.Error("expected error when all channels fail")
	}

	good := NewMemoryChannel("good")
	mgr = NewManager([]Channel{bad, good}, time.Minute)
	if err := mgr.SendInfo("polled", "x", nil); err != nil {
		t.Errorf("partial failure should not error: %v", err)
	}
	if good.Count("") != 1 {
		t.Error("healthy channel should receive alert")
	}
	if names := mgr.Channels(); len(names) != 2 || names[0] != "bad" || names[1] != "good" {
		t.Errorf("unexpected channels %v", names)
	}
}

func TestAddChannel(t *testing.T) {
	first := NewMemoryChannel("first")
	mgr := NewManager([]Channel{first}, time.Minute)
	second := NewMemoryChannel("second")
	mgr.AddChannel(second)

	_ = mgr.SendError("simulated", "step failed", nil)
	if first.Count("") != 1 || second.Count("") != 1 {
		t.Errorf("both channels should receive alert")
	}
}

func TestNilManagerIsNoop(t *testing.T) {
	var mgr *Manager
	if err := mgr.SendError("simulated", "x", nil); err != nil {
		t.Fatalf("nil manager should not error: %v", err)
	}
	mgr.Resolve(LevelError, "simulated", "x")
	if mgr.Channels() != nil {
		t.Fatal("nil manager has no channels")
	}
}

func TestLogChannelLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", zap.New(core))
	mgr := NewManager([]Channel{ch}, time.Minute)

	_ = mgr.SendWarning("polled", "market data poll failing", map[string]interface{}{"consecutive": 3})
	_ = mgr.SendError("simulated", "simulator step failed", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].Message != "market data poll failing" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
	if entries[0].ContextMap()["consecutive"] != int64(3) || entries[0].ContextMap()["source"] != "polled" {
		t.Errorf("missing fields %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("expected error level, got %v", entries[1].Level)
	}
}

package sim

import "testing"

func TestSectorCorrelation(t *testing.T) {
	rule := DefaultSectorCorrelation()
	tests := []struct {
		a, b string
		want float64
	}{
		{"AAPL", "MSFT", IntraTechCorrelation},
		{"NVDA", "NFLX", IntraTechCorrelation},
		{"JPM", "V", IntraFinanceCorrelation},
		{"AAPL", "JPM", DefaultCorrelation},
		{"TSLA", "AAPL", WeakCorrelation},
		{"AAPL", "TSLA", WeakCorrelation},
		{"TSLA", "JPM", WeakCorrelation},
		{"FOO", "BAR", DefaultCorrelation},
		{"FOO", "AAPL", DefaultCorrelation},
	}
	for _, tt := range tests {
		if got := rule.Correlation(tt.a, tt.b); got != tt.want {
			t.Errorf("Correlation(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSectorCorrelationWeakBeatsGroup(t *testing.T) {
	rule := DefaultSectorCorrelation()
	// 即使弱相关标的被放进组内，也优先走弱相关
	rule.Groups[0].Members["TSLA"] = struct{}{}
	if got := rule.Correlation("TSLA", "AAPL"); got != WeakCorrelation {
		t.Fatalf("expected weak correlation, got %v", got)
	}
}

package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"market-feed-go/infrastructure/monitor"
)

// metricSum 汇总某个 counter 的所有 label 取值。
func metricSum(t *testing.T, mon *monitor.Monitor, name string) float64 {
	t.Helper()
	mfs, err := mon.Registry().Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

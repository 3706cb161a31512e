package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStatsProvider struct {
	active       int
	wmkOfAllTx   uint64
	wmkOfShortTx uint64
}

func (f *fakeStatsProvider) ActiveTransactionCount() int { return f.active }
func (f *fakeStatsProvider) WatermarkOfAllTx() uint64    { return f.wmkOfAllTx }
func (f *fakeStatsProvider) WatermarkOfShortTx() uint64  { return f.wmkOfShortTx }

func TestNoopDefaults_NeverPanic(t *testing.T) {
	require.NotPanics(t, func() {
		TransactionsAbortedTotal.Inc()
		TransactionsAbortedTotal.Add(2)
		ActiveTransactionsGauge.Set(3)
		ActiveTransactionsGauge.Inc()
		ActiveTransactionsGauge.Dec()
		CommitDurationSeconds.Observe(0.001)
		TransactionsStartedTotal.With("read_write").Inc()
		GCRoundsTotal.With("true").Inc()
	})
}

func TestMetricsCollector_SamplesProvider(t *testing.T) {
	provider := &fakeStatsProvider{active: 4, wmkOfAllTx: 10, wmkOfShortTx: 20}
	collector := NewMetricsCollector(provider, time.Hour)

	require.NotPanics(t, collector.collect)
}

func TestMetricsCollector_NilProviderIsNoop(t *testing.T) {
	collector := NewMetricsCollector(nil, time.Hour)
	require.NotPanics(t, collector.collect)
}

func TestMetricsCollector_StartStop(t *testing.T) {
	provider := &fakeStatsProvider{}
	collector := NewMetricsCollector(provider, time.Millisecond)
	collector.Start()
	time.Sleep(5 * time.Millisecond)
	collector.Stop()
}

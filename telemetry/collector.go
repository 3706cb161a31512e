package telemetry

import (
	"sync"
	"time"
)

// StatsProvider is implemented by the concurrency-control core so the
// collector can sample gauges without importing the mvcc package (which
// itself depends on telemetry for the Counter/Gauge interfaces).
type StatsProvider interface {
	ActiveTransactionCount() int
	WatermarkOfAllTx() uint64
	WatermarkOfShortTx() uint64
}

// MetricsCollector periodically samples a StatsProvider and updates the
// corresponding gauges.
type MetricsCollector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(provider StatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection.
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector.
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.provider == nil {
		return
	}

	ActiveTransactionsGauge.Set(float64(mc.provider.ActiveTransactionCount()))
	WatermarkOfAllTx.Set(float64(mc.provider.WatermarkOfAllTx()))
	WatermarkOfShortTx.Set(float64(mc.provider.WatermarkOfShortTx()))
}

package telemetry

// Histogram bucket definitions for different latency profiles.
var (
	// CommitLatencyBuckets for CommitTx wall-clock latency.
	CommitLatencyBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

	// GCRoundBuckets for a full GarbageCollection pass duration.
	GCRoundBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
)

// Transaction lifecycle metrics.
var (
	// TransactionsStartedTotal counts BeginTx calls by mode (read_write, read_only).
	TransactionsStartedTotal CounterVec = noopCounterVec{}

	// TransactionsCommittedTotal counts CommitTx calls by whether the tx had writes.
	TransactionsCommittedTotal CounterVec = noopCounterVec{}

	// TransactionsAbortedTotal counts AbortTx calls.
	TransactionsAbortedTotal Counter = NoopStat{}

	// CommitDurationSeconds measures CommitTx latency.
	CommitDurationSeconds Histogram = NoopStat{}

	// ActiveTransactionsGauge tracks the number of workers with a non-zero mActiveTxId.
	ActiveTransactionsGauge Gauge = NoopStat{}
)

// Commit log metrics.
var (
	// CommitLogAppends counts entries appended to per-worker commit logs.
	CommitLogAppends Counter = NoopStat{}

	// CommitLogCompactions counts commitlog.Log.Compact runs.
	CommitLogCompactions Counter = NoopStat{}

	// CommitLogSize tracks the current length of a worker's commit log.
	CommitLogSize GaugeVec = noopGaugeVec{}
)

// Visibility metrics.
var (
	// LcbCacheHits counts VisibleForMe calls served from the LCB cache.
	LcbCacheHits Counter = NoopStat{}

	// LcbCacheMisses counts VisibleForMe calls that fell through to Lcb().
	LcbCacheMisses Counter = NoopStat{}
)

// Garbage collection metrics.
var (
	// GCRoundsTotal counts GarbageCollection invocations by whether the
	// round ran ("false" when the probabilistic gate or the global try-lock
	// skipped it).
	GCRoundsTotal CounterVec = noopCounterVec{}

	// GCRoundDurationSeconds measures a full GarbageCollection pass.
	GCRoundDurationSeconds Histogram = NoopStat{}

	// GCPurgeRuns counts PurgeVersions calls issued below the all-tx watermark.
	GCPurgeRuns Counter = NoopStat{}

	// GCTombstonesMigrated counts tombstones moved into the graveyard between
	// the all-tx and short-tx watermarks.
	GCTombstonesMigrated Counter = NoopStat{}

	// WatermarkAdvances counts successful global watermark publications.
	WatermarkAdvances Counter = NoopStat{}

	// WatermarkOfAllTx tracks the current global watermark below which every
	// committed version is visible to every active transaction.
	WatermarkOfAllTx Gauge = NoopStat{}

	// WatermarkOfShortTx tracks the current global short-transaction watermark.
	WatermarkOfShortTx Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	TransactionsStartedTotal = NewCounterVec(
		"transactions_started_total",
		"Transactions started by mode",
		[]string{"mode"},
	)
	TransactionsCommittedTotal = NewCounterVec(
		"transactions_committed_total",
		"Transactions committed by whether they produced writes",
		[]string{"had_writes"},
	)
	TransactionsAbortedTotal = NewCounter(
		"transactions_aborted_total",
		"Total aborted transactions",
	)
	CommitDurationSeconds = NewHistogramWithBuckets(
		"commit_duration_seconds",
		"CommitTx latency in seconds",
		CommitLatencyBuckets,
	)
	ActiveTransactionsGauge = NewGauge(
		"active_transactions",
		"Number of workers with an active transaction",
	)

	CommitLogAppends = NewCounter(
		"commit_log_appends_total",
		"Entries appended to per-worker commit logs",
	)
	CommitLogCompactions = NewCounter(
		"commit_log_compactions_total",
		"Commit log compactions across all workers",
	)
	CommitLogSize = NewGaugeVec(
		"commit_log_size",
		"Current length of a worker's commit log",
		[]string{"worker_id"},
	)

	LcbCacheHits = NewCounter(
		"lcb_cache_hits_total",
		"VisibleForMe calls served from the LCB cache",
	)
	LcbCacheMisses = NewCounter(
		"lcb_cache_misses_total",
		"VisibleForMe calls that required a fresh Lcb lookup",
	)

	GCRoundsTotal = NewCounterVec(
		"gc_rounds_total",
		"GarbageCollection invocations by watermark-refresh outcome",
		[]string{"refreshed"},
	)
	GCRoundDurationSeconds = NewHistogramWithBuckets(
		"gc_round_duration_seconds",
		"GarbageCollection pass duration in seconds",
		GCRoundBuckets,
	)
	GCPurgeRuns = NewCounter(
		"gc_purge_runs_total",
		"PurgeVersions calls issued below the all-tx watermark",
	)
	GCTombstonesMigrated = NewCounter(
		"gc_tombstones_migrated_total",
		"Tombstones migrated into the graveyard",
	)
	WatermarkAdvances = NewCounter(
		"watermark_advances_total",
		"Successful global watermark publications",
	)
	WatermarkOfAllTx = NewGauge(
		"watermark_of_all_tx",
		"Global watermark below which every committed version is visible to every transaction",
	)
	WatermarkOfShortTx = NewGauge(
		"watermark_of_short_tx",
		"Global short-transaction watermark",
	)
}

package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leancc/leancc/clock"
	"github.com/leancc/leancc/history"
)

func newTestCC(t *testing.T, n int, cfg Config) (*ConcurrencyControl, []*WorkerContext) {
	return newTestCCWithCapacity(t, n, 64, cfg)
}

func newTestCCWithCapacity(t *testing.T, n int, commitLogCapacity int, cfg Config) (*ConcurrencyControl, []*WorkerContext) {
	t.Helper()
	oracle := clock.NewOracle(0)
	cc := New(cfg, oracle, NoopTreeRegistry{})
	workers := make([]*WorkerContext, n)
	for i := 0; i < n; i++ {
		workers[i] = cc.RegisterWorker(uint64(i), commitLogCapacity, n, history.NewMemoryStore())
	}
	return cc, workers
}

func writeKey(h *TransactionHandle) {
	h.PutVersion(1, false, 1, func(buf []byte) { buf[0] = 1 })
}

func TestBeginCommit_ProducesStrictlyIncreasingCommitTsPerWorker(t *testing.T) {
	cc, workers := newTestCC(t, 1, Config{})
	w := workers[0]

	var commits []uint64
	for i := 0; i < 5; i++ {
		h := cc.BeginTx(w, SnapshotIsolation, false, false)
		writeKey(h)
		h.Commit()
		entries := w.commitLog.Entries()
		commits = append(commits, entries[len(entries)-1].CommitTs)
	}

	for i := 1; i < len(commits); i++ {
		require.Greater(t, commits[i], commits[i-1])
	}
}

func TestBeginTx_Fatal_WhenAlreadyActive(t *testing.T) {
	cc, workers := newTestCC(t, 1, Config{})
	w := workers[0]
	cc.BeginTx(w, SnapshotIsolation, false, false)

	require.Panics(t, func() {
		cc.BeginTx(w, SnapshotIsolation, false, false)
	})
}

func TestAbortTx_ClearsActiveTransactionAndPurgesOwnVersions(t *testing.T) {
	cc, workers := newTestCC(t, 1, Config{})
	w := workers[0]

	h := cc.BeginTx(w, SnapshotIsolation, false, false)
	writeKey(h)
	require.Equal(t, 1, w.history.Len())

	h.Abort()
	require.False(t, w.HasActiveTx())
	require.Equal(t, 0, w.history.Len())
}

func TestReadOnlyBeginTx_DoesNotAdvanceOracle(t *testing.T) {
	cc, workers := newTestCC(t, 1, Config{})
	w := workers[0]

	before := cc.oracle.Peek()
	h := cc.BeginTx(w, SnapshotIsolation, false, true)
	require.Equal(t, before, h.StartTs())
	require.Equal(t, before, cc.oracle.Peek())
}

// S1 — basic snapshot visibility.
func TestS1_BasicSnapshotVisibility(t *testing.T) {
	cc, workers := newTestCC(t, 2, Config{})
	w0, w1 := workers[0], workers[1]

	h0 := cc.BeginTx(w0, SnapshotIsolation, false, false)
	require.Equal(t, uint64(1), h0.StartTs())
	writeKey(h0)
	h0.Commit()
	entries := w0.commitLog.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].StartTs)
	require.Equal(t, uint64(2), entries[0].CommitTs)

	h1 := cc.BeginTx(w1, SnapshotIsolation, false, false)
	require.True(t, cc.VisibleForMe(w1, w0.id, 1))

	h0b := cc.BeginTx(w0, SnapshotIsolation, false, false)
	writeKey(h0b)
	h0b.Commit()

	require.False(t, cc.VisibleForMe(w1, w0.id, h0b.StartTs()))
	h1.Commit()
}

// S2 — snapshot stability across a concurrent commit.
func TestS2_SnapshotStabilityAcrossConcurrentCommit(t *testing.T) {
	cc, workers := newTestCC(t, 2, Config{})
	w0, w1 := workers[0], workers[1]

	h0 := cc.BeginTx(w0, SnapshotIsolation, false, false)
	writeKey(h0)
	h0.Commit()
	firstWriterTs := h0.StartTs()

	h1 := cc.BeginTx(w1, SnapshotIsolation, false, false)
	require.True(t, cc.VisibleForMe(w1, w0.id, firstWriterTs))

	h0c := cc.BeginTx(w0, SnapshotIsolation, false, false)
	writeKey(h0c)
	h0c.Commit()

	require.False(t, cc.VisibleForMe(w1, w0.id, h0c.StartTs()))
	h1.Commit()
}

// S3 — watermark advances and purge runs with eager GC, no concurrent readers.
func TestS3_WatermarkAdvancesAndPurgeRuns(t *testing.T) {
	cc, workers := newTestCC(t, 1, Config{EnableGC: true, EnableEagerGC: true})
	w := workers[0]

	for i := 0; i < 100; i++ {
		h := cc.BeginTx(w, SnapshotIsolation, false, false)
		writeKey(h)
		h.Commit()
	}

	require.Equal(t, 0, w.history.Len())
	require.Greater(t, cc.WatermarkOfAllTx(), uint64(0))
}

// S4 — a long-running transaction blocks purge but not tombstone migration.
func TestS4_LongRunningTxBlocksPurgeNotMigration(t *testing.T) {
	cc, workers := newTestCC(t, 2, Config{
		EnableGC:            true,
		EnableEagerGC:       true,
		EnableLongRunningTx: true,
	})
	w0, w1 := workers[0], workers[1]

	longReader := cc.BeginTx(w1, SnapshotIsolation, true, false)

	for i := 0; i < 10; i++ {
		h := cc.BeginTx(w0, SnapshotIsolation, false, false)
		isRemove := i == 4 || i == 7
		h.PutVersion(1, isRemove, 1, func(buf []byte) {})
		h.Commit()
	}

	require.Less(t, cc.WatermarkOfAllTx(), cc.WatermarkOfShortTx())
	require.Greater(t, w0.history.Len(), 0)

	longReader.Commit()
}

// S5 — compaction preserves entries any live sibling could still need.
func TestS5_CompactionPreservesNeededEntries(t *testing.T) {
	cc, workers := newTestCCWithCapacity(t, 3, 4, Config{})
	w0, w1 := workers[0], workers[1]

	for i := 0; i < 4; i++ {
		h := cc.BeginTx(w0, SnapshotIsolation, false, false)
		writeKey(h)
		h.Commit()
	}
	require.Equal(t, 4, w0.commitLog.Len())

	h1 := cc.BeginTx(w1, SnapshotIsolation, false, false)
	activeStartTs := h1.StartTs()

	// Compaction is triggered from BeginTx: starting another transaction on
	// w0 compacts w0's own log against its siblings' active timestamps.
	cc.BeginTx(w0, SnapshotIsolation, false, false)
	require.LessOrEqual(t, w0.commitLog.Len(), 2)

	lcb, found := w0.commitLog.Lcb(activeStartTs)
	require.True(t, found)
	require.True(t, cc.VisibleForMe(w1, w0.id, lcb))

	h1.Commit()
}

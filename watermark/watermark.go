// Package watermark implements the per-worker and global watermark
// bookkeeping that bounds how far garbage collection can safely purge
// versions: below the watermark, no live transaction can possibly still
// need to see them.
//
// Grounded on WorkerContext's mWmkOfAllTx/mWmkOfShortTx/mWmkVersion fields
// and ConcurrencyControl::updateGlobalTxWatermarks/GlobalWmkInfo in
// _examples/original_source/Src/leanstore/concurrency/ConcurrencyControl.cpp.
// The sequence-lock publish/read pattern there (an odd/even version flag
// around a plain-field write) is re-expressed here with sync/atomic loads
// and stores on every guarded field, since Go's memory model — unlike
// C++'s relaxed atomics — requires the actual field accesses themselves to
// be atomic even when a separate version counter orders them; a seqlock
// built from plain field writes is a real data race in Go, not just a
// caution against reading stale data.
package watermark

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// PerWorkerWatermarks holds one worker's published GC bounds plus the
// bookkeeping GarbageCollector uses to skip a worker's Lcb recomputation
// when it hasn't committed anything new since the last round.
type PerWorkerWatermarks struct {
	version               atomic.Uint64
	wmkOfAllTx            atomic.Uint64
	wmkOfShortTx          atomic.Uint64
	latestCommitTs        atomic.Uint64
	updatedLatestCommitTs atomic.Uint64
}

// New creates a watermark set with everything at zero.
func New() *PerWorkerWatermarks {
	return &PerWorkerWatermarks{}
}

// Publish writes a new (wmkOfAllTx, wmkOfShortTx) pair as a single atomic
// epoch: readers via Read either see the whole old pair or the whole new
// pair, never a mix.
func (w *PerWorkerWatermarks) Publish(wmkOfAllTx, wmkOfShortTx uint64) {
	w.version.Add(1) // now odd: critical section open
	w.wmkOfAllTx.Store(wmkOfAllTx)
	w.wmkOfShortTx.Store(wmkOfShortTx)
	w.version.Add(1) // now even: critical section closed
}

// Read returns a consistent snapshot of the published watermarks, retrying
// if a publish was in progress or raced the read.
func (w *PerWorkerWatermarks) Read() (wmkOfAllTx, wmkOfShortTx uint64) {
	for {
		v1 := w.version.Load()
		if v1%2 != 0 {
			runtime.Gosched()
			continue
		}
		all := w.wmkOfAllTx.Load()
		short := w.wmkOfShortTx.Load()
		v2 := w.version.Load()
		if v1 != v2 {
			continue
		}
		return all, short
	}
}

// RecordCommit bumps the latest commit timestamp this worker has produced.
// GarbageCollector compares this against UpdatedLatestCommitTs to decide
// whether the worker's commit log needs a fresh Lcb pass this round.
func (w *PerWorkerWatermarks) RecordCommit(commitTs uint64) {
	w.latestCommitTs.Store(commitTs)
}

// LatestCommitTs returns the most recent commit timestamp recorded.
func (w *PerWorkerWatermarks) LatestCommitTs() uint64 {
	return w.latestCommitTs.Load()
}

// UpdatedLatestCommitTs returns the commit timestamp as of the last GC
// round that refreshed this worker's watermarks.
func (w *PerWorkerWatermarks) UpdatedLatestCommitTs() uint64 {
	return w.updatedLatestCommitTs.Load()
}

// MarkUpdated records that GC has just refreshed this worker's watermarks
// as of the given commit timestamp.
func (w *PerWorkerWatermarks) MarkUpdated(commitTs uint64) {
	w.updatedLatestCommitTs.Store(commitTs)
}

// NeedsRefresh reports whether this worker has committed anything new since
// the last GC round refreshed its watermarks.
func (w *PerWorkerWatermarks) NeedsRefresh() bool {
	return w.updatedLatestCommitTs.Load() != w.latestCommitTs.Load()
}

// Sentinel values for the "no active transaction" case: the oldest active
// timestamp defaults to +infinity (so it never blocks GC) and the newest
// long-running timestamp defaults to -infinity (0, so it never suppresses
// short-tx purging).
const (
	NoOldestActive = math.MaxUint64
	NoNewestLong   = 0
)

// GlobalWatermarkInfo aggregates the process-wide view of active
// transactions and the resulting global watermarks. Writers must hold the
// try-lock; readers snapshot the atomics without ever blocking.
type GlobalWatermarkInfo struct {
	mu sync.Mutex

	oldestActiveTx      atomic.Uint64
	oldestActiveShortTx atomic.Uint64
	newestLongTx        atomic.Uint64

	wmkOfAllTx   atomic.Uint64
	wmkOfShortTx atomic.Uint64
}

// NewGlobalWatermarkInfo creates a global watermark tracker at its initial
// sentinel state: no active transactions, watermarks at zero.
func NewGlobalWatermarkInfo() *GlobalWatermarkInfo {
	g := &GlobalWatermarkInfo{}
	g.oldestActiveTx.Store(NoOldestActive)
	g.oldestActiveShortTx.Store(NoOldestActive)
	g.newestLongTx.Store(NoNewestLong)
	return g
}

// TryLock attempts to acquire the publishing critical section without
// blocking. GarbageCollector must skip its round entirely on failure.
func (g *GlobalWatermarkInfo) TryLock() bool {
	return g.mu.TryLock()
}

// Unlock releases the publishing critical section.
func (g *GlobalWatermarkInfo) Unlock() {
	g.mu.Unlock()
}

// PublishActive records the process-wide oldest/newest active transaction
// timestamps. Caller must hold the lock (via TryLock).
func (g *GlobalWatermarkInfo) PublishActive(oldestActiveTx, oldestActiveShortTx, newestLongTx uint64) {
	g.oldestActiveTx.Store(oldestActiveTx)
	g.oldestActiveShortTx.Store(oldestActiveShortTx)
	g.newestLongTx.Store(newestLongTx)
}

// ActiveSnapshot returns the currently published active-transaction bounds.
func (g *GlobalWatermarkInfo) ActiveSnapshot() (oldestActiveTx, oldestActiveShortTx, newestLongTx uint64) {
	return g.oldestActiveTx.Load(), g.oldestActiveShortTx.Load(), g.newestLongTx.Load()
}

// TryAdvance updates the global watermarks to the element-wise minimum
// supplied. The pair is published atomically as one unit: if either
// candidate is still the NoOldestActive sentinel, the whole round is skipped
// rather than letting one field advance while the other is left stale, per
// ConcurrencyControl.cpp:349-365. Caller must hold the lock. Returns true if
// either watermark actually advanced.
func (g *GlobalWatermarkInfo) TryAdvance(candidateAllTx, candidateShortTx uint64) bool {
	if candidateAllTx == NoOldestActive || candidateShortTx == NoOldestActive {
		return false
	}

	advanced := false
	if cur := g.wmkOfAllTx.Load(); candidateAllTx != cur {
		g.wmkOfAllTx.Store(candidateAllTx)
		advanced = true
	}
	if cur := g.wmkOfShortTx.Load(); candidateShortTx != cur {
		g.wmkOfShortTx.Store(candidateShortTx)
		advanced = true
	}

	return advanced
}

// WmkOfAllTx returns the global watermark below which every committed
// version is visible to every live transaction.
func (g *GlobalWatermarkInfo) WmkOfAllTx() uint64 {
	return g.wmkOfAllTx.Load()
}

// WmkOfShortTx returns the global watermark for short-transaction visibility.
func (g *GlobalWatermarkInfo) WmkOfShortTx() uint64 {
	return g.wmkOfShortTx.Load()
}

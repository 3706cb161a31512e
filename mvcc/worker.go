package mvcc

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/leancc/leancc/commitlog"
	"github.com/leancc/leancc/history"
	"github.com/leancc/leancc/watermark"
)

// WorkerContext holds one worker's transaction lifecycle state. The original
// reaches this through a thread-local My() singleton; here it is an explicit
// value threaded through every call, per the "worker identity becomes a
// value, not ambient state" re-architecture this domain calls for.
//
// Only the owning worker's goroutine ever calls BeginTx/CommitTx/AbortTx or
// touches the plain (non-atomic) fields below — that discipline, not a lock,
// is what makes them safe. activeTxID is the exception: other workers read
// it lock-free while scanning for the oldest active transaction, so it is
// always accessed through sync/atomic.
type WorkerContext struct {
	id uint64

	activeTxID atomic.Uint64

	startTs     uint64
	isolation   IsolationLevel
	longRunning bool
	hasWrote    bool

	globalWmkOfAllTxSnapshot uint64
	commandID                uint32

	lcbCacheKey []uint64
	lcbCacheVal []uint64

	commitLog  *commitlog.Log
	watermarks *watermark.PerWorkerWatermarks
	history    history.Storage

	cleanedWmkOfShortTx atomic.Uint64
	localWmkOfAllTx     uint64
	localWmkOfShortTx   uint64
}

// NewWorkerContext creates one worker's state. peerCount sizes the per-worker
// LCB cache, one slot per sibling worker id.
func NewWorkerContext(id uint64, commitLogCapacity int, peerCount int, store history.Storage) *WorkerContext {
	return &WorkerContext{
		id:          id,
		commitLog:   commitlog.New(id, commitLogCapacity),
		watermarks:  watermark.New(),
		history:     store,
		lcbCacheKey: make([]uint64, peerCount),
		lcbCacheVal: make([]uint64, peerCount),
	}
}

// ID returns this worker's dense, never-reused id.
func (w *WorkerContext) ID() uint64 { return w.id }

// ActiveTxID returns the published mActiveTxId word, safe to call from any
// worker.
func (w *WorkerContext) ActiveTxID() uint64 { return w.activeTxID.Load() }

// StartTs returns the observing transaction's snapshot bound. Only valid
// while called by the owning worker with an active transaction.
func (w *WorkerContext) StartTs() uint64 { return w.startTs }

// Isolation returns the active transaction's isolation level.
func (w *WorkerContext) Isolation() IsolationLevel { return w.isolation }

// HasActiveTx reports whether this worker currently has a transaction open.
func (w *WorkerContext) HasActiveTx() bool { return w.activeTxID.Load() != 0 }

// CommitLog returns this worker's commit log, readable by any worker under
// its own optimistic latch.
func (w *WorkerContext) CommitLog() *commitlog.Log { return w.commitLog }

// Watermarks returns this worker's published watermark set.
func (w *WorkerContext) Watermarks() *watermark.PerWorkerWatermarks { return w.watermarks }

// History returns this worker's version store.
func (w *WorkerContext) History() history.Storage { return w.history }

func (w *WorkerContext) nextCommandID() uint32 {
	id := w.commandID
	w.commandID++
	return id
}

func (w *WorkerContext) invalidateLCBCache() {
	for i := range w.lcbCacheKey {
		w.lcbCacheKey[i] = 0
		w.lcbCacheVal[i] = 0
	}
}

func (w *WorkerContext) lcbCacheLookup(peerIdx int) (key, val uint64, ok bool) {
	if peerIdx < 0 || peerIdx >= len(w.lcbCacheKey) {
		return 0, 0, false
	}
	return w.lcbCacheKey[peerIdx], w.lcbCacheVal[peerIdx], true
}

func (w *WorkerContext) lcbCacheStore(peerIdx int, key, val uint64) {
	if peerIdx < 0 || peerIdx >= len(w.lcbCacheKey) {
		return
	}
	w.lcbCacheKey[peerIdx] = key
	w.lcbCacheVal[peerIdx] = val
}

// SiblingRegistry maps worker ids to their WorkerContext handles, letting
// the visibility oracle and GC driver resolve "the other worker's state"
// without a fixed array baked in at construction time. Grounded on the
// lock-free lookup idiom db/memory_stores_xsync.go uses for its own
// registries, applied here to the WorkerContext-by-id index the original's
// allWorkers vector implements as a plain pointer array.
type SiblingRegistry struct {
	workers *xsync.MapOf[uint64, *WorkerContext]
}

// NewSiblingRegistry creates an empty registry.
func NewSiblingRegistry() *SiblingRegistry {
	return &SiblingRegistry{workers: xsync.NewMapOf[uint64, *WorkerContext]()}
}

// Register adds a worker to the registry. Called once per worker at startup.
func (r *SiblingRegistry) Register(w *WorkerContext) {
	r.workers.Store(w.id, w)
}

// Get returns the worker with the given id, if registered.
func (r *SiblingRegistry) Get(id uint64) (*WorkerContext, bool) {
	return r.workers.Load(id)
}

// Count returns the number of registered workers.
func (r *SiblingRegistry) Count() int {
	n := 0
	r.workers.Range(func(uint64, *WorkerContext) bool {
		n++
		return true
	})
	return n
}

// Each invokes fn once per registered worker, in no particular order.
func (r *SiblingRegistry) Each(fn func(*WorkerContext)) {
	r.workers.Range(func(_ uint64, w *WorkerContext) bool {
		fn(w)
		return true
	})
}

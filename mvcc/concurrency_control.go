// Package mvcc implements multi-version concurrency control over a pool of
// workers: per-worker commit logs, a visibility oracle, watermark tracking,
// and the garbage collector that retires versions those watermarks prove are
// unreachable.
//
// Grounded on
// _examples/original_source/Src/leanstore/concurrency/{WorkerContext,ConcurrencyControl}.cpp.
// Thread-local singletons (My()) become explicit *WorkerContext values
// passed into every entry point; exception-driven optimistic retry
// (JumpMU) becomes the explicit loop in latch.RetryOptimistic.
package mvcc

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/leancc/leancc/clock"
	"github.com/leancc/leancc/history"
	"github.com/leancc/leancc/telemetry"
	"github.com/leancc/leancc/watermark"
)

// Config is the subset of cfg.MVCCConfiguration the concurrency-control core
// consults directly.
type Config struct {
	EnableGC             bool
	EnableEagerGC        bool
	EnableLongRunningTx  bool
	GCProbabilisticGateN int
}

// ConcurrencyControl owns the process-wide state shared by every worker:
// the timestamp oracle, the sibling registry, the global watermark
// aggregate, the commit-id chain, and the tree registry callback. Per-worker
// state lives in WorkerContext instead, one per pool slot.
type ConcurrencyControl struct {
	cfg          Config
	oracle       *clock.Oracle
	siblings     *SiblingRegistry
	global       *watermark.GlobalWatermarkInfo
	treeRegistry TreeRegistry
	chain        *CommitChain
}

// New creates a concurrency-control core with no workers registered yet.
// Call RegisterWorker for each pool slot before starting transactions.
func New(cfg Config, oracle *clock.Oracle, treeRegistry TreeRegistry) *ConcurrencyControl {
	if treeRegistry == nil {
		treeRegistry = NoopTreeRegistry{}
	}
	return &ConcurrencyControl{
		cfg:          cfg,
		oracle:       oracle,
		siblings:     NewSiblingRegistry(),
		global:       watermark.NewGlobalWatermarkInfo(),
		treeRegistry: treeRegistry,
		chain:        NewCommitChain(),
	}
}

// RegisterWorker creates and registers one worker slot.
func (cc *ConcurrencyControl) RegisterWorker(id uint64, commitLogCapacity int, peerCount int, store history.Storage) *WorkerContext {
	w := NewWorkerContext(id, commitLogCapacity, peerCount, store)
	cc.siblings.Register(w)
	return w
}

// Worker looks up a registered worker by id.
func (cc *ConcurrencyControl) Worker(id uint64) (*WorkerContext, bool) {
	return cc.siblings.Get(id)
}

// ActiveTransactionCount implements telemetry.StatsProvider.
func (cc *ConcurrencyControl) ActiveTransactionCount() int {
	n := 0
	cc.siblings.Each(func(w *WorkerContext) {
		if w.HasActiveTx() {
			n++
		}
	})
	return n
}

// WatermarkOfAllTx implements telemetry.StatsProvider.
func (cc *ConcurrencyControl) WatermarkOfAllTx() uint64 { return cc.global.WmkOfAllTx() }

// WatermarkOfShortTx implements telemetry.StatsProvider.
func (cc *ConcurrencyControl) WatermarkOfShortTx() uint64 { return cc.global.WmkOfShortTx() }

func (cc *ConcurrencyControl) liveSiblingStartTimestamps(self *WorkerContext) []uint64 {
	var out []uint64
	cc.siblings.Each(func(peer *WorkerContext) {
		if peer.id == self.id {
			return
		}
		word := peer.ActiveTxID()
		if word == 0 {
			return
		}
		startTs, _, _ := decodeActiveTxID(word)
		out = append(out, startTs)
	})
	return out
}

// BeginTx starts a transaction on worker w. isReadOnly transactions peek the
// timestamp oracle instead of allocating, so starting one never competes
// with writers for a commit-order slot.
//
// Compaction of w's own commit log is triggered here rather than from
// CommitTx, mirroring WorkerContext::StartTx's lazy compact-on-next-begin
// behavior.
func (cc *ConcurrencyControl) BeginTx(w *WorkerContext, isolation IsolationLevel, longRunning bool, isReadOnly bool) *TransactionHandle {
	if w.HasActiveTx() {
		Fatal("BeginTx: worker already has an active transaction")
	}
	if longRunning && !cc.cfg.EnableLongRunningTx {
		longRunning = false
	}

	var startTs uint64
	mode := "read_write"
	if isReadOnly {
		startTs = cc.oracle.Peek()
		mode = "read_only"
	} else {
		startTs = cc.oracle.Alloc()
	}

	w.startTs = startTs
	w.isolation = isolation
	w.longRunning = longRunning
	w.hasWrote = false
	w.invalidateLCBCache()
	w.globalWmkOfAllTxSnapshot = cc.global.WmkOfAllTx()
	w.activeTxID.Store(encodeActiveTxID(startTs, longRunning, isolation))

	if w.commitLog.AtCapacity() {
		w.commitLog.Compact(cc.liveSiblingStartTimestamps(w))
	}

	telemetry.TransactionsStartedTotal.With(mode).Inc()

	return &TransactionHandle{cc: cc, worker: w}
}

// CommitTx assigns a commit timestamp (if the transaction wrote anything),
// appends it to the worker's commit log through the commit-id chain, clears
// the worker's active-transaction word, and opportunistically drives GC.
func (cc *ConcurrencyControl) CommitTx(w *WorkerContext) {
	if !w.HasActiveTx() {
		Fatal("CommitTx: worker has no active transaction")
	}

	start := time.Now()

	// Reset here, not in BeginTx: WorkerContext::CommitTx zeroes mCommandId
	// right before checking mActiveTx.mHasWrote.
	hadWrites := w.hasWrote
	w.commandID = 0

	startTs := w.startTs
	ctx := cc.chain.Advance()
	cc.chain.FireInOrder(ctx, func() {
		if hadWrites {
			commitTs := cc.oracle.Alloc()
			w.commitLog.Append(startTs, commitTs)
			w.watermarks.RecordCommit(commitTs)
		}
		w.activeTxID.Store(0)
	})

	telemetry.CommitDurationSeconds.Observe(time.Since(start).Seconds())
	telemetry.TransactionsCommittedTotal.With(strconv.FormatBool(hadWrites)).Inc()

	cc.GarbageCollection(w)
}

// AbortTx discards every version the aborting transaction produced and
// clears its active-transaction word, per WorkerContext::AbortTx.
func (cc *ConcurrencyControl) AbortTx(w *WorkerContext) {
	if !w.HasActiveTx() {
		Fatal("AbortTx: worker has no active transaction")
	}

	startTs := w.startTs
	w.history.PurgeVersions(startTs, startTs, nil, 0)
	w.activeTxID.Store(0)

	telemetry.TransactionsAbortedTotal.Inc()
}

// PutVersion writes a version owned by w's active transaction and returns
// the commandId it was assigned, with the remove mark already folded in
// when isRemove is set.
func (cc *ConcurrencyControl) PutVersion(w *WorkerContext, treeID uint64, isRemove bool, size int, write history.Writer) uint32 {
	if !w.HasActiveTx() {
		Fatal("PutVersion: worker has no active transaction")
	}

	commandID := w.nextCommandID()
	if isRemove {
		commandID |= history.RemoveCommandMark
	}
	w.history.PutVersion(w.startTs, commandID, treeID, isRemove, size, write)
	w.hasWrote = true
	return commandID
}

// gcGateN returns the configured probabilistic-gate divisor, falling back to
// the live worker count when unset.
func (cc *ConcurrencyControl) gcGateN(liveWorkers int) int {
	if cc.cfg.GCProbabilisticGateN > 0 {
		return cc.cfg.GCProbabilisticGateN
	}
	return liveWorkers
}

func (cc *ConcurrencyControl) shouldSampleGC(liveWorkers int) bool {
	if liveWorkers <= 0 {
		return false
	}
	if cc.cfg.EnableEagerGC {
		return true
	}
	n := cc.gcGateN(liveWorkers)
	if n <= 0 {
		return false
	}
	return rand.N(uint64(n)) == 0
}

package mvcc

import "github.com/leancc/leancc/telemetry"

// VisibleForMe decides whether the version written by worker writerWorkerID
// at txID is visible to observer's active transaction.
//
// Writes by the observer's own worker are always visible to it. Otherwise,
// for the snapshot-isolation family: a version below the observer's
// snapshotted global watermark is visible unconditionally; the observer's
// per-writer LCB cache resolves the rest, falling through to a fresh
// CommitLog.Lcb query only when neither an exact-transaction cache hit nor a
// stale-but-sufficient cached bound settles the question. ReadCommitted
// observers cannot reach this path at all.
func (cc *ConcurrencyControl) VisibleForMe(observer *WorkerContext, writerWorkerID uint64, txID uint64) bool {
	if writerWorkerID == observer.id {
		return true
	}

	switch observer.isolation {
	case ReadCommitted:
		Fatal("VisibleForMe: read-committed isolation is not supported by the visibility oracle")
		return false
	case SnapshotIsolation, Serializable:
		if txID < observer.globalWmkOfAllTxSnapshot {
			return true
		}

		peer, ok := cc.siblings.Get(writerWorkerID)
		if !ok {
			Fatal("VisibleForMe: unknown writer worker id")
			return false
		}
		peerIdx := int(writerWorkerID)

		if key, val, ok := observer.lcbCacheLookup(peerIdx); ok {
			if key == observer.startTs {
				telemetry.LcbCacheHits.Inc()
				return val >= txID
			}
			if val >= txID {
				telemetry.LcbCacheHits.Inc()
				return true
			}
		}

		lcb, found := peer.commitLog.Lcb(observer.startTs)
		telemetry.LcbCacheMisses.Inc()
		if !found {
			return false
		}
		observer.lcbCacheStore(peerIdx, observer.startTs, lcb)
		return lcb >= txID
	default:
		Fatal("VisibleForMe: unknown isolation level")
		return false
	}
}

// VisibleForAll reports whether txID is visible to every conceivable live
// transaction: true exactly when it falls below the global watermark. An
// uninitialized (zero) watermark makes nothing visible-for-all, since no
// txID is ever strictly less than zero.
func (cc *ConcurrencyControl) VisibleForAll(txID uint64) bool {
	return txID < cc.global.WmkOfAllTx()
}

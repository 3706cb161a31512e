package mvcc

import "github.com/leancc/leancc/history"

// TransactionHandle is the client-facing view of one worker's active
// transaction, returned by ConcurrencyControl.BeginTx and consumed for the
// rest of the transaction's lifetime.
//
// IDLE —Begin→ ACTIVE —Commit→ COMMITTING —FireCallback→ IDLE
//
//	└—Abort→ ABORTED —Rollback→ IDLE
type TransactionHandle struct {
	cc     *ConcurrencyControl
	worker *WorkerContext
}

// Worker returns the underlying worker context.
func (h *TransactionHandle) Worker() *WorkerContext { return h.worker }

// StartTs returns the transaction's snapshot bound.
func (h *TransactionHandle) StartTs() uint64 { return h.worker.startTs }

// PutVersion writes a version and returns its assigned commandId.
func (h *TransactionHandle) PutVersion(treeID uint64, isRemove bool, size int, write history.Writer) uint32 {
	return h.cc.PutVersion(h.worker, treeID, isRemove, size, write)
}

// VisibleForMe checks visibility of a version written by workerID at txID
// against this transaction's snapshot.
func (h *TransactionHandle) VisibleForMe(workerID uint64, txID uint64) bool {
	return h.cc.VisibleForMe(h.worker, workerID, txID)
}

// Commit ends the transaction, publishing its writes (if any) to the
// worker's commit log.
func (h *TransactionHandle) Commit() {
	h.cc.CommitTx(h.worker)
}

// Abort discards the transaction's writes without publishing them.
func (h *TransactionHandle) Abort() {
	h.cc.AbortTx(h.worker)
}

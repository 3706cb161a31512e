// Package history defines the version-storage contract the concurrency
// control core depends on but does not own, plus two implementations: an
// in-memory one for tests and low-durability use, and a Pebble-backed one
// for durable embedded deployments.
//
// Grounded on HistoryStorage's contract in
// _examples/original_source/Src/leanstore/concurrency/ConcurrencyControl.cpp
// (PutVersion/PurgeVersions/VisitRemovedVersions and the kRemoveCommandMark
// convention) and, for the storage idioms themselves, on
// db/memory_stores_xsync.go (lock-free maps via puzpuzpuz/xsync) and
// db/meta_store_pebble.go (sharded, prefix-keyed Pebble access).
package history

// RemoveCommandMark is OR'd into a commandId to mark it a remove-tombstone
// rather than an update record, so the two are distinguishable without a
// separate field.
const RemoveCommandMark uint32 = 1 << 31

// IsRemoveCommandID reports whether commandId carries the remove mark.
func IsRemoveCommandID(commandID uint32) bool {
	return commandID&RemoveCommandMark != 0
}

// Key identifies one version record within a worker's history.
type Key struct {
	StartTs   uint64
	CommandID uint32
}

// RemovedVisitor is invoked by PurgeVersions and VisitRemovedVersions once
// per matched version, in ascending (StartTs, CommandID) order.
// calledBefore is true if the visitor has already been called for the same
// TreeID earlier in this same pass, letting a tree registry batch its own
// locking across consecutive versions of one tree.
type RemovedVisitor func(startTs uint64, treeID uint64, payload []byte, calledBefore bool)

// Writer fills the payload of a version being written. It receives a
// pre-sized buffer of length size to write into.
type Writer func(buf []byte)

// PurgeFlags is reserved for future selective-purge behavior (the original
// contract carries a flags parameter without describing one); this
// implementation accepts and ignores it beyond passing it through.
type PurgeFlags uint32

// Storage is the per-worker version store. An implementation partitions
// data implicitly by only ever being called from its owning worker; there
// is no cross-worker synchronization requirement here.
type Storage interface {
	// PutVersion appends a version keyed by (startTs, commandId). isRemove
	// mirrors whether RemoveCommandMark is already set on commandId; it is
	// passed explicitly so implementations don't need to inspect the bit.
	PutVersion(startTs uint64, commandID uint32, treeID uint64, isRemove bool, size int, write Writer)

	// PurgeVersions deletes every version (update or tombstone) with
	// startTs in [fromTs, toTs], invoking visitor for each before removal.
	PurgeVersions(fromTs, toTs uint64, visitor RemovedVisitor, flags PurgeFlags)

	// VisitRemovedVersions invokes visitor for every not-yet-migrated
	// tombstone with startTs in [fromTs, toTs] and marks it migrated. It
	// does not delete the record — a migrated tombstone still exists,
	// staged in the graveyard, until a later PurgeVersions covers it.
	VisitRemovedVersions(fromTs, toTs uint64, visitor RemovedVisitor)

	// Len reports the number of live (non-purged) version records, for
	// tests and metrics.
	Len() int
}

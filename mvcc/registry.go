package mvcc

// TreeRegistry is the external collaborator that owns row storage, B-tree
// indexes, and buffer/page management — all out of scope for this package.
// GarbageCollect is invoked once per version this package has determined is
// safe to physically discard or migrate, so the registry can release
// whatever structural resources the version's payload references.
type TreeRegistry interface {
	GarbageCollect(treeID uint64, versionBytes []byte, workerID uint64, txID uint64, calledBefore bool)
}

// NoopTreeRegistry discards every callback. Useful for tests and for driving
// this package without a wired storage engine.
type NoopTreeRegistry struct{}

func (NoopTreeRegistry) GarbageCollect(uint64, []byte, uint64, uint64, bool) {}

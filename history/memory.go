package history

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type versionRecord struct {
	treeID   uint64
	isRemove bool
	payload  []byte
	migrated bool
}

// MemoryStore is an in-memory Storage backed by a lock-free puzpuzpuz/xsync
// concurrent map. Range queries (PurgeVersions, VisitRemovedVersions) fall
// back to a full scan under a short-lived mutex since xsync.MapOf has no
// ordered iteration; this is the tradeoff of an in-memory test double, and
// is the reason PebbleStore exists for real deployments.
type MemoryStore struct {
	versions *xsync.MapOf[Key, *versionRecord]
	mu       sync.Mutex // serializes range scans against each other; PutVersion does not take it
}

// NewMemoryStore creates an empty in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: xsync.NewMapOf[Key, *versionRecord](),
	}
}

func (m *MemoryStore) PutVersion(startTs uint64, commandID uint32, treeID uint64, isRemove bool, size int, write Writer) {
	buf := make([]byte, size)
	if write != nil {
		write(buf)
	}
	m.versions.Store(Key{StartTs: startTs, CommandID: commandID}, &versionRecord{
		treeID:   treeID,
		isRemove: isRemove,
		payload:  buf,
	})
}

func (m *MemoryStore) PurgeVersions(fromTs, toTs uint64, visitor RemovedVisitor, _ PurgeFlags) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.matchInRange(fromTs, toTs, func(*versionRecord) bool { return true })
	seenTree := make(map[uint64]bool, len(matched))
	for _, k := range matched {
		rec, ok := m.versions.Load(k)
		if !ok {
			continue
		}
		if visitor != nil {
			visitor(k.StartTs, rec.treeID, rec.payload, seenTree[rec.treeID])
			seenTree[rec.treeID] = true
		}
		m.versions.Delete(k)
	}
}

func (m *MemoryStore) VisitRemovedVersions(fromTs, toTs uint64, visitor RemovedVisitor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.matchInRange(fromTs, toTs, func(r *versionRecord) bool {
		return r.isRemove && !r.migrated
	})
	seenTree := make(map[uint64]bool, len(matched))
	for _, k := range matched {
		rec, ok := m.versions.Load(k)
		if !ok {
			continue
		}
		if visitor != nil {
			visitor(k.StartTs, rec.treeID, rec.payload, seenTree[rec.treeID])
			seenTree[rec.treeID] = true
		}
		rec.migrated = true
	}
}

func (m *MemoryStore) Len() int {
	n := 0
	m.versions.Range(func(Key, *versionRecord) bool {
		n++
		return true
	})
	return n
}

// matchInRange returns, in ascending (StartTs, CommandID) order, every key
// whose StartTs falls in [fromTs, toTs] and whose record satisfies keep.
func (m *MemoryStore) matchInRange(fromTs, toTs uint64, keep func(*versionRecord) bool) []Key {
	var keys []Key
	m.versions.Range(func(k Key, r *versionRecord) bool {
		if k.StartTs >= fromTs && k.StartTs <= toTs && keep(r) {
			keys = append(keys, k)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StartTs != keys[j].StartTs {
			return keys[i].StartTs < keys[j].StartTs
		}
		return keys[i].CommandID < keys[j].CommandID
	})
	return keys
}

package history

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"
)

// writeLockShards is the number of encode-buffer shards PutVersion hashes a
// treeID into, mirroring meta_store_pebble.go's intentLockFor sharded-hash
// idiom (there used to shard row-intent locks; here it spreads the msgpack
// encode buffer reuse across shards so concurrent writers to different trees
// don't serialize on a single shared buffer).
const writeLockShards = 64

type envelope struct {
	TreeID   uint64 `msgpack:"tree_id"`
	IsRemove bool   `msgpack:"is_remove"`
	Payload  []byte `msgpack:"payload"`
	Migrated bool   `msgpack:"migrated"`
}

// PebbleStore is a durable, per-worker Storage backed by a Pebble instance.
// Keys are big-endian encoded so Pebble's natural sort order equals ascending
// (startTs, commandId) order, which is exactly the iteration order
// PurgeVersions and VisitRemovedVersions need.
//
// Grounded on db/meta_store_pebble.go's key-prefix-plus-sharded-lock idiom
// and db/persistent_counter_pebble.go's Set/Get-with-pebble.NoSync usage.
type PebbleStore struct {
	db       *pebble.DB
	workerID uint64
	prefix   []byte
	encBufs  [writeLockShards]sync.Pool
}

// NewPebbleStore creates a version store for one worker over a shared
// Pebble instance, namespaced by workerID so multiple workers' key ranges
// never overlap and can each be range-scanned independently.
func NewPebbleStore(db *pebble.DB, workerID uint64) *PebbleStore {
	prefix := []byte(fmt.Sprintf("hist/%020d/", workerID))
	s := &PebbleStore{db: db, workerID: workerID, prefix: prefix}
	for i := range s.encBufs {
		s.encBufs[i].New = func() any { return new(bytes.Buffer) }
	}
	return s
}

func (s *PebbleStore) shardOf(treeID uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], treeID)
	return xxhash.Sum64(buf[:]) % writeLockShards
}

func (s *PebbleStore) key(startTs uint64, commandID uint32) []byte {
	key := make([]byte, 0, len(s.prefix)+12)
	key = append(key, s.prefix...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], startTs)
	key = append(key, tsBuf[:]...)
	var cmdBuf [4]byte
	binary.BigEndian.PutUint32(cmdBuf[:], commandID)
	key = append(key, cmdBuf[:]...)
	return key
}

func (s *PebbleStore) decodeKey(k []byte) (startTs uint64, commandID uint32) {
	body := k[len(s.prefix):]
	startTs = binary.BigEndian.Uint64(body[:8])
	commandID = binary.BigEndian.Uint32(body[8:12])
	return
}

func (s *PebbleStore) PutVersion(startTs uint64, commandID uint32, treeID uint64, isRemove bool, size int, write Writer) {
	payload := make([]byte, size)
	if write != nil {
		write(payload)
	}

	env := envelope{TreeID: treeID, IsRemove: isRemove, Payload: payload}

	shard := &s.encBufs[s.shardOf(treeID)]
	buf := shard.Get().(*bytes.Buffer)
	buf.Reset()
	defer shard.Put(buf)

	if err := msgpack.NewEncoder(buf).Encode(&env); err != nil {
		// Encoding a fixed-shape struct with a caller-provided []byte
		// payload cannot fail under msgpack; treat it as a programming
		// error rather than threading an error return through the
		// Storage interface's hot append path.
		panic(fmt.Sprintf("history: marshal version envelope: %v", err))
	}

	if err := s.db.Set(s.key(startTs, commandID), buf.Bytes(), pebble.NoSync); err != nil {
		panic(fmt.Sprintf("history: pebble set: %v", err))
	}
}

func (s *PebbleStore) PurgeVersions(fromTs, toTs uint64, visitor RemovedVisitor, _ PurgeFlags) {
	lower := s.key(fromTs, 0)
	upper := s.key(toTs, ^uint32(0))
	// pebble.Iterator upper bounds are exclusive; extend by one byte so the
	// entry at exactly (toTs, max commandId) is included.
	upper = append(upper, 0x00)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		panic(fmt.Sprintf("history: pebble iterator: %v", err))
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()

	seenTree := make(map[uint64]bool)
	for iter.First(); iter.Valid(); iter.Next() {
		var env envelope
		if err := msgpack.Unmarshal(iter.Value(), &env); err != nil {
			panic(fmt.Sprintf("history: unmarshal version envelope: %v", err))
		}
		startTs, _ := s.decodeKey(iter.Key())

		if visitor != nil {
			visitor(startTs, env.TreeID, env.Payload, seenTree[env.TreeID])
			seenTree[env.TreeID] = true
		}

		if err := batch.Delete(iter.Key(), nil); err != nil {
			panic(fmt.Sprintf("history: batch delete: %v", err))
		}
	}

	if err := s.db.Apply(batch, pebble.NoSync); err != nil {
		panic(fmt.Sprintf("history: apply purge batch: %v", err))
	}
}

func (s *PebbleStore) VisitRemovedVersions(fromTs, toTs uint64, visitor RemovedVisitor) {
	lower := s.key(fromTs, 0)
	upper := append(s.key(toTs, ^uint32(0)), 0x00)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		panic(fmt.Sprintf("history: pebble iterator: %v", err))
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()

	seenTree := make(map[uint64]bool)
	dirty := false
	for iter.First(); iter.Valid(); iter.Next() {
		var env envelope
		if err := msgpack.Unmarshal(iter.Value(), &env); err != nil {
			panic(fmt.Sprintf("history: unmarshal version envelope: %v", err))
		}
		if !env.IsRemove || env.Migrated {
			continue
		}
		startTs, _ := s.decodeKey(iter.Key())

		if visitor != nil {
			visitor(startTs, env.TreeID, env.Payload, seenTree[env.TreeID])
			seenTree[env.TreeID] = true
		}

		env.Migrated = true
		data, err := msgpack.Marshal(&env)
		if err != nil {
			panic(fmt.Sprintf("history: marshal version envelope: %v", err))
		}
		if err := batch.Set(iter.Key(), data, nil); err != nil {
			panic(fmt.Sprintf("history: batch set: %v", err))
		}
		dirty = true
	}

	if dirty {
		if err := s.db.Apply(batch, pebble.NoSync); err != nil {
			panic(fmt.Sprintf("history: apply migration batch: %v", err))
		}
	}
}

func (s *PebbleStore) Len() int {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: s.prefix,
		UpperBound: append(append([]byte{}, s.prefix...), 0xFF),
	})
	if err != nil {
		panic(fmt.Sprintf("history: pebble iterator: %v", err))
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}

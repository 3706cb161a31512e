// Package commitlog implements the per-worker commit log: an ordered
// sequence of (commitTs, startTs) pairs used to answer "largest commit
// bound" (LCB) queries during visibility checks and to drive compaction.
//
// Grounded on CommitTree in
// _examples/original_source/Src/leanstore/concurrency/ConcurrencyControl.cpp
// (AppendCommitLog, Lcb/lcbNoLatch, CompactCommitLog). The C++ original
// stores the vector in place and guards it with a raw hybrid latch plus a
// manual binary search under JUMPMU_TRY; here the vector is published as an
// immutable snapshot behind an atomic.Pointer, so readers get a
// torn-read-free view without unsafe pointer arithmetic, while latch.HybridLatch
// still gates writers and gives Lcb genuine optimistic-retry semantics for
// any future multi-field extension of this state.
package commitlog

import (
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/leancc/leancc/latch"
	"github.com/leancc/leancc/telemetry"
)

// Entry is one commit record: the commit timestamp assigned to a
// transaction and the start timestamp it began at.
type Entry struct {
	CommitTs uint64
	StartTs  uint64
}

// Log is a single worker's commit log.
type Log struct {
	workerID uint64
	latch    *latch.HybridLatch
	snapshot atomic.Pointer[[]Entry]
	capacity int
}

// New creates an empty commit log pre-sized to capacity entries before
// compaction is expected to run.
func New(workerID uint64, capacity int) *Log {
	l := &Log{
		workerID: workerID,
		latch:    latch.New(),
		capacity: capacity,
	}
	empty := make([]Entry, 0, capacity)
	l.snapshot.Store(&empty)
	return l
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	return len(*l.snapshot.Load())
}

// Capacity returns the size at which Append expects compaction to have run.
func (l *Log) Capacity() int {
	return l.capacity
}

// AtCapacity reports whether the log has reached its configured capacity.
func (l *Log) AtCapacity() bool {
	return l.Len() >= l.capacity
}

// Append adds a new entry under the exclusive latch. commitTs must be
// strictly greater than every previously appended commitTs on this log;
// Append never rejects an entry regardless of current length — the
// capacity is advisory and enforced by the caller running Compact before
// the log grows unreasonably large, matching the "Append never rejects"
// contract of this domain.
func (l *Log) Append(startTs, commitTs uint64) {
	l.latch.LockExclusive()
	defer l.latch.UnlockExclusive()

	cur := *l.snapshot.Load()
	next := make([]Entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, Entry{CommitTs: commitTs, StartTs: startTs})
	l.snapshot.Store(&next)

	telemetry.CommitLogAppends.Inc()
	telemetry.CommitLogSize.With(strconv.FormatUint(l.workerID, 10)).Set(float64(len(next)))
}

// Lcb returns the largest commitTs strictly less than the query startTs,
// provided that entry's own startTs is also below the query — the newest
// version of this worker's writes visible to a reader that began at
// startTs. found is false if no such entry exists (equivalent to a zero
// return in the original).
func (l *Log) Lcb(startTs uint64) (commitTs uint64, found bool) {
	type result struct {
		commitTs uint64
		found    bool
	}
	r := latch.RetryOptimistic(l.latch, func() result {
		entries := *l.snapshot.Load()
		c, f := lcbSearch(entries, startTs)
		return result{commitTs: c, found: f}
	})
	return r.commitTs, r.found
}

// lcbSearch performs the binary search described for Lcb: locate the first
// entry with commitTs >= startTs, then step back one and confirm its
// startTs is strictly less than the query.
func lcbSearch(entries []Entry, startTs uint64) (commitTs uint64, found bool) {
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].CommitTs >= startTs
	})
	if idx == 0 {
		return 0, false
	}
	prev := entries[idx-1]
	if prev.StartTs >= startTs {
		return 0, false
	}
	return prev.CommitTs, true
}

// Compact rebuilds the log to contain only entries that some live
// transaction could still need: the newest entry, plus for every live
// sibling startTs the LCB entry that resolves it. liveStartTimestamps
// should list the active startTs of every other worker with a nonzero
// active transaction; a zero entry is ignored.
func (l *Log) Compact(liveStartTimestamps []uint64) {
	l.latch.LockExclusive()
	defer l.latch.UnlockExclusive()

	cur := *l.snapshot.Load()
	if len(cur) == 0 {
		return
	}

	keep := make(map[uint64]Entry, len(liveStartTimestamps)+1)
	latest := cur[len(cur)-1]
	keep[latest.CommitTs] = latest

	for _, startTs := range liveStartTimestamps {
		if startTs == 0 {
			continue
		}
		if commitTs, found := lcbSearch(cur, startTs); found {
			for _, e := range cur {
				if e.CommitTs == commitTs {
					keep[e.CommitTs] = e
					break
				}
			}
		}
	}

	next := make([]Entry, 0, len(keep))
	for _, e := range keep {
		next = append(next, e)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].CommitTs < next[j].CommitTs })

	l.snapshot.Store(&next)
	telemetry.CommitLogCompactions.Inc()
	telemetry.CommitLogSize.With(strconv.FormatUint(l.workerID, 10)).Set(float64(len(next)))
}

// Entries returns a defensive copy of the current entries, for tests and
// diagnostics only; hot paths must use Lcb.
func (l *Log) Entries() []Entry {
	cur := *l.snapshot.Load()
	out := make([]Entry, len(cur))
	copy(out, cur)
	return out
}

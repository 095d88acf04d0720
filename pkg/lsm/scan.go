package lsm

import "bytes"

// KV is a user-visible (key, value) pair returned by Scan.
type KV struct {
	UserKey []byte
	Value   []byte
}

// scanFilter is the post-filter pipeline both engine variants apply to a
// single merged Stream[Entry] over (memtable, every level's tables), per
// spec sections 4.9 and 9:
//  1. start-key skip — discard entries below the requested start.
//  2. end-key termination — stop once an entry reaches the requested end.
//  3. snapshot filter — discard entries newer than the requested seq.
//  4. dedup + tombstone — remember the last user_key selected; skip
//     further entries for it; a Deletion is skipped (and remembered)
//     rather than emitted.
//
// The source stream must already be in InternalKey order (user_key
// ascending, sequence_number descending), which every merged source in
// this package produces.
type scanFilter struct {
	src        Stream[Entry]
	start, end []byte
	snapshot   uint64

	lastUsed []byte
	haveLast bool
	done     bool
}

func newScanFilter(src Stream[Entry], start, end []byte, snapshot uint64) *scanFilter {
	return &scanFilter{src: src, start: start, end: end, snapshot: snapshot}
}

func (f *scanFilter) Next() (KV, bool) {
	if f.done {
		return KV{}, false
	}
	for {
		e, ok := f.src.Next()
		if !ok {
			f.done = true
			return KV{}, false
		}
		if f.start != nil && bytes.Compare(e.Key.UserKey, f.start) < 0 {
			continue
		}
		if f.end != nil && bytes.Compare(e.Key.UserKey, f.end) >= 0 {
			f.done = true
			return KV{}, false
		}
		if e.Key.Seq > f.snapshot {
			continue
		}
		if f.haveLast && bytes.Equal(e.Key.UserKey, f.lastUsed) {
			continue
		}
		f.lastUsed = append(f.lastUsed[:0], e.Key.UserKey...)
		f.haveLast = true
		if e.Key.Kind == KindDeletion {
			continue
		}
		return KV{UserKey: e.Key.UserKey, Value: e.Value}, true
	}
}

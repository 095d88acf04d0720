package lsm

import (
	"bytes"

	"github.com/huandu/skiplist"
)

// entryOverhead is the fixed per-entry byte cost ApproximateMemoryUsage
// adds on top of user_key and value bytes: 8 bytes of sequence number
// plus rounding for the type tag, per spec section 4.5.
const entryOverhead = 16

// MemTable is the mutable in-memory index over InternalKeys: a
// probabilistic skip list ordered by the InternalKey total order from
// spec section 3 (user_key ascending, sequence_number descending, kind
// ascending), backed by github.com/huandu/skiplist. It never removes
// entries — overwritten and deleted keys remain as older, lower-priority
// versions until the table is sealed and discarded after flush.
type MemTable struct {
	list       *skiplist.SkipList
	approxSize uint64
}

// NewMemTable builds an empty memtable with the given maximum skip-list
// height (spec section 4.5's max_level_skip_list, default 20).
func NewMemTable(maxLevel int) *MemTable {
	if maxLevel <= 0 {
		maxLevel = 20
	}
	list := skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
		return CompareInternalKeys(lhs.(InternalKey), rhs.(InternalKey))
	}))
	list.SetMaxLevel(maxLevel)
	return &MemTable{list: list}
}

// Add records a live value for userKey at seq. seq must be greater than
// every sequence number previously handed to this memtable.
func (m *MemTable) Add(seq uint64, userKey, value []byte) {
	key := InternalKey{UserKey: append([]byte(nil), userKey...), Seq: seq, Kind: KindValue}
	m.list.Set(key, append([]byte(nil), value...))
	m.approxSize += uint64(len(userKey)) + uint64(len(value)) + entryOverhead
}

// Delete records a tombstone for userKey at seq.
func (m *MemTable) Delete(seq uint64, userKey []byte) {
	key := InternalKey{UserKey: append([]byte(nil), userKey...), Seq: seq, Kind: KindDeletion}
	m.list.Set(key, []byte(nil))
	m.approxSize += uint64(len(userKey)) + entryOverhead
}

// Get performs the skip-list descent from spec section 4.5: find the
// smallest InternalKey >= (userKey, seq, Value), i.e. the newest version
// of userKey visible at or before seq.
func (m *MemTable) Get(userKey []byte, seq uint64) ([]byte, GetKind) {
	target := InternalKey{UserKey: userKey, Seq: seq, Kind: KindValue}
	el := m.list.Find(target)
	if el == nil {
		return nil, GetNotFound
	}
	k := el.Key().(InternalKey)
	if !bytes.Equal(k.UserKey, userKey) {
		return nil, GetNotFound
	}
	if k.Kind == KindDeletion {
		return nil, GetDeletion
	}
	return el.Value.([]byte), GetFound
}

// ApproximateMemoryUsage returns the monotone non-decreasing byte
// estimate that the engine compares against memtable_bytes to decide when
// to seal and flush (spec section 4.5 / P9).
func (m *MemTable) ApproximateMemoryUsage() uint64 { return m.approxSize }

// Len reports the number of entries currently held, including superseded
// versions and tombstones.
func (m *MemTable) Len() int { return m.list.Len() }

// memTableStream walks the skip list front to back in InternalKey order.
type memTableStream struct {
	el *skiplist.Element
}

// MakeScan returns a lazy iterator over every entry, newest-per-key
// first, in InternalKey order (spec section 4.5).
func (m *MemTable) MakeScan() Stream[Entry] {
	return &memTableStream{el: m.list.Front()}
}

func (s *memTableStream) Next() (Entry, bool) {
	if s.el == nil {
		return Entry{}, false
	}
	key := s.el.Key().(InternalKey)
	value, _ := s.el.Value.([]byte)
	e := Entry{Key: key, Value: value}
	s.el = s.el.Next()
	return e, true
}

package lsm

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// SSTableMetadata is the (min_user_key, max_user_key, file_size) triple
// carried alongside every table slot in the levels provider, per spec
// section 3. Overlaps promotes the original's SSTableMetadata::Overlaps
// helper (lsm/lsm.h) to an exported method, per SPEC_FULL section 4.
type SSTableMetadata struct {
	MinUserKey []byte
	MaxUserKey []byte
	FileSize   uint64
}

// Contains reports whether userKey falls within [MinUserKey, MaxUserKey].
func (m *SSTableMetadata) Contains(userKey []byte) bool {
	if m == nil {
		return true
	}
	return bytes.Compare(userKey, m.MinUserKey) >= 0 && bytes.Compare(userKey, m.MaxUserKey) <= 0
}

// Overlaps reports whether this table's key range intersects [start, end).
// A nil start/end means unbounded on that side.
func (m *SSTableMetadata) Overlaps(start, end []byte) bool {
	if m == nil {
		return true
	}
	if end != nil && bytes.Compare(m.MinUserKey, end) >= 0 {
		return false
	}
	if start != nil && bytes.Compare(m.MaxUserKey, start) < 0 {
		return false
	}
	return true
}

// GetKind classifies the result of a point lookup.
type GetKind int

const (
	GetNotFound GetKind = iota
	GetFound
	GetDeletion
)

// SSTableBuilder accumulates entries in InternalKey order and produces the
// on-disk image described in spec section 4.3 on Finish. Add must be
// called in strictly increasing InternalKey order; a violation is a
// builder-misuse invariant error (spec section 4.11), not a recoverable
// condition.
type SSTableBuilder struct {
	entries []Entry
}

func NewSSTableBuilder() *SSTableBuilder {
	return &SSTableBuilder{}
}

func (b *SSTableBuilder) Add(key InternalKey, value []byte) {
	if len(b.entries) > 0 {
		prev := b.entries[len(b.entries)-1].Key
		if CompareInternalKeys(prev, key) >= 0 {
			invariantf("lsm: sstable builder Add called out of InternalKey order")
		}
	}
	b.entries = append(b.entries, Entry{Key: key, Value: value})
}

func (b *SSTableBuilder) Len() int { return len(b.entries) }

// Finish lays out the header-then-backward-data image and writes it to
// file in a single WriteAll, returning the table's metadata. The layout
// (and the somewhat non-obvious header word assignment below) mirrors
// FileSSTableBuilder::Finish in the original engine exactly: each record
// is [sequence_number][user_key][value], packed starting from the file's
// end, entry 0 nearest EOF.
func (b *SSTableBuilder) Finish(file ByteFile) (*SSTableMetadata, error) {
	n := uint64(len(b.entries))
	headerLen := (2*n + 1) * 8
	dataLen := uint64(0)
	for _, e := range b.entries {
		dataLen += 8 + uint64(len(e.Key.UserKey)) + uint64(len(e.Value))
	}
	total := headerLen + dataLen
	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[:8], n)

	var shift uint64
	for i, e := range b.entries {
		shift += uint64(len(e.Value))
		binary.LittleEndian.PutUint64(buf[(2*uint64(i)+2)*8:], shift)
		if len(e.Value) > 0 {
			copy(buf[total-shift:], e.Value)
		}

		shift += uint64(len(e.Key.UserKey))
		copy(buf[total-shift:], e.Key.UserKey)

		shift += 8
		binary.LittleEndian.PutUint64(buf[(2*uint64(i)+1)*8:], shift)
		binary.LittleEndian.PutUint64(buf[total-shift:], e.Key.Seq)
	}

	meta := &SSTableMetadata{FileSize: total}
	if n > 0 {
		meta.MinUserKey = append([]byte(nil), b.entries[0].Key.UserKey...)
		meta.MaxUserKey = append([]byte(nil), b.entries[n-1].Key.UserKey...)
	}

	if err := file.WriteAll(buf); err != nil {
		return nil, err
	}
	return meta, nil
}

// SSTableReader answers point Get and full-scan queries against an
// on-disk image via random-access reads: each entry a point lookup visits
// costs its two header words, the previous entry's first header word, and
// the record's own three small regions, never the whole file (spec section
// 4.3 / P7).
type SSTableReader struct {
	file        ByteFile
	objectCount uint64
	size        uint64
}

func OpenSSTableReader(file ByteFile) (*SSTableReader, error) {
	hdr, err := file.Read(0, 8)
	if err != nil {
		return nil, err
	}
	return &SSTableReader{
		file:        file,
		objectCount: binary.LittleEndian.Uint64(hdr),
		size:        file.Size(),
	}, nil
}

func (r *SSTableReader) ObjectCount() uint64 { return r.objectCount }

// getObject decodes entry ind, reading only its header words, the previous
// entry's first header word (for ind > 0), and its own record bytes.
func (r *SSTableReader) getObject(ind uint64) (Entry, error) {
	if ind >= r.objectCount {
		invariantf("lsm: sstable getObject index %d out of range (count %d)", ind, r.objectCount)
	}
	raw, err := r.file.Read((2*ind+1)*8, 16)
	if err != nil {
		return Entry{}, err
	}
	// first is the record's total cumulative extent from EOF (its start,
	// mirroring FileSSTableReader::SSTableViewer::GetObject's `offsets`);
	// second is the extent up to the value's start.
	first := binary.LittleEndian.Uint64(raw[:8])
	second := binary.LittleEndian.Uint64(raw[8:])

	seqBytes, err := r.file.Read(r.size-first, 8)
	if err != nil {
		return Entry{}, err
	}
	seq := binary.LittleEndian.Uint64(seqBytes)

	keyLen := first - second - 8
	userKey, err := r.file.Read(r.size-first+8, keyLen)
	if err != nil {
		return Entry{}, err
	}

	var valueLen uint64 = second
	if ind > 0 {
		prevRaw, err := r.file.Read((2*(ind-1)+1)*8, 8)
		if err != nil {
			return Entry{}, err
		}
		valueLen = second - binary.LittleEndian.Uint64(prevRaw)
	}

	entry := Entry{Key: InternalKey{UserKey: userKey, Seq: seq, Kind: KindDeletion}}
	if valueLen > 0 {
		value, err := r.file.Read(r.size-second, valueLen)
		if err != nil {
			return Entry{}, err
		}
		entry.Key.Kind = KindValue
		entry.Value = value
	}
	return entry, nil
}

// Get performs the binary search from spec section 4.3: locate the first
// entry whose InternalKey is >= (user_key, seq, Value), i.e. the newest
// version of user_key visible at or before seq.
func (r *SSTableReader) Get(userKey []byte, seq uint64) ([]byte, GetKind, error) {
	target := InternalKey{UserKey: userKey, Seq: seq, Kind: KindValue}
	l, rr := uint64(0), r.objectCount+1
	for rr-l > 1 {
		m := (l + rr) / 2
		obj, err := r.getObject(m - 1)
		if err != nil {
			return nil, GetNotFound, err
		}
		if CompareInternalKeys(obj.Key, target) < 0 {
			l = m
		} else {
			rr = m
		}
	}
	if rr == r.objectCount+1 {
		return nil, GetNotFound, nil
	}
	obj, err := r.getObject(rr - 1)
	if err != nil {
		return nil, GetNotFound, err
	}
	if !bytes.Equal(obj.Key.UserKey, userKey) {
		return nil, GetNotFound, nil
	}
	if obj.Key.Kind == KindValue {
		return obj.Value, GetFound, nil
	}
	return nil, GetDeletion, nil
}

// sstableStream is the Stream[Entry] returned by MakeScan, walking every
// record from index 0 forward. Stream[T] has no room for an error return,
// so a read failure here panics rather than terminating the scan silently
// (spec section 4.11: I/O errors are fatal), unlike Get, which returns
// one normally.
type sstableStream struct {
	reader *SSTableReader
	ind    uint64
}

func (r *SSTableReader) MakeScan() Stream[Entry] {
	return &sstableStream{reader: r}
}

func (s *sstableStream) Next() (Entry, bool) {
	if s.ind >= s.reader.objectCount {
		return Entry{}, false
	}
	obj, err := s.reader.getObject(s.ind)
	if err != nil {
		panic(errors.Wrap(err, "lsm: sstable scan read failed"))
	}
	s.ind++
	return obj, true
}

package lsm

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// GranularStore is engine variant B: a leveled engine with size-bounded,
// non-overlapping tables per level and an exponentially growing per-level
// capacity, spec section 4.9. Level n holds at most
// l0_capacity * level_size_multiplier^n tables.
type GranularStore struct {
	opts        GranularOptions
	cache       *frameCache
	levels      *Levels
	mem         *MemTable
	seq         uint64
	nextTableID uint64
}

// OpenGranularStore creates the store's working directory and returns a
// ready engine. Dir defaults to "granular_lsm" per spec section 6.
func OpenGranularStore(opts GranularOptions) (*GranularStore, error) {
	opts.setDefaults()
	if opts.Dir == "" {
		opts.Dir = "granular_lsm"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "lsm: create working dir %s", opts.Dir)
	}
	return &GranularStore{
		opts:   opts,
		cache:  newFrameCache(opts.Dir, opts.BufferPoolSize, opts.FrameSize),
		levels: NewLevels(),
		mem:    NewMemTable(opts.MaxLevelSkipList),
	}, nil
}

func (s *GranularStore) GetCurrentSequenceNumber() uint64 { return s.seq }

func (s *GranularStore) Put(userKey, value []byte) error {
	s.seq++
	s.mem.Add(s.seq, cloneBytes(userKey), cloneBytes(value))
	return s.maybeFlush()
}

func (s *GranularStore) Delete(userKey []byte) error {
	s.seq++
	s.mem.Delete(s.seq, cloneBytes(userKey))
	return s.maybeFlush()
}

func (s *GranularStore) maybeFlush() error {
	if s.mem.ApproximateMemoryUsage() < s.opts.MemTableBytes {
		return nil
	}
	return s.compact()
}

// levelCapacity is l0_capacity * level_size_multiplier^level.
func (s *GranularStore) levelCapacity(level int) int {
	capacity := s.opts.L0Capacity
	for i := 0; i < level; i++ {
		capacity *= s.opts.LevelSizeMultiplier
	}
	return capacity
}

// compact seals the active memtable and drives it (and anything the
// process redirects along the way) down through levels 0, 1, 2, ... An
// empty level absorbs the whole merged stream as freshly partitioned
// files; a non-empty level is walked table by table, pulling every entry
// with user_key <= that table's max key, rewriting the table together with
// whatever was pulled. Either path, once the level would hold
// levelCapacity(level)-1 tables, stops writing here and hands the
// remaining stream on to the next level instead (spec section 4.9).
func (s *GranularStore) compact() error {
	sealed := s.mem
	s.mem = NewMemTable(s.opts.MaxLevelSkipList)

	var carry Stream[Entry] = sealed.MakeScan()
	for level := 0; ; level++ {
		capacity := s.levelCapacity(level)
		buildFilter := s.opts.BloomFilterSize > 0

		if s.levels.NumTables(level) == 0 {
			budget := capacity - 1
			if budget < 0 {
				budget = 0
			}
			result, err := s.partitionWrite(carry, budget, buildFilter)
			if err != nil {
				return err
			}
			for _, f := range result.files {
				s.levels.AppendTableFile(level, f.id, f.file, f.reader, f.filter, f.meta)
			}
			if result.remainder == nil {
				return nil
			}
			carry = result.remainder
			continue
		}

		next, err := s.compactNonEmptyLevel(level, capacity, carry, buildFilter)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		carry = next
	}
}

// compactNonEmptyLevel walks level's tables left to right, pulling from
// merged every entry with user_key <= the current table's max key (or
// everything, for the last table). A table nothing was pulled for is left
// untouched; otherwise it is erased and rewritten together with the pulled
// entries as one or more size-bounded files reinserted at the same index.
func (s *GranularStore) compactNonEmptyLevel(level, capacity int, merged Stream[Entry], buildFilter bool) (Stream[Entry], error) {
	var redirect Stream[Entry]
	idx := 0
	for idx < s.levels.NumTables(level) {
		n := s.levels.NumTables(level)
		var upper []byte
		if idx < n-1 {
			upper = s.levels.GetTableMetadata(level, idx).MaxUserKey
		}

		var pulled []Entry
		pulled, merged = pullWhileLE(merged, upper)
		if len(pulled) == 0 {
			idx++
			continue
		}

		exID, exFile, exReader, _, _ := s.levels.EraseTable(level, idx)
		combined := NewMerger([]Stream[Entry]{exReader.MakeScan(), newSliceStream(pulled)})

		budget := capacity - 1 - s.levels.NumTables(level)
		if budget < 0 {
			budget = 0
		}
		result, err := s.partitionWrite(combined, budget, buildFilter)
		if err != nil {
			return nil, err
		}
		insertAt := idx
		for _, f := range result.files {
			s.levels.InsertTableFile(level, insertAt, f.id, f.file, f.reader, f.filter, f.meta)
			insertAt++
		}
		if err := exFile.Close(); err != nil {
			return nil, err
		}
		_ = exID
		idx = insertAt

		if result.remainder != nil {
			if redirect == nil {
				redirect = result.remainder
			} else {
				redirect = newConcatStream([]Stream[Entry]{redirect, result.remainder})
			}
		}
	}
	return redirect, nil
}

// pullWhileLE drains entries from src while user_key <= upper (or all of
// src, if upper is nil, meaning the table has no successor and thus no
// upper bound). The returned stream continues where the pull left off.
func pullWhileLE(src Stream[Entry], upper []byte) ([]Entry, Stream[Entry]) {
	var pulled []Entry
	for {
		e, ok := src.Next()
		if !ok {
			return pulled, src
		}
		if upper != nil && bytes.Compare(e.Key.UserKey, upper) > 0 {
			return pulled, &pushbackStream[Entry]{item: e, has: true, rest: src}
		}
		pulled = append(pulled, e)
	}
}

type writtenFile struct {
	id     uint64
	file   ByteFile
	reader *SSTableReader
	meta   *SSTableMetadata
	filter *BloomFilter
}

type partitionResult struct {
	files     []writtenFile
	remainder Stream[Entry]
}

// entryByteEstimate is the per-entry cost the granular engine's partitioner
// sums against MaxSSTableSize: sequence number, key, and value, plus the
// two header words the builder will spend recording it (spec section 4.9).
func entryByteEstimate(e Entry) uint64 {
	return 24 + uint64(len(e.Key.UserKey)) + uint64(len(e.Value))
}

// partitionWrite writes files of at most maxFiles from stream, cutting a
// file at the first entry boundary that would push it over MaxSSTableSize
// — but never in the middle of a run of entries sharing a user_key, so a
// key's full version history always lands in one file. Once maxFiles files
// have been written, whatever remains of stream is returned unconsumed as
// remainder rather than written here, for the caller to redirect to the
// next level.
func (s *GranularStore) partitionWrite(stream Stream[Entry], maxFiles int, buildFilter bool) (partitionResult, error) {
	var files []writtenFile
	cur := stream
	for {
		if len(files) >= maxFiles {
			return partitionResult{files: files, remainder: cur}, nil
		}
		first, ok := cur.Next()
		if !ok {
			return partitionResult{files: files, remainder: nil}, nil
		}

		builder := NewSSTableBuilder()
		var filter *BloomFilter
		if buildFilter {
			filter = NewBloomFilter(s.opts.BloomFilterSize*8, s.opts.BloomFilterHashCount)
		}
		builder.Add(first.Key, first.Value)
		if filter != nil {
			filter.Add(first.Key.UserKey)
		}
		estimate := entryByteEstimate(first)
		lastKey := first.Key.UserKey

		var exhausted bool
		for {
			e, ok := cur.Next()
			if !ok {
				exhausted = true
				break
			}
			sameKey := bytes.Equal(e.Key.UserKey, lastKey)
			add := entryByteEstimate(e)
			if !sameKey && estimate+add > s.opts.MaxSSTableSize {
				cur = &pushbackStream[Entry]{item: e, has: true, rest: cur}
				break
			}
			builder.Add(e.Key, e.Value)
			if filter != nil {
				filter.Add(e.Key.UserKey)
			}
			estimate += add
			lastKey = e.Key.UserKey
		}

		id := s.nextTableID
		s.nextTableID++
		file, err := newBufferedFile(s.opts.Dir, id, s.cache)
		if err != nil {
			return partitionResult{}, err
		}
		meta, err := builder.Finish(file)
		if err != nil {
			return partitionResult{}, err
		}
		reader, err := OpenSSTableReader(file)
		if err != nil {
			return partitionResult{}, err
		}
		if filter != nil {
			path := filepath.Join(s.opts.Dir, filterFileName(id))
			if err := os.WriteFile(path, filter.Serialize(), 0o644); err != nil {
				return partitionResult{}, errors.Wrapf(err, "lsm: write %s", path)
			}
		}
		files = append(files, writtenFile{id: id, file: file, reader: reader, meta: meta, filter: filter})

		if exhausted {
			return partitionResult{files: files, remainder: nil}, nil
		}
	}
}

func (s *GranularStore) Get(userKey []byte) ([]byte, bool, error) {
	return s.GetAt(userKey, SnapshotSeqMax)
}

// GetAt consults the memtable, then each level in order. Within a level,
// tables are sorted and non-overlapping, so a binary search over
// max_user_key locates the single table that could hold userKey; its bloom
// filter (if any) is consulted before touching disk (spec section 4.9,
// P9).
func (s *GranularStore) GetAt(userKey []byte, snapshotSeq uint64) ([]byte, bool, error) {
	if value, kind := s.mem.Get(userKey, snapshotSeq); kind != GetNotFound {
		return classifyGet(value, kind)
	}
	for level := 0; level < s.levels.NumLevels(); level++ {
		n := s.levels.NumTables(level)
		if n == 0 {
			continue
		}
		idx := sort.Search(n, func(i int) bool {
			return bytes.Compare(s.levels.GetTableMetadata(level, i).MaxUserKey, userKey) >= 0
		})
		if idx == n {
			continue
		}
		meta := s.levels.GetTableMetadata(level, idx)
		if bytes.Compare(userKey, meta.MinUserKey) < 0 {
			continue
		}
		if filter := s.levels.GetTableBloomFilter(level, idx); filter != nil && !filter.MayContain(userKey) {
			continue
		}
		value, kind, err := s.levels.GetTableReader(level, idx).Get(userKey, snapshotSeq)
		if err != nil {
			return nil, false, err
		}
		if kind == GetNotFound {
			continue
		}
		return classifyGet(value, kind)
	}
	return nil, false, nil
}

func (s *GranularStore) Scan(start, end []byte) Stream[KV] {
	return s.ScanAt(start, end, SnapshotSeqMax)
}

// ScanAt merges the memtable with one concatenating iterator per non-empty
// level (each level's tables are already key-ordered and non-overlapping,
// so concatenation alone reproduces the level's sorted order).
func (s *GranularStore) ScanAt(start, end []byte, snapshotSeq uint64) Stream[KV] {
	sources := []Stream[Entry]{s.mem.MakeScan()}
	for level := 0; level < s.levels.NumLevels(); level++ {
		n := s.levels.NumTables(level)
		if n == 0 {
			continue
		}
		var tableStreams []Stream[Entry]
		for i := 0; i < n; i++ {
			if !s.levels.GetTableMetadata(level, i).Overlaps(start, end) {
				continue
			}
			tableStreams = append(tableStreams, s.levels.GetTableReader(level, i).MakeScan())
		}
		if len(tableStreams) == 0 {
			continue
		}
		sources = append(sources, newConcatStream(tableStreams))
	}
	return newScanFilter(NewMerger(sources), start, end, snapshotSeq)
}

func (s *GranularStore) Close() error {
	if err := s.levels.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.opts.Dir)
}

var _ Store = (*GranularStore)(nil)

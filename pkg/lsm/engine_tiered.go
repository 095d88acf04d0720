package lsm

import (
	"os"

	"github.com/pkg/errors"
)

// TieredStore is engine variant A: one table per level, spec section 4.8.
// On flush it cascades a newly written table down through occupied levels,
// two-way-merging with whatever already sits there, until it lands in an
// empty level. Level count grows roughly as log2(bytes_written /
// memtable_bytes), and no level ever holds more than one table.
type TieredStore struct {
	opts        Options
	cache       *frameCache
	levels      *Levels
	mem         *MemTable
	seq         uint64
	nextTableID uint64
}

// OpenTieredStore creates the store's working directory and returns a
// ready engine. Options.Dir defaults to "simple_lsm" per spec section 6.
func OpenTieredStore(opts Options) (*TieredStore, error) {
	opts.setDefaults()
	if opts.Dir == "" {
		opts.Dir = "simple_lsm"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "lsm: create working dir %s", opts.Dir)
	}
	return &TieredStore{
		opts:   opts,
		cache:  newFrameCache(opts.Dir, opts.BufferPoolSize, opts.FrameSize),
		levels: NewLevels(),
		mem:    NewMemTable(opts.MaxLevelSkipList),
	}, nil
}

func (s *TieredStore) GetCurrentSequenceNumber() uint64 { return s.seq }

func (s *TieredStore) Put(userKey, value []byte) error {
	s.seq++
	s.mem.Add(s.seq, cloneBytes(userKey), cloneBytes(value))
	return s.maybeFlush()
}

func (s *TieredStore) Delete(userKey []byte) error {
	s.seq++
	s.mem.Delete(s.seq, cloneBytes(userKey))
	return s.maybeFlush()
}

func (s *TieredStore) maybeFlush() error {
	if s.mem.ApproximateMemoryUsage() < s.opts.MemTableBytes {
		return nil
	}
	return s.flush()
}

// flush seals the active memtable, writes it as a new table, then
// cascades: while the current level already holds a table, erase it,
// merge it with the carried-forward table, and advance a level. Merge
// metadata is min(min1,min2)/max(max1,max2) over the two INPUT tables'
// metadata, not rescanned from the merged output — matching the original
// engine's actual behavior (spec section 9, SPEC_FULL section 4).
func (s *TieredStore) flush() error {
	sealed := s.mem
	s.mem = NewMemTable(s.opts.MaxLevelSkipList)

	curID, curFile, curReader, curMeta, err := s.writeTable(sealed.MakeScan())
	if err != nil {
		return err
	}

	for level := 0; ; level++ {
		if s.levels.NumTables(level) == 0 {
			s.levels.AppendTableFile(level, curID, curFile, curReader, nil, curMeta)
			return nil
		}

		exID, exFile, exReader, _, exMeta := s.levels.EraseTable(level, 0)

		merger := NewMerger([]Stream[Entry]{exReader.MakeScan(), curReader.MakeScan()})
		mergedID, mergedFile, mergedReader, mergedMeta, err := s.writeTable(merger)
		if err != nil {
			return err
		}
		mergedMeta.MinUserKey = minUserKey(exMeta.MinUserKey, curMeta.MinUserKey)
		mergedMeta.MaxUserKey = maxUserKey(exMeta.MaxUserKey, curMeta.MaxUserKey)

		s.opts.Logger.Printf("lsm: merged tables %d and %d into %d at level %d", exID, curID, mergedID, level)

		if err := exFile.Close(); err != nil {
			return err
		}
		if err := curFile.Close(); err != nil {
			return err
		}
		curID, curFile, curReader, curMeta = mergedID, mergedFile, mergedReader, mergedMeta
	}
}

// writeTable drains src into a freshly allocated table file and reopens
// it for reading.
func (s *TieredStore) writeTable(src Stream[Entry]) (id uint64, file ByteFile, reader *SSTableReader, meta *SSTableMetadata, err error) {
	id = s.nextTableID
	s.nextTableID++
	file, err = newBufferedFile(s.opts.Dir, id, s.cache)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	builder := NewSSTableBuilder()
	for {
		e, ok := src.Next()
		if !ok {
			break
		}
		builder.Add(e.Key, e.Value)
	}
	meta, err = builder.Finish(file)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	reader, err = OpenSSTableReader(file)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	return id, file, reader, meta, nil
}

func (s *TieredStore) Get(userKey []byte) ([]byte, bool, error) {
	return s.GetAt(userKey, SnapshotSeqMax)
}

// GetAt consults the memtable, then each level in order; metadata skips
// levels whose range excludes userKey; the first Found or Deletion
// classification terminates the search (spec section 4.8).
func (s *TieredStore) GetAt(userKey []byte, snapshotSeq uint64) ([]byte, bool, error) {
	if value, kind := s.mem.Get(userKey, snapshotSeq); kind != GetNotFound {
		return classifyGet(value, kind)
	}
	for level := 0; level < s.levels.NumLevels(); level++ {
		if s.levels.NumTables(level) == 0 {
			continue
		}
		if !s.levels.GetTableMetadata(level, 0).Contains(userKey) {
			continue
		}
		value, kind, err := s.levels.GetTableReader(level, 0).Get(userKey, snapshotSeq)
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

func classifyGet(value []byte, kind GetKind) ([]byte, bool, error) {
	if kind == GetFound {
		return value, true, nil
	}
	return nil, false, nil
}

func (s *TieredStore) Scan(start, end []byte) Stream[KV] {
	return s.ScanAt(start, end, SnapshotSeqMax)
}

func (s *TieredStore) ScanAt(start, end []byte, snapshotSeq uint64) Stream[KV] {
	sources := []Stream[Entry]{s.mem.MakeScan()}
	for level := 0; level < s.levels.NumLevels(); level++ {
		if s.levels.NumTables(level) == 0 {
			continue
		}
		if !s.levels.GetTableMetadata(level, 0).Overlaps(start, end) {
			continue
		}
		sources = append(sources, s.levels.GetTableReader(level, 0).MakeScan())
	}
	return newScanFilter(NewMerger(sources), start, end, snapshotSeq)
}

func (s *TieredStore) Close() error {
	if err := s.levels.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.opts.Dir)
}

var _ Store = (*TieredStore)(nil)

package lsm

import "github.com/pkg/errors"

// tableSlot is one (data file, optional bloom filter, metadata) entry
// held by the levels provider, spec section 3 / 4.7.
type tableSlot struct {
	id     uint64
	file   ByteFile
	reader *SSTableReader
	filter *BloomFilter
	meta   *SSTableMetadata
}

// Levels is the passive, opaque container of per-level table slots
// described in spec section 4.7: indexed by (level, table index), with
// insertion and erasure shifting the remaining slots. It carries no
// compaction policy of its own — that lives in the engine variants.
type Levels struct {
	levels [][]*tableSlot
}

func NewLevels() *Levels {
	return &Levels{}
}

// NumLevels reports how many levels have ever been touched. Levels are
// auto-created on demand by InsertTableFile, so this only grows.
func (l *Levels) NumLevels() int { return len(l.levels) }

func (l *Levels) ensureLevel(level int) {
	for len(l.levels) <= level {
		l.levels = append(l.levels, nil)
	}
}

// NumTables reports the table count at level, 0 for levels never touched.
func (l *Levels) NumTables(level int) int {
	if level >= len(l.levels) {
		return 0
	}
	return len(l.levels[level])
}

func (l *Levels) slot(level, idx int) *tableSlot {
	if level >= len(l.levels) || idx >= len(l.levels[level]) || idx < 0 || level < 0 {
		invariantf("lsm: levels access (%d,%d) out of range", level, idx)
	}
	return l.levels[level][idx]
}

func (l *Levels) GetTableFile(level, idx int) ByteFile { return l.slot(level, idx).file }

func (l *Levels) GetTableReader(level, idx int) *SSTableReader { return l.slot(level, idx).reader }

func (l *Levels) GetTableBloomFilter(level, idx int) *BloomFilter { return l.slot(level, idx).filter }

func (l *Levels) GetTableMetadata(level, idx int) *SSTableMetadata { return l.slot(level, idx).meta }

func (l *Levels) GetTableID(level, idx int) uint64 { return l.slot(level, idx).id }

// InsertTableFile inserts a table slot at (level, idx), right-shifting
// every later slot in that level, per spec section 4.7. Levels up to and
// including level that don't exist yet are auto-created empty. filter and meta may be
// nil.
func (l *Levels) InsertTableFile(level, idx int, id uint64, file ByteFile, reader *SSTableReader, filter *BloomFilter, meta *SSTableMetadata) {
	l.ensureLevel(level)
	lvl := l.levels[level]
	if idx < 0 || idx > len(lvl) {
		invariantf("lsm: InsertTableFile index %d out of range for level %d (len %d)", idx, level, len(lvl))
	}
	lvl = append(lvl, nil)
	copy(lvl[idx+1:], lvl[idx:])
	lvl[idx] = &tableSlot{id: id, file: file, reader: reader, filter: filter, meta: meta}
	l.levels[level] = lvl
}

// AppendTableFile is a convenience for InsertTableFile at the end of
// level.
func (l *Levels) AppendTableFile(level int, id uint64, file ByteFile, reader *SSTableReader, filter *BloomFilter, meta *SSTableMetadata) {
	l.InsertTableFile(level, l.NumTables(level), id, file, reader, filter, meta)
}

// EraseTable removes and returns the slot at (level, idx), left-shifting
// the remaining slots in that level, per spec section 4.7. It does not
// close the slot's underlying file — the caller decides whether to reuse,
// merge, or discard it.
func (l *Levels) EraseTable(level, idx int) (id uint64, file ByteFile, reader *SSTableReader, filter *BloomFilter, meta *SSTableMetadata) {
	lvl := l.levels[level]
	if idx < 0 || idx >= len(lvl) {
		invariantf("lsm: EraseTable index %d out of range for level %d (len %d)", idx, level, len(lvl))
	}
	slot := lvl[idx]
	copy(lvl[idx:], lvl[idx+1:])
	l.levels[level] = lvl[:len(lvl)-1]
	return slot.id, slot.file, slot.reader, slot.filter, slot.meta
}

// Close releases every table file across every level, aggregating the
// first error encountered while continuing to close the rest — mirroring
// spec section 5's file-lifetime note that tables are scoped-owned by the
// provider entry that holds them.
func (l *Levels) Close() error {
	var first error
	for _, lvl := range l.levels {
		for _, slot := range lvl {
			if slot == nil || slot.file == nil {
				continue
			}
			if err := slot.file.Close(); err != nil && first == nil {
				first = errors.Wrapf(err, "lsm: close table %d", slot.id)
			}
		}
	}
	return first
}

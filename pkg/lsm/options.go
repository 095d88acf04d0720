package lsm

import (
	"log"
	"math"
)

const (
	defaultFrameSizeBytes       = 4096
	defaultBufferPoolSizeBytes  = 64 << 20
	defaultMemTableBytes        = 64 << 20
	defaultMaxLevelSkipList     = 20
	defaultCompactionTrigger    = 2
	defaultMaxSSTableSizeBytes  = 128 << 20
	defaultL0Capacity           = 2
	defaultLevelSizeMultiplier  = 2
	defaultBloomFilterSizeBytes = 4 << 20
	defaultBloomFilterHashCount = 23
)

// SnapshotSeqMax is the "no snapshot" sentinel for Get and Scan: it makes
// every committed write visible, per spec section 4.10.
const SnapshotSeqMax = math.MaxUint64

// Options configures the tiered (single-file-per-level) engine, spec
// section 6.
type Options struct {
	// Dir is the store's working directory, created on Open and removed
	// on Close. Defaults to "simple_lsm", relative to the current working
	// directory, when empty.
	Dir string

	FrameSize        uint64
	BufferPoolSize   uint64
	MemTableBytes    uint64
	MaxLevelSkipList int

	// CompactionTriggerFiles is retained for parity with spec section 6's
	// configuration surface. The tiered engine's per-level cap is always
	// one table regardless of its value ("effectively 1 with the cap-1
	// rule" per spec section 6) — cascading on any occupied level is what
	// keeps that invariant, so this field is not read by flush.
	CompactionTriggerFiles int

	// Logger receives one line per table merge during tiered compaction;
	// cleanup failures are not logged. Defaults to log.Default().
	Logger *log.Logger
}

func (o *Options) setDefaults() {
	if o.FrameSize == 0 {
		o.FrameSize = defaultFrameSizeBytes
	}
	if o.BufferPoolSize == 0 {
		o.BufferPoolSize = defaultBufferPoolSizeBytes
	}
	if o.MemTableBytes == 0 {
		o.MemTableBytes = defaultMemTableBytes
	}
	if o.MaxLevelSkipList == 0 {
		o.MaxLevelSkipList = defaultMaxLevelSkipList
	}
	if o.CompactionTriggerFiles == 0 {
		o.CompactionTriggerFiles = defaultCompactionTrigger
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// GranularOptions configures the granular (leveled, size-bounded) engine,
// spec section 6.
type GranularOptions struct {
	Dir string

	FrameSize              uint64
	BufferPoolSize         uint64
	MemTableBytes          uint64
	MaxLevelSkipList       int
	MaxSSTableSize         uint64
	L0Capacity             int
	LevelSizeMultiplier    int
	BloomFilterSize        uint64
	BloomFilterHashCount   int

	Logger *log.Logger
}

func (o *GranularOptions) setDefaults() {
	if o.FrameSize == 0 {
		o.FrameSize = defaultFrameSizeBytes
	}
	if o.BufferPoolSize == 0 {
		o.BufferPoolSize = defaultBufferPoolSizeBytes
	}
	if o.MemTableBytes == 0 {
		o.MemTableBytes = defaultMemTableBytes
	}
	if o.MaxLevelSkipList == 0 {
		o.MaxLevelSkipList = defaultMaxLevelSkipList
	}
	if o.MaxSSTableSize == 0 {
		o.MaxSSTableSize = defaultMaxSSTableSizeBytes
	}
	if o.L0Capacity == 0 {
		o.L0Capacity = defaultL0Capacity
	}
	if o.LevelSizeMultiplier == 0 {
		o.LevelSizeMultiplier = defaultLevelSizeMultiplier
	}
	if o.BloomFilterHashCount == 0 {
		o.BloomFilterHashCount = defaultBloomFilterHashCount
	}
	// BloomFilterSize's zero value legitimately means "filters disabled"
	// (spec section 6), so setDefaults never changes it — NewGranularOptions
	// below is the entry point that supplies the real default.
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// NewGranularOptions returns GranularOptions with every default applied,
// including bloom filters enabled at the spec's default size. Use this
// instead of a zero-value GranularOptions{} unless you want filters off.
func NewGranularOptions() GranularOptions {
	o := GranularOptions{BloomFilterSize: defaultBloomFilterSizeBytes}
	o.setDefaults()
	return o
}

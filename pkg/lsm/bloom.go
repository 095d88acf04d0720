package lsm

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
)

// BloomFilter is a fixed-size probabilistic membership set built once, at
// SSTable-write time, over the user keys it contains. It never returns a
// false negative. Construction follows the original engine's scheme
// exactly rather than a generic multi-hash bloom (spec section 4.4): each
// of k hash functions is a polynomial evaluation of the key's bytes over a
// distinct small prime, reduced mod the bit count.
type BloomFilter struct {
	bits   *bitset.BitSet
	primes []byte
}

// NewBloomFilter allocates a filter of bitCount bits using the first
// hashCount distinct primes starting at 5 (2 and 3 are reserved by the
// original for other uses and skipped for parity with it).
func NewBloomFilter(bitCount uint64, hashCount int) *BloomFilter {
	return &BloomFilter{
		bits:   bitset.New(uint(bitCount)),
		primes: firstPrimes(hashCount),
	}
}

// firstPrimes returns the first n primes at or above 5, via trial division.
func firstPrimes(n int) []byte {
	primes := make([]byte, 0, n)
	for candidate := 5; len(primes) < n; candidate++ {
		if isPrime(candidate) {
			primes = append(primes, byte(candidate))
		}
	}
	return primes
}

func isPrime(v int) bool {
	if v < 2 {
		return false
	}
	for d := 2; d*d <= v; d++ {
		if v%d == 0 {
			return false
		}
	}
	return true
}

// polyHash evaluates sum(key[i] * prime^i) mod bitCount, matching the
// original's BloomFilter::Hash.
func polyHash(key []byte, prime byte, bitCount uint64) uint64 {
	var h uint64
	p := uint64(1)
	mod := bitCount
	for _, b := range key {
		h = (h + uint64(b)*p) % mod
		p = (p * uint64(prime)) % mod
	}
	return h
}

// Add records key's membership.
func (f *BloomFilter) Add(key []byte) {
	n := f.bits.Len()
	for _, p := range f.primes {
		f.bits.Set(uint(polyHash(key, p, uint64(n))))
	}
}

// MayContain reports whether key might be present. False means definitely
// absent; true means possibly present.
func (f *BloomFilter) MayContain(key []byte) bool {
	n := f.bits.Len()
	for _, p := range f.primes {
		if !f.bits.Test(uint(polyHash(key, p, uint64(n)))) {
			return false
		}
	}
	return true
}

// Serialize writes [u64 bit_count][packed bits][k single-byte primes], the
// on-disk layout from spec section 4.4.
func (f *BloomFilter) Serialize() []byte {
	n := uint64(f.bits.Len())
	byteLen := (n + 7) / 8
	out := make([]byte, 8+byteLen+uint64(len(f.primes)))
	binary.LittleEndian.PutUint64(out[:8], n)

	packed := make([]byte, byteLen)
	for i, ok := f.bits.NextSet(0); ok; i, ok = f.bits.NextSet(i + 1) {
		packed[i/8] |= 1 << (i % 8)
	}
	copy(out[8:8+byteLen], packed)
	copy(out[8+byteLen:], f.primes)
	return out
}

// DeserializeBloomFilter parses the layout written by Serialize. Malformed
// input (too short for its declared bit_count) is a programmer/data error,
// reported via panic, per spec section 4.11 — a bloom filter footer is
// always written by this package, so any mismatch means on-disk corruption
// or a caller mistake, not a recoverable I/O condition.
func DeserializeBloomFilter(data []byte) *BloomFilter {
	if len(data) < 8 {
		panic(&InvariantError{Msg: "lsm: bloom filter buffer shorter than header"})
	}
	n := binary.LittleEndian.Uint64(data[:8])
	byteLen := (n + 7) / 8
	if uint64(len(data)) < 8+byteLen {
		panic(&InvariantError{Msg: "lsm: bloom filter buffer truncated"})
	}
	primes := data[8+byteLen:]

	bits := bitset.New(uint(n))
	packed := data[8 : 8+byteLen]
	for i := uint64(0); i < n; i++ {
		if packed[i/8]&(1<<(i%8)) != 0 {
			bits.Set(uint(i))
		}
	}
	return &BloomFilter{bits: bits, primes: append([]byte(nil), primes...)}
}

// SerializedSize reports the exact byte length Serialize will produce.
func (f *BloomFilter) SerializedSize() uint64 {
	n := uint64(f.bits.Len())
	return 8 + (n+7)/8 + uint64(len(f.primes))
}

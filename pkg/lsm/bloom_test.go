package lsm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	f := NewBloomFilter(4096, 5)
	keys := make([][]byte, 0, 200)
	for i := 0; i < 200; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		f.Add(k)
		keys = append(keys, k)
	}
	for _, k := range keys {
		require.True(t, f.MayContain(k))
	}
}

func TestBloomFilterAbsentKeyUsuallyRejected(t *testing.T) {
	f := NewBloomFilter(4096, 5)
	for i := 0; i < 50; i++ {
		f.Add([]byte(fmt.Sprintf("present-%d", i)))
	}
	falsePositives := 0
	for i := 0; i < 200; i++ {
		if f.MayContain([]byte(fmt.Sprintf("absent-%d", i))) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, 40)
}

func TestBloomFilterSerializeRoundTrip(t *testing.T) {
	f := NewBloomFilter(1024, 7)
	f.Add([]byte("alpha"))
	f.Add([]byte("beta"))

	data := f.Serialize()
	require.EqualValues(t, len(data), f.SerializedSize())

	restored := DeserializeBloomFilter(data)
	require.True(t, restored.MayContain([]byte("alpha")))
	require.True(t, restored.MayContain([]byte("beta")))
}

func TestDeserializeBloomFilterRejectsTruncated(t *testing.T) {
	f := NewBloomFilter(64, 3)
	f.Add([]byte("x"))
	data := f.Serialize()

	require.Panics(t, func() { DeserializeBloomFilter(data[:4]) })
	require.Panics(t, func() { DeserializeBloomFilter(data[:10]) })
}

package lsm

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTieredStore(t *testing.T, memTableBytes uint64) *TieredStore {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenTieredStore(Options{Dir: dir, MemTableBytes: memTableBytes})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func drainKVs(t *testing.T, stream Stream[KV]) []KV {
	t.Helper()
	var out []KV
	for {
		v, ok := stream.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestTieredStorePutGet(t *testing.T) {
	s := newTestTieredStore(t, 1<<20)

	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("b"), []byte("2")))

	value, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), value)

	_, ok, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTieredStoreDeleteHidesKey(t *testing.T) {
	s := newTestTieredStore(t, 1<<20)
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Delete([]byte("a")))

	_, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTieredStoreSnapshotIsolation(t *testing.T) {
	s := newTestTieredStore(t, 1<<20)
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	snap := s.GetCurrentSequenceNumber()
	require.NoError(t, s.Put([]byte("a"), []byte("2")))

	value, ok, err := s.GetAt([]byte("a"), snap)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), value)

	value, ok, err = s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), value)
}

func TestTieredStoreFlushCascadesAcrossLevels(t *testing.T) {
	// A tiny memtable budget forces many flushes, exercising the cascading
	// merge across levels (spec section 4.8).
	s := newTestTieredStore(t, 256)

	want := map[string]string{}
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("key-%04d", i)
		v := fmt.Sprintf("value-%04d", i)
		require.NoError(t, s.Put([]byte(k), []byte(v)))
		want[k] = v
	}

	for k, v := range want {
		value, ok, err := s.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok, "key %s should be found", k)
		require.Equal(t, v, string(value))
	}
}

func TestTieredStoreScanOrderedDedupedNoTombstones(t *testing.T) {
	s := newTestTieredStore(t, 256)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Put([]byte(fmt.Sprintf("k%03d", i)), []byte(fmt.Sprintf("v%03d", i))))
	}
	require.NoError(t, s.Delete([]byte("k010")))
	require.NoError(t, s.Put([]byte("k020"), []byte("updated")))

	got := drainKVs(t, s.Scan([]byte("k005"), []byte("k025")))

	var keys []string
	for _, kv := range got {
		keys = append(keys, string(kv.UserKey))
	}
	require.NotContains(t, keys, "k010")
	require.True(t, len(keys) > 0)

	for i, kv := range got {
		if i > 0 {
			require.Less(t, string(got[i-1].UserKey), string(kv.UserKey))
		}
	}

	for _, kv := range got {
		if string(kv.UserKey) == "k020" {
			require.Equal(t, "updated", string(kv.Value))
		}
	}
}

func TestTieredStoreCloseRemovesWorkingDirectory(t *testing.T) {
	dir := t.TempDir() + "/store"
	s, err := OpenTieredStore(Options{Dir: dir, MemTableBytes: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Close())

	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))
}

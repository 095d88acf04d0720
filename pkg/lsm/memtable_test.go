package lsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemTablePutGetDelete(t *testing.T) {
	m := NewMemTable(20)

	m.Add(1, []byte("a"), []byte("1"))
	val, kind := m.Get([]byte("a"), 1)
	require.Equal(t, GetFound, kind)
	require.Equal(t, []byte("1"), val)

	m.Delete(2, []byte("a"))
	_, kind = m.Get([]byte("a"), 2)
	require.Equal(t, GetDeletion, kind)

	// snapshot before the delete still sees the value
	val, kind = m.Get([]byte("a"), 1)
	require.Equal(t, GetFound, kind)
	require.Equal(t, []byte("1"), val)

	m.Add(3, []byte("a"), []byte("2"))
	val, kind = m.Get([]byte("a"), 3)
	require.Equal(t, GetFound, kind)
	require.Equal(t, []byte("2"), val)
}

func TestMemTableGetMissingKey(t *testing.T) {
	m := NewMemTable(20)
	m.Add(1, []byte("a"), []byte("1"))

	_, kind := m.Get([]byte("z"), 1)
	require.Equal(t, GetNotFound, kind)

	_, kind = m.Get([]byte("a"), 0)
	require.Equal(t, GetNotFound, kind)
}

func TestMemTableScanOrder(t *testing.T) {
	m := NewMemTable(20)
	m.Add(1, []byte("c"), []byte("30"))
	m.Add(2, []byte("a"), []byte("10"))
	m.Add(3, []byte("b"), []byte("20"))

	stream := m.MakeScan()
	var keys []string
	for {
		e, ok := stream.Next()
		if !ok {
			break
		}
		keys = append(keys, string(e.Key.UserKey))
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemTableScanNewestVersionFirst(t *testing.T) {
	m := NewMemTable(20)
	m.Add(1, []byte("a"), []byte("10"))
	m.Add(2, []byte("a"), []byte("20"))

	stream := m.MakeScan()
	first, ok := stream.Next()
	require.True(t, ok)
	require.Equal(t, uint64(2), first.Key.Seq)
	require.Equal(t, []byte("20"), first.Value)

	second, ok := stream.Next()
	require.True(t, ok)
	require.Equal(t, uint64(1), second.Key.Seq)
}

func TestMemTableApproximateMemoryUsageMonotone(t *testing.T) {
	m := NewMemTable(20)
	require.EqualValues(t, 0, m.ApproximateMemoryUsage())

	var last uint64
	for i := 0; i < 100; i++ {
		m.Add(uint64(i+1), []byte{byte(i)}, []byte("value"))
		cur := m.ApproximateMemoryUsage()
		require.GreaterOrEqual(t, cur, last)
		last = cur
	}
}

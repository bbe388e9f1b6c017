package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat-be/pkg/rag/ragerr"
)

func newTestIndex(t *testing.T) *FlatIndex {
	t.Helper()
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add([][]float32{
		{0, 0},
		{3, 4},
		{1, 0},
		{0, 1},
	}))
	return idx
}

func TestFlatIndexSearchOrdersByDistance(t *testing.T) {
	idx := newTestIndex(t)

	tests := []struct {
		name      string
		k         int
		positions []int
	}{
		{name: "top one", k: 1, positions: []int{0}},
		{name: "ties keep insertion order", k: 3, positions: []int{0, 2, 3}},
		{name: "k larger than index", k: 10, positions: []int{0, 2, 3, 1}},
		{name: "zero k", k: 0, positions: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Search([]float32{0, 0}, tt.k)
			require.NoError(t, err)

			got := make([]int, len(hits))
			for i, h := range hits {
				got[i] = h.Position
			}
			assert.Equal(t, tt.positions, got)

			for i := 1; i < len(hits); i++ {
				assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
			}
		})
	}
}

func TestFlatIndexRejectsWrongDimension(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.Add([][]float32{{1, 2, 3}})
	assert.ErrorIs(t, err, ragerr.ErrCorruptState)
	assert.Equal(t, 4, idx.Len())

	_, err = idx.Search([]float32{1}, 1)
	assert.ErrorIs(t, err, ragerr.ErrCorruptState)
}

func TestFlatIndexBinaryRoundTrip(t *testing.T) {
	idx := newTestIndex(t)

	raw, err := idx.MarshalBinary()
	require.NoError(t, err)

	var restored FlatIndex
	require.NoError(t, restored.UnmarshalBinary(raw))
	assert.Equal(t, idx.Dim(), restored.Dim())
	assert.Equal(t, idx.Len(), restored.Len())
	assert.Equal(t, []float32{3, 4}, restored.Vector(1))
}

func TestFlatIndexUnmarshalRejectsDamage(t *testing.T) {
	raw, err := newTestIndex(t).MarshalBinary()
	require.NoError(t, err)

	badMagic := append([]byte(nil), raw...)
	badMagic[0] = 'X'

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad magic", data: badMagic},
		{name: "truncated payload", data: raw[:len(raw)-3]},
		{name: "trailing bytes", data: append(append([]byte(nil), raw...), 0, 0, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var idx FlatIndex
			assert.ErrorIs(t, idx.UnmarshalBinary(tt.data), ragerr.ErrCorruptState)
		})
	}
}

func TestFlatIndexCloneIsIndependent(t *testing.T) {
	idx := newTestIndex(t)
	clone := idx.Clone()
	require.NoError(t, clone.Add([][]float32{{9, 9}}))

	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 5, clone.Len())
}

package vectorindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"rag-chat-be/pkg/rag/ragerr"
)

// indexMagic prefixes every serialized FlatIndex.
var indexMagic = [8]byte{'R', 'A', 'G', 'F', 'L', 'A', 'T', '1'}

// FlatIndex is an exact nearest-neighbour index under squared L2 distance.
// Vectors are stored back to back; position i is the i-th vector added.
type FlatIndex struct {
	dim  int
	data []float32
}

// Hit is one search result: the insertion position and its distance.
type Hit struct {
	Position int
	Distance float32
}

func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

func (f *FlatIndex) Dim() int { return f.dim }

func (f *FlatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors. Every vector must match the index dimension.
func (f *FlatIndex) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has dimension %d, index has %d", ragerr.ErrCorruptState, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Vector returns a copy of the vector at position i.
func (f *FlatIndex) Vector(i int) []float32 {
	out := make([]float32, f.dim)
	copy(out, f.data[i*f.dim:(i+1)*f.dim])
	return out
}

// Search returns up to k hits ordered by non-decreasing distance. Equal
// distances keep insertion order.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ragerr.ErrCorruptState, len(query), f.dim)
	}
	n := f.Len()
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		row := f.data[i*f.dim : (i+1)*f.dim]
		var dist float32
		for j, q := range query {
			d := row[j] - q
			dist += d * d
		}
		hits[i] = Hit{Position: i, Distance: dist}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

// Clone returns an independent copy. Callers mutate clones and swap them in.
func (f *FlatIndex) Clone() *FlatIndex {
	data := make([]float32, len(f.data), len(f.data)+f.dim*8)
	copy(data, f.data)
	return &FlatIndex{dim: f.dim, data: data}
}

// MarshalBinary layout: magic, uint32 dim, uint64 count, then count*dim
// little-endian float32 values.
func (f *FlatIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(indexMagic) + 12 + 4*len(f.data))
	buf.Write(indexMagic[:])
	if err := binary.Write(&buf, binary.LittleEndian, uint32(f.dim)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(f.Len())); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, f.data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *FlatIndex) UnmarshalBinary(raw []byte) error {
	r := bytes.NewReader(raw)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != indexMagic {
		return fmt.Errorf("%w: not a flat index artifact", ragerr.ErrCorruptState)
	}

	var dim uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("%w: read dimension: %v", ragerr.ErrCorruptState, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("%w: read count: %v", ragerr.ErrCorruptState, err)
	}
	if dim == 0 && count > 0 {
		return fmt.Errorf("%w: zero dimension with %d vectors", ragerr.ErrCorruptState, count)
	}

	want := uint64(dim) * count
	if uint64(r.Len()) != want*4 {
		return fmt.Errorf("%w: payload holds %d bytes, header promises %d", ragerr.ErrCorruptState, r.Len(), want*4)
	}

	data := make([]float32, want)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("%w: read vectors: %v", ragerr.ErrCorruptState, err)
	}

	f.dim = int(dim)
	f.data = data
	return nil
}

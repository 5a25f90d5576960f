// Package vectorindex provides an exhaustive (flat) nearest-neighbor index
// over fixed-dimension float32 vectors using squared Euclidean distance.
package vectorindex

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is one search hit: the row position and its squared L2 distance.
type Neighbor struct {
	Row      int
	Distance float32
}

// Flat is a row-major flat index. It is not safe for concurrent mutation;
// callers serialize access.
type Flat struct {
	dim  int
	data []float32
}

// New creates an empty index. A dimension of 0 is fixed by the first Add.
func New(dim int) *Flat {
	if dim < 0 {
		dim = 0
	}
	return &Flat{dim: dim}
}

// Dimension returns the fixed vector length, or 0 if not yet fixed.
func (f *Flat) Dimension() int {
	return f.dim
}

// Size returns the number of rows.
func (f *Flat) Size() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors as new rows. Every vector is validated before any is
// appended, so a failed Add leaves the index unchanged.
func (f *Flat) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has length %d, index expects %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	f.dim = dim
	data := make([]float32, len(f.data), len(f.data)+len(vectors)*dim)
	copy(data, f.data)
	for _, v := range vectors {
		data = append(data, v...)
	}
	f.data = data
	return nil
}

// Search returns up to k nearest rows ordered by ascending distance, ties by
// row position. k is clamped to Size; an empty index yields no neighbors.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	n := f.Size()
	if n == 0 || k <= 0 {
		return []Neighbor{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has length %d, index expects %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if k > n {
		k = n
	}

	all := make([]Neighbor, n)
	for row := 0; row < n; row++ {
		all[row] = Neighbor{Row: row, Distance: squaredL2(query, f.row(row))}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Distance < all[j].Distance
	})
	return all[:k:k], nil
}

// Vector returns a copy of the vector stored at row.
func (f *Flat) Vector(row int) ([]float32, error) {
	if row < 0 || row >= f.Size() {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, f.Size())
	}
	out := make([]float32, f.dim)
	copy(out, f.row(row))
	return out, nil
}

// Reset discards every row, keeping the dimension.
func (f *Flat) Reset() {
	f.data = nil
}

// Clone returns a deep copy.
func (f *Flat) Clone() *Flat {
	data := make([]float32, len(f.data))
	copy(data, f.data)
	return &Flat{dim: f.dim, data: data}
}

func (f *Flat) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// squaredL2 computes the squared Euclidean distance between equal-length vectors.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

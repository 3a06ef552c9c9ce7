package feature

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Buffer is a fixed capacity FIFO of feature vectors.
// Once full, pushing a new vector evicts the oldest one.
type Buffer struct {
	size  int
	width int
	// rows is a ring of feature vectors; head points to the oldest
	rows [][]float64
	head int
	n    int
}

// NewBuffer creates new Buffer holding up to size feature vectors of the given width.
func NewBuffer(size, width int) (*Buffer, error) {
	if size <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid buffer dimensions: [%d x %d]", size, width)
	}

	rows := make([][]float64, size)
	for i := range rows {
		rows[i] = make([]float64, width)
	}

	return &Buffer{
		size:  size,
		width: width,
		rows:  rows,
	}, nil
}

// Push appends a copy of v evicting the oldest vector when the buffer is full.
func (b *Buffer) Push(v []float64) error {
	if len(v) != b.width {
		return fmt.Errorf("invalid feature vector length: %d != %d", len(v), b.width)
	}

	idx := (b.head + b.n) % b.size
	if b.n == b.size {
		idx = b.head
		b.head = (b.head + 1) % b.size
	} else {
		b.n++
	}
	copy(b.rows[idx], v)

	return nil
}

// Ready returns true once the buffer holds exactly size vectors
func (b *Buffer) Ready() bool {
	return b.n == b.size
}

// Len returns the number of buffered vectors
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns buffer capacity
func (b *Buffer) Cap() int {
	return b.size
}

// Window returns a snapshot of buffered vectors, oldest first, one per row.
// The snapshot does not change when the buffer is pushed to.
func (b *Buffer) Window() *mat.Dense {
	if b.n == 0 {
		return nil
	}

	w := mat.NewDense(b.n, b.width, nil)
	for i := 0; i < b.n; i++ {
		w.SetRow(i, b.rows[(b.head+i)%b.size])
	}

	return w
}

// Reset empties the buffer
func (b *Buffer) Reset() {
	b.head, b.n = 0, 0
}

package signal

import (
	"github.com/Brownie44l1/eeg-api/internal/errors"
)

// Buffer is a fixed-length window of samples. Its length never changes after
// construction; writes outside [0, Len()-1] are rejected.
type Buffer struct {
	values []float64
}

// NewBuffer returns a buffer of size samples, each set to fill.
func NewBuffer(size int, fill float64) *Buffer {
	if size < 1 {
		panic("buffer size must be positive")
	}
	values := make([]float64, size)
	for i := range values {
		values[i] = fill
	}
	return &Buffer{values: values}
}

// FromValues copies values into a new buffer that must hold exactly size samples.
func FromValues(values []float64, size int) (*Buffer, error) {
	if len(values) != size {
		return nil, errors.Wrapf(errors.ErrShapeMismatch, "expected %d values, got %d", size, len(values))
	}
	b := &Buffer{values: make([]float64, size)}
	copy(b.values, values)
	return b, nil
}

func (b *Buffer) Len() int {
	return len(b.values)
}

// At returns the sample at index i.
func (b *Buffer) At(i int) float64 {
	return b.values[i]
}

// Values returns a copy of the samples.
func (b *Buffer) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// Float32 returns the samples as a model input row.
func (b *Buffer) Float32() []float32 {
	out := make([]float32, len(b.values))
	for i, v := range b.values {
		out[i] = float32(v)
	}
	return out
}

// Set writes v at index i.
func (b *Buffer) Set(i int, v float64) error {
	if i < 0 || i >= len(b.values) {
		return errors.Wrapf(errors.ErrOutOfRange, "index %d not in [0, %d]", i, len(b.values)-1)
	}
	b.values[i] = v
	return nil
}

// FillRange writes v to every index between a and b inclusive, in either order.
func (b *Buffer) FillRange(from, to int, v float64) error {
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 || hi >= len(b.values) {
		return errors.Wrapf(errors.ErrOutOfRange, "range [%d, %d] not in [0, %d]", lo, hi, len(b.values)-1)
	}
	for i := lo; i <= hi; i++ {
		b.values[i] = v
	}
	return nil
}

func (b *Buffer) Clone() *Buffer {
	return &Buffer{values: b.Values()}
}

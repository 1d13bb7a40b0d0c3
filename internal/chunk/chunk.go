// Package chunk implements fixed-size dense storage for per-cell scalar
// data over a bounded 2D or 3D grid. One chunk owns width^dims cells;
// which cells mean height and which mean material is up to the caller.
package chunk

import (
	"errors"
	"fmt"

	"terramesh.dev/internal/grid"
)

// ErrOutOfRange reports a cell coordinate with a component outside
// [0, width). It is a caller bug, never retried, and coordinates are
// never clamped: clamping would break the coordinate/index bijection
// that storage and mesh extraction both rely on.
var ErrOutOfRange = errors.New("cell coordinate out of range")

// Cell constrains the scalar types a chunk can store. Zero is the
// canonical empty value for all of them.
type Cell interface {
	~uint8 | ~uint16 | ~uint32
}

// Sampler is the minimal read-only view of a chunk. Code that only
// needs lookups should accept this instead of Store.
type Sampler[T Cell] interface {
	Sample(grid.Coord) (T, error)
}

// Store is the full chunk capability: sampling, mutation and
// full-extent iteration.
type Store[T Cell] interface {
	Sampler[T]
	Write(grid.Coord, T) error
	Iter() *Iterator[T]
	Width() int
	Dims() int
}

// Chunk is dense, contiguous storage for width^dims cells. The backing
// slice always has exactly that length and is never resized. A chunk is
// exclusively owned by whichever registry entry holds it; Write and
// Sample/Iter must not be interleaved from different goroutines.
type Chunk[T Cell] struct {
	codec grid.Codec
	cells []T
}

var _ Store[uint8] = (*Chunk[uint8])(nil)

// New allocates a zero-initialized chunk. Width must be a power of two
// >= 2 and dims 2 or 3.
func New[T Cell](width, dims int) (*Chunk[T], error) {
	codec, err := grid.NewCodec(width, dims)
	if err != nil {
		return nil, err
	}
	return &Chunk[T]{
		codec: codec,
		cells: make([]T, codec.Size()),
	}, nil
}

func (c *Chunk[T]) Width() int { return c.codec.Width() }
func (c *Chunk[T]) Dims() int  { return c.codec.Dims() }

// Len is the cell count, width^dims.
func (c *Chunk[T]) Len() int { return len(c.cells) }

// Write stores v at p.
func (c *Chunk[T]) Write(p grid.Coord, v T) error {
	if !c.codec.InBounds(p) {
		return fmt.Errorf("write %v (width %d): %w", p, c.codec.Width(), ErrOutOfRange)
	}
	c.cells[c.codec.Linearize(p)] = v
	return nil
}

// Sample reads the cell at p.
func (c *Chunk[T]) Sample(p grid.Coord) (T, error) {
	if !c.codec.InBounds(p) {
		var zero T
		return zero, fmt.Errorf("sample %v (width %d): %w", p, c.codec.Width(), ErrOutOfRange)
	}
	return c.cells[c.codec.Linearize(p)], nil
}

// Iter returns a fresh iterator over every cell in ascending linear
// index order (axis 0 fastest). Each call starts an independent pass;
// iterating does not mutate the chunk.
func (c *Chunk[T]) Iter() *Iterator[T] {
	return &Iterator[T]{chunk: c}
}

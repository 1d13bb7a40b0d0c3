package chunk

import "terramesh.dev/internal/grid"

// Iterator is a lazy pass over every cell of one chunk. It materializes
// one cell per Next call and finishes after exactly width^dims cells.
type Iterator[T Cell] struct {
	chunk *Chunk[T]
	next  int
}

// Next returns the next (coordinate, value) pair. ok is false once the
// pass is exhausted.
func (it *Iterator[T]) Next() (p grid.Coord, v T, ok bool) {
	if it.next >= len(it.chunk.cells) {
		return p, v, false
	}
	p = it.chunk.codec.Delinearize(it.next)
	v = it.chunk.cells[it.next]
	it.next++
	return p, v, true
}

// Remaining is the number of cells Next has not yet produced.
func (it *Iterator[T]) Remaining() int {
	return len(it.chunk.cells) - it.next
}

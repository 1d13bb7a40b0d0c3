// Package chunkmap tracks which chunks exist in the infinite chunk
// lattice, which are outdated (their mesh no longer matches their
// cells), and which must stay resident for the agents observing them.
package chunkmap

import (
	"fmt"

	"terramesh.dev/internal/chunk"
	"terramesh.dev/internal/grid"
)

// Config fixes the shape of every chunk in one map.
type Config struct {
	Width   int
	Dims    int
	Radius  int   // residency radius in chunk-grid units
	Channel uint8 // layer id; only same-channel agents drive residency
	Policy  ResidencyPolicy
}

type agentState struct {
	pos     grid.Point
	channel uint8
	hasPos  bool
}

// Map is a sparse registry from chunk-grid coordinates to owned chunks.
// All state must be accessed from a single goroutine; the service layer
// serializes access through its loop.
type Map[T chunk.Cell] struct {
	cfg    Config
	chunks map[grid.Point]*chunk.Chunk[T]

	// Outdated set with stable insertion order. A coordinate appears
	// at most once; membership lives in outdated, drain order in queue.
	outdated map[grid.Point]struct{}
	queue    []grid.Point

	agents map[string]*agentState
}

// New builds an empty map. The width/dims pair is validated the same
// way chunk.New validates it.
func New[T chunk.Cell](cfg Config) (*Map[T], error) {
	if _, err := grid.NewCodec(cfg.Width, cfg.Dims); err != nil {
		return nil, fmt.Errorf("chunkmap: %w", err)
	}
	if cfg.Radius < 0 {
		return nil, fmt.Errorf("chunkmap: negative residency radius %d", cfg.Radius)
	}
	if cfg.Policy == nil {
		cfg.Policy = ChebyshevPolicy{Dims: cfg.Dims}
	}
	return &Map[T]{
		cfg:      cfg,
		chunks:   map[grid.Point]*chunk.Chunk[T]{},
		outdated: map[grid.Point]struct{}{},
		agents:   map[string]*agentState{},
	}, nil
}

// Len is the number of resident chunks.
func (m *Map[T]) Len() int { return len(m.chunks) }

// Get returns the chunk at p without creating it.
func (m *Map[T]) Get(p grid.Point) (*chunk.Chunk[T], bool) {
	c, ok := m.chunks[p]
	return c, ok
}

// Ensure returns the chunk at p, creating a zero-initialized one if
// absent. Newly created chunks are immediately marked outdated so their
// first mesh gets built.
func (m *Map[T]) Ensure(p grid.Point) (*chunk.Chunk[T], bool) {
	if c, ok := m.chunks[p]; ok {
		return c, false
	}
	c, err := chunk.New[T](m.cfg.Width, m.cfg.Dims)
	if err != nil {
		// Width/dims were validated in New; this cannot fail afterwards.
		panic(err)
	}
	m.chunks[p] = c
	m.MarkOutdated(p)
	return c, true
}

// MarkOutdated records that the chunk at p needs remeshing. Idempotent:
// marking an already-pending coordinate is a no-op.
func (m *Map[T]) MarkOutdated(p grid.Point) {
	if _, ok := m.outdated[p]; ok {
		return
	}
	m.outdated[p] = struct{}{}
	m.queue = append(m.queue, p)
}

// Outdated reports whether p is pending a remesh.
func (m *Map[T]) Outdated(p grid.Point) bool {
	_, ok := m.outdated[p]
	return ok
}

// OutdatedLen is the number of coordinates pending a remesh.
func (m *Map[T]) OutdatedLen() int { return len(m.outdated) }

// DrainOutdated returns every pending coordinate exactly once, in
// insertion order, and leaves the set empty.
func (m *Map[T]) DrainOutdated() []grid.Point {
	if len(m.queue) == 0 {
		return nil
	}
	out := make([]grid.Point, 0, len(m.queue))
	for _, p := range m.queue {
		if _, ok := m.outdated[p]; ok {
			out = append(out, p)
			delete(m.outdated, p)
		}
	}
	m.queue = m.queue[:0]
	return out
}

// DrainOne pops a single pending coordinate, oldest first.
func (m *Map[T]) DrainOne() (grid.Point, bool) {
	for len(m.queue) > 0 {
		p := m.queue[0]
		m.queue = m.queue[1:]
		if _, ok := m.outdated[p]; ok {
			delete(m.outdated, p)
			return p, true
		}
	}
	return grid.Point{}, false
}

// Evict removes the chunk at p along with any pending outdated mark.
// Eviction is caller-driven: the map computes candidates in UpdateAgent
// but never removes chunks on its own.
func (m *Map[T]) Evict(p grid.Point) bool {
	if _, ok := m.chunks[p]; !ok {
		return false
	}
	delete(m.chunks, p)
	delete(m.outdated, p)
	return true
}

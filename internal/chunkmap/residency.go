package chunkmap

import "terramesh.dev/internal/grid"

// ResidencyChange is the outcome of one agent move: chunks that newly
// fall inside the agent's radius and chunks that fell out of it. Evict
// holds candidates only; the caller decides whether to act on them.
type ResidencyChange struct {
	Load  []grid.Point
	Evict []grid.Point
}

// ResidencyPolicy decides which chunks an agent move loads and which it
// releases. prev is meaningful only when hasPrev is true (first update
// for an agent has no previous position).
type ResidencyPolicy interface {
	Decide(prev, curr grid.Point, hasPrev bool, radius int) ResidencyChange
}

// ChebyshevPolicy keeps every chunk within a square (cube in 3D)
// Chebyshev radius of the agent resident. Dims controls how many
// lattice axes the radius spans; the remaining axis is pinned to the
// agent's coordinate.
type ChebyshevPolicy struct {
	Dims int
}

func (p ChebyshevPolicy) Decide(prev, curr grid.Point, hasPrev bool, radius int) ResidencyChange {
	dims := p.Dims
	if dims != 3 {
		dims = 2
	}
	var ch ResidencyChange
	if !hasPrev {
		ch.Load = p.within(curr, radius, dims)
		return ch
	}
	if prev == curr {
		return ch
	}
	for _, q := range p.within(curr, radius, dims) {
		if q.Chebyshev(prev, dims) > radius || !sameSlice(q, prev, dims) {
			ch.Load = append(ch.Load, q)
		}
	}
	for _, q := range p.within(prev, radius, dims) {
		if q.Chebyshev(curr, dims) > radius || !sameSlice(q, curr, dims) {
			ch.Evict = append(ch.Evict, q)
		}
	}
	return ch
}

// within enumerates the coordinates inside the radius box around c,
// lowest axis fastest.
func (p ChebyshevPolicy) within(c grid.Point, radius, dims int) []grid.Point {
	side := 2*radius + 1
	n := side * side
	if dims == 3 {
		n *= side
	}
	out := make([]grid.Point, 0, n)
	zlo, zhi := c.Z, c.Z
	if dims == 3 {
		zlo, zhi = c.Z-radius, c.Z+radius
	}
	for z := zlo; z <= zhi; z++ {
		for y := c.Y - radius; y <= c.Y+radius; y++ {
			for x := c.X - radius; x <= c.X+radius; x++ {
				out = append(out, grid.Point{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// sameSlice reports whether q lies on the same unused-axis slice as c.
// For 2D maps a move along Z shifts the whole working set.
func sameSlice(q, c grid.Point, dims int) bool {
	if dims == 3 {
		return true
	}
	return q.Z == c.Z
}

// Package grid holds the coordinate types shared by chunk storage, the
// chunk registry and mesh extraction, and the codec mapping cell
// coordinates to flat storage indices.
package grid

// Coord is a cell coordinate inside one chunk. Axis 0 is the
// fastest-varying axis of the storage order. For 2D chunks axis 2 is
// unused and must stay zero.
type Coord [3]int

// Point identifies a chunk's position in the infinite chunk lattice.
// Distinct from Coord: Point addresses whole chunks, Coord addresses
// cells within one.
type Point struct {
	X, Y, Z int
}

// Chebyshev returns the Chebyshev (max-axis) distance between two
// lattice points over the first dims axes.
func (p Point) Chebyshev(q Point, dims int) int {
	d := absInt(p.X - q.X)
	if dims >= 2 {
		if v := absInt(p.Y - q.Y); v > d {
			d = v
		}
	}
	if dims >= 3 {
		if v := absInt(p.Z - q.Z); v > d {
			d = v
		}
	}
	return d
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

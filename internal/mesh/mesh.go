// Package mesh turns a 2D height chunk's sampled values into renderable
// geometry: per-cell positions, normals and texture coordinates plus a
// triangle index buffer. Extraction is whole-chunk; one stale cell
// rebuilds the entire mesh.
package mesh

import (
	"errors"
	"fmt"

	"terramesh.dev/internal/chunk"
)

// ErrNotHeightfield is returned when extraction is asked to mesh a
// chunk whose dimensionality is not 2.
var ErrNotHeightfield = errors.New("mesh extraction requires a 2D height chunk")

// Mesh is the ephemeral output of one extraction. Positions and Normals
// hold three floats per vertex, UVs two, Indices six per interior quad.
// Ownership passes to whoever uploads it; the core never mutates a mesh
// after returning it.
type Mesh struct {
	Positions []float32
	Normals   []float32
	UVs       []float32
	Indices   []uint32
}

// VertexCount is the number of vertices in the buffers.
func (m *Mesh) VertexCount() int { return len(m.Positions) / 3 }

// maxCell is the largest representable height value; stored heights
// normalize to y = v/maxCell in [0,1].
const maxCell = 255

// Extract walks every cell of a height chunk and builds a triangulated
// surface. Per cell the position is (x/W, v/255, y/W), the normal the
// up axis (flat-shaded height field, no slope estimation) and the UV
// the normalized (x, y). Every interior quad contributes two triangles
// with one uniform winding, counter-clockwise seen from above, so the
// surface is outward-consistent. The result always has W^2 vertices and
// 6*(W-1)^2 indices.
func Extract(st chunk.Store[uint8]) (*Mesh, error) {
	if st.Dims() != 2 {
		return nil, fmt.Errorf("dims %d: %w", st.Dims(), ErrNotHeightfield)
	}
	w := st.Width()
	cells := w * w
	m := &Mesh{
		Positions: make([]float32, 0, cells*3),
		Normals:   make([]float32, 0, cells*3),
		UVs:       make([]float32, 0, cells*2),
		Indices:   make([]uint32, 0, 6*(w-1)*(w-1)),
	}

	inv := 1.0 / float32(w)
	it := st.Iter()
	for p, v, ok := it.Next(); ok; p, v, ok = it.Next() {
		x := float32(p[0]) * inv
		z := float32(p[1]) * inv
		m.Positions = append(m.Positions, x, float32(v)/maxCell, z)
		m.Normals = append(m.Normals, 0, 1, 0)
		m.UVs = append(m.UVs, x, z)
	}

	for y := 0; y < w-1; y++ {
		for x := 0; x < w-1; x++ {
			i := uint32(x + y*w)
			// Two triangles per quad: (i, i+W, i+1) and
			// (i+1, i+W, i+W+1).
			m.Indices = append(m.Indices,
				i, i+uint32(w), i+1,
				i+1, i+uint32(w), i+uint32(w)+1,
			)
		}
	}
	return m, nil
}

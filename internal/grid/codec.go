package grid

import "fmt"

// Codec converts between cell coordinates and flat storage indices for
// a chunk of a fixed power-of-two width. The mapping is row-major with
// axis 0 fastest:
//
//	idx = c[0] + c[1]*W + c[2]*W*W
//
// Because W is a power of two the multiplies reduce to shifts and the
// inverse to shift/mask, so Linearize/Delinearize stay branchless on
// the hot path. The pair is a bijection between [0,W)^dims and
// [0, W^dims).
type Codec struct {
	width int
	dims  int
	shift uint
	mask  int
	size  int
}

// NewCodec builds a codec for the given chunk width and dimensionality.
// Width must be a power of two >= 2; dims must be 2 or 3.
func NewCodec(width, dims int) (Codec, error) {
	if width < 2 || width&(width-1) != 0 {
		return Codec{}, fmt.Errorf("chunk width must be a power of two >= 2, got %d", width)
	}
	if dims != 2 && dims != 3 {
		return Codec{}, fmt.Errorf("chunk dimensionality must be 2 or 3, got %d", dims)
	}
	var shift uint
	for 1<<shift != width {
		shift++
	}
	size := width
	for i := 1; i < dims; i++ {
		size *= width
	}
	return Codec{
		width: width,
		dims:  dims,
		shift: shift,
		mask:  width - 1,
		size:  size,
	}, nil
}

func (c Codec) Width() int { return c.width }
func (c Codec) Dims() int  { return c.dims }

// Size is the cell count of one chunk, width^dims.
func (c Codec) Size() int { return c.size }

// InBounds reports whether every used component of p lies in [0, width)
// and every unused component is zero.
func (c Codec) InBounds(p Coord) bool {
	for a := 0; a < c.dims; a++ {
		if p[a] < 0 || p[a] >= c.width {
			return false
		}
	}
	for a := c.dims; a < len(p); a++ {
		if p[a] != 0 {
			return false
		}
	}
	return true
}

// Linearize maps a cell coordinate to its flat index. Callers must stay
// in bounds; storage access is where violations are caught.
func (c Codec) Linearize(p Coord) int {
	idx := p[0]
	for a := 1; a < c.dims; a++ {
		idx |= p[a] << (c.shift * uint(a))
	}
	return idx
}

// Delinearize is the inverse of Linearize.
func (c Codec) Delinearize(idx int) Coord {
	var p Coord
	for a := 0; a < c.dims; a++ {
		p[a] = (idx >> (c.shift * uint(a))) & c.mask
	}
	return p
}

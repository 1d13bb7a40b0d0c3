package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"terramesh.dev/internal/mesh"
)

// EncodingZstd is the only mesh payload encoding the protocol speaks.
const EncodingZstd = "zstd+base64"

// Binary layout (little-endian), before compression:
//
//	uint32 vertexCount
//	uint32 indexCount
//	float32[vertexCount*3] positions
//	float32[vertexCount*3] normals
//	float32[vertexCount*2] uvs
//	uint32[indexCount]     indices
const meshHeaderLen = 8

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zdec, _ = zstd.NewReader(nil)
)

// EncodeMeshPayload packs a mesh into the wire payload.
func EncodeMeshPayload(m *mesh.Mesh) (string, error) {
	vc := m.VertexCount()
	if len(m.Normals) != vc*3 || len(m.UVs) != vc*2 {
		return "", fmt.Errorf("inconsistent mesh buffers: %d positions, %d normals, %d uvs",
			len(m.Positions), len(m.Normals), len(m.UVs))
	}
	raw := make([]byte, 0, meshHeaderLen+4*(len(m.Positions)+len(m.Normals)+len(m.UVs)+len(m.Indices)))
	raw = binary.LittleEndian.AppendUint32(raw, uint32(vc))
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(m.Indices)))
	for _, f := range m.Positions {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(f))
	}
	for _, f := range m.Normals {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(f))
	}
	for _, f := range m.UVs {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(f))
	}
	for _, i := range m.Indices {
		raw = binary.LittleEndian.AppendUint32(raw, i)
	}
	return base64.StdEncoding.EncodeToString(zenc.EncodeAll(raw, nil)), nil
}

// DecodeMeshPayload is the inverse of EncodeMeshPayload.
func DecodeMeshPayload(payload string) (*mesh.Mesh, error) {
	comp, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("mesh payload base64: %w", err)
	}
	raw, err := zdec.DecodeAll(comp, nil)
	if err != nil {
		return nil, fmt.Errorf("mesh payload zstd: %w", err)
	}
	if len(raw) < meshHeaderLen {
		return nil, fmt.Errorf("mesh payload truncated: %d bytes", len(raw))
	}
	vc := int(binary.LittleEndian.Uint32(raw[0:4]))
	ic := int(binary.LittleEndian.Uint32(raw[4:8]))
	want := meshHeaderLen + 4*(vc*3+vc*3+vc*2+ic)
	if len(raw) != want {
		return nil, fmt.Errorf("mesh payload length %d, want %d for %d vertices / %d indices", len(raw), want, vc, ic)
	}
	m := &mesh.Mesh{
		Positions: make([]float32, vc*3),
		Normals:   make([]float32, vc*3),
		UVs:       make([]float32, vc*2),
		Indices:   make([]uint32, ic),
	}
	off := meshHeaderLen
	off = readFloats(raw, off, m.Positions)
	off = readFloats(raw, off, m.Normals)
	off = readFloats(raw, off, m.UVs)
	for i := range m.Indices {
		m.Indices[i] = binary.LittleEndian.Uint32(raw[off:])
		off += 4
	}
	return m, nil
}

func readFloats(raw []byte, off int, dst []float32) int {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
	}
	return off
}

package asset

import (
	"encoding/binary"
	"math"
)

// Vertex is one mesh vertex.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// MeshData is the CPU-side payload of a mesh.
type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

// ShaderSource is the payload of a shader.
type ShaderSource struct {
	Vertex   string
	Fragment string
}

// TextureData is the payload of a 2D texture or one cubemap face set.
type TextureData struct {
	Width, Height int
	Channels      int
	Pixels        []byte
}

func (m MeshData) bytes() []byte {
	buf := make([]byte, 0, len(m.Vertices)*32+len(m.Indices)*4)
	for _, v := range m.Vertices {
		for _, f := range v.Position {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
		for _, f := range v.Normal {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
		for _, f := range v.UV {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	for _, i := range m.Indices {
		buf = binary.LittleEndian.AppendUint32(buf, i)
	}
	return buf
}

func (s ShaderSource) bytes() []byte {
	return []byte(s.Vertex + "\x00" + s.Fragment)
}

func (t TextureData) bytes() []byte {
	buf := make([]byte, 0, 12+len(t.Pixels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Height))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Channels))
	return append(buf, t.Pixels...)
}

// Quad returns a unit quad in the XY plane facing +Z.
func Quad() MeshData {
	n := [3]float32{0, 0, 1}
	return MeshData{
		Vertices: []Vertex{
			{Position: [3]float32{-0.5, -0.5, 0}, Normal: n, UV: [2]float32{0, 0}},
			{Position: [3]float32{0.5, -0.5, 0}, Normal: n, UV: [2]float32{1, 0}},
			{Position: [3]float32{0.5, 0.5, 0}, Normal: n, UV: [2]float32{1, 1}},
			{Position: [3]float32{-0.5, 0.5, 0}, Normal: n, UV: [2]float32{0, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// Cube returns a unit cube centered on the origin with per-face normals.
func Cube() MeshData {
	faces := []struct {
		normal [3]float32
		u, v   [3]float32
	}{
		{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{1, 0, 0}, [3]float32{0, 0, -1}, [3]float32{0, 1, 0}},
		{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
		{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, -1}},
		{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
	}
	var m MeshData
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for _, c := range corners {
			var p [3]float32
			for i := range p {
				p[i] = 0.5 * (f.normal[i] + c[0]*f.u[i] + c[1]*f.v[i])
			}
			m.Vertices = append(m.Vertices, Vertex{
				Position: p,
				Normal:   f.normal,
				UV:       [2]float32{(c[0] + 1) / 2, (c[1] + 1) / 2},
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return m
}

package water

import "math"

// vertexStride is the byte size of {position: vec3, uv: vec2}, the
// custom vertex format the water graphics pipeline binds.
const vertexStride = 4 * (3 + 2)

// buildGridMesh tessellates a unit-square grid of resolution×resolution
// vertices in the XZ plane, UV-mapped [0,1]² across the grid, wound
// CCW so it matches the rest of the core's front-face convention.
func buildGridMesh(resolution uint32) (vertices, indices []byte, indexCount uint32) {
	n := resolution
	if n < 2 {
		n = 2
	}

	vertices = make([]byte, int(n)*int(n)*vertexStride)
	off := 0
	for y := uint32(0); y < n; y++ {
		for x := uint32(0); x < n; x++ {
			u := float32(x) / float32(n-1)
			v := float32(y) / float32(n-1)
			writeFloat32(vertices, off, u-0.5)
			writeFloat32(vertices, off+4, 0)
			writeFloat32(vertices, off+8, v-0.5)
			writeFloat32(vertices, off+12, u)
			writeFloat32(vertices, off+16, v)
			off += vertexStride
		}
	}

	quads := (n - 1) * (n - 1)
	indexCount = quads * 6
	indices = make([]byte, int(indexCount)*4)
	io := 0
	for y := uint32(0); y < n-1; y++ {
		for x := uint32(0); x < n-1; x++ {
			i0 := y*n + x
			i1 := y*n + x + 1
			i2 := (y+1)*n + x
			i3 := (y+1)*n + x + 1
			for _, idx := range [6]uint32{i0, i2, i1, i1, i2, i3} {
				writeUint32(indices, io, idx)
				io += 4
			}
		}
	}
	return vertices, indices, indexCount
}

func writeFloat32(dst []byte, offset int, v float32) {
	bits := math.Float32bits(v)
	dst[offset] = byte(bits)
	dst[offset+1] = byte(bits >> 8)
	dst[offset+2] = byte(bits >> 16)
	dst[offset+3] = byte(bits >> 24)
}

func writeUint32(dst []byte, offset int, v uint32) {
	dst[offset] = byte(v)
	dst[offset+1] = byte(v >> 8)
	dst[offset+2] = byte(v >> 16)
	dst[offset+3] = byte(v >> 24)
}

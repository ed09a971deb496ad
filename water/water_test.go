package water

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/realge/vkrender-core/gpu"
)

func TestBuildGridMeshCounts(t *testing.T) {
	vtx, idx, count := buildGridMesh(8)
	assert.Equal(t, 8*8*vertexStride, len(vtx))
	assert.Equal(t, 7*7*6, int(count))
	assert.Equal(t, int(count)*4, len(idx))
}

func TestBuildGridMeshClampsTinyResolution(t *testing.T) {
	vtx, idx, count := buildGridMesh(1)
	assert.Equal(t, 2*2*vertexStride, len(vtx))
	assert.Equal(t, uint32(6), count)
	assert.Equal(t, 24, len(idx))
}

func TestBuildGridMeshUVRange(t *testing.T) {
	vtx, _, _ := buildGridMesh(4)
	for i := 0; i < 16; i++ {
		off := i * vertexStride
		u := readFloat32(vtx, off+12)
		v := readFloat32(vtx, off+16)
		assert.GreaterOrEqual(t, u, float32(0))
		assert.LessOrEqual(t, u, float32(1))
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func readFloat32(src []byte, offset int) float32 {
	bits := uint32(src[offset]) | uint32(src[offset+1])<<8 | uint32(src[offset+2])<<16 | uint32(src[offset+3])<<24
	return math.Float32frombits(bits)
}

func TestValidStability(t *testing.T) {
	cases := []struct {
		name                              string
		waveSpeed, damping, heightScale float32
		want                              bool
	}{
		{"defaults ok", 0.35, 0.985, 1.0, true},
		{"speed zero rejected", 0, 0.95, 1.0, false},
		{"speed at ceiling rejected", 0.5, 0.95, 1.0, false},
		{"damping too low rejected", 0.3, 0.89, 1.0, false},
		{"damping at one ok", 0.3, 1.0, 1.0, true},
		{"damping over one rejected", 0.3, 1.01, 1.0, false},
		{"height scale zero rejected", 0.3, 0.95, 0, false},
		{"height scale negative rejected", 0.3, 0.95, -1, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, validStability(c.waveSpeed, c.damping, c.heightScale), c.name)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, float32(0), clamp01(-5))
	assert.Equal(t, float32(1), clamp01(5))
	assert.Equal(t, float32(0.5), clamp01(0.5))
}

func TestWorkgroupCount(t *testing.T) {
	assert.Equal(t, uint32(16), workgroupCount(256))
	assert.Equal(t, uint32(1), workgroupCount(1))
	assert.Equal(t, uint32(17), workgroupCount(257))
}

func TestRotateTripleStaysAPermutation(t *testing.T) {
	prev, curr, out := 0, 1, 2
	for step := 0; step < 9; step++ {
		prev, curr, out = rotateTriple(prev, curr, out)
		seen := map[int]bool{prev: true, curr: true, out: true}
		assert.Len(t, seen, 3, "step %d: triple (%d,%d,%d) is not a permutation", step, prev, curr, out)
	}
	// Period is 3: after a full cycle the triple is back where it began.
	assert.Equal(t, []int{0, 1, 2}, []int{prev, curr, out})
}

func TestRotateTriplePromotesOutToCurr(t *testing.T) {
	_, curr, _ := rotateTriple(0, 1, 2)
	assert.Equal(t, 2, curr)
}

func TestWriteRipplesClampsAndClears(t *testing.T) {
	w := &WaterSim{rippleBuf: &gpu.Buffer{MappedPtr: make([]byte, rippleUboSize)}}
	for i := 0; i < maxRipples+7; i++ {
		w.pending = append(w.pending, Ripple{UV: mgl32.Vec2{0.5, 0.5}, Strength: 1, Radius: 0.01})
	}
	w.writeRipples()

	count := uint32(w.rippleBuf.MappedPtr[maxRipples*16]) |
		uint32(w.rippleBuf.MappedPtr[maxRipples*16+1])<<8
	assert.Equal(t, uint32(maxRipples), count)
	assert.Empty(t, w.pending)

	// first entry round-trips
	assert.Equal(t, float32(0.5), readFloat32(w.rippleBuf.MappedPtr, 0))
	assert.Equal(t, float32(1), readFloat32(w.rippleBuf.MappedPtr, 8))
	assert.Equal(t, float32(0.01), readFloat32(w.rippleBuf.MappedPtr, 12))
}

func TestWriteFloat32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	writeFloat32(buf, 0, 3.25)
	assert.Equal(t, float32(3.25), readFloat32(buf, 0))
}

func TestWriteUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	writeUint32(buf, 0, 0xdeadbeef)
	got := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	assert.Equal(t, uint32(0xdeadbeef), got)
}

package shadow

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

// projectedOriginTexel returns the integer shadow-map texel the world
// origin lands on under m.
func projectedOriginTexel(m mgl32.Mat4, mapSize uint32) (int64, int64) {
	origin := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	scale := float64(mapSize) / 2
	return int64(math.Round(float64(origin.X()) * scale)),
		int64(math.Round(float64(origin.Y()) * scale))
}

func TestTexelSnapStableUnderSubTexelCameraMotion(t *testing.T) {
	dir := mgl32.Vec3{-1, -1, 0}.Normalize()
	cam := mgl32.Vec3{0, 1, 0}

	before := DirectionalLightSpaceMatrix(dir, cam, 0.5, 100, 10, 1024)
	after := DirectionalLightSpaceMatrix(dir, cam.Add(mgl32.Vec3{0.001, 0, 0}), 0.5, 100, 10, 1024)

	bx, by := projectedOriginTexel(before, 1024)
	ax, ay := projectedOriginTexel(after, 1024)
	assert.Equal(t, bx, ax, "origin texel X moved under sub-texel camera motion")
	assert.Equal(t, by, ay, "origin texel Y moved under sub-texel camera motion")
}

func TestTexelSnapLandsOnWholeTexels(t *testing.T) {
	dir := mgl32.Vec3{-0.4, -1, 0.2}.Normalize()
	for _, camX := range []float32{0, 0.37, 1.91, 12.4} {
		m := DirectionalLightSpaceMatrix(dir, mgl32.Vec3{camX, 2, 3}, 0.5, 200, 50, 4096)
		origin := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
		scale := float64(4096) / 2
		fx := float64(origin.X()) * scale
		fy := float64(origin.Y()) * scale
		assert.InDelta(t, math.Round(fx), fx, 1e-2, "camX=%g", camX)
		assert.InDelta(t, math.Round(fy), fy, 1e-2, "camX=%g", camX)
	}
}

func TestLightSpaceUpVectorFallback(t *testing.T) {
	// A light pointing straight down is colinear with the default up
	// vector; the matrix must still be well formed (no NaNs).
	m := DirectionalLightSpaceMatrix(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 5, 2}, 0.5, 100, 25, 2048)
	for i, v := range m {
		assert.False(t, math.IsNaN(float64(v)), "element %d is NaN", i)
	}
}

func TestPointFaceProjectionFarPlaneFallback(t *testing.T) {
	pos := mgl32.Vec3{1, 2, 3}

	// radius > 0 uses the radius as far plane; <= 0 falls back.
	withRadius := PointFaceProjection(pos, 30, 0.1, 50, 0)
	withDefault := PointFaceProjection(pos, 0, 0.1, 50, 0)
	assert.NotEqual(t, withRadius, withDefault)

	// Same radius twice is deterministic.
	again := PointFaceProjection(pos, 30, 0.1, 50, 0)
	assert.Equal(t, withRadius, again)
}

func TestPointFaceProjectionsDifferPerFace(t *testing.T) {
	pos := mgl32.Vec3{0, 0, 0}
	seen := map[mgl32.Mat4]bool{}
	for face := uint32(0); face < 6; face++ {
		m := PointFaceProjection(pos, 10, 0.1, 50, face)
		assert.False(t, seen[m], "face %d duplicates another face's matrix", face)
		seen[m] = true
	}
}

func TestAlignedStride(t *testing.T) {
	cases := []struct {
		size, align, want uint64
	}{
		{400, 256, 512},
		{256, 256, 256},
		{1, 256, 256},
		{257, 256, 512},
		{80, 64, 128},
		{100, 0, 100},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AlignedStride(c.size, c.align), "size=%d align=%d", c.size, c.align)
	}
}

func TestPointLightDynamicOffsetsStayInBounds(t *testing.T) {
	stride := AlignedStride(shadowUboPointSize, 256)
	bufSize := stride * MaxShadowPointLights
	for l := uint64(0); l < MaxShadowPointLights; l++ {
		offset := l * stride
		assert.Less(t, offset+shadowUboPointSize, bufSize+1, "light %d slice exceeds buffer", l)
	}
}

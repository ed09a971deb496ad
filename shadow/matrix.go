// Package shadow implements the two shadow-casting systems: a single
// directional (sun) shadow map with texel-stable light-space matrix,
// and a cube-array point-light shadow system with per-face render
// targets and a dynamic-offset uniform buffer.
package shadow

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxShadowPointLights bounds the cube-array layer count at
// 6*MaxShadowPointLights. A package constant rather than a runtime
// parameter, per the Open Question decision recorded in DESIGN.md.
const MaxShadowPointLights = 8

// depthRemap folds mathgl's [-1,1] clip-space Z into WebGPU's [0,1]
// depth convention. It is applied to the projection before any
// texel-snap math touches it; snapping an un-remapped projection
// would scale the translation column by the wrong Z/W convention.
var depthRemap = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// DirectionalLightSpaceMatrix builds the ortho light-space matrix for
// a directional light pointing in direction d (normalized), framing
// the scene around cameraPos with half-extent frustumSize and the
// given near/far planes, then snaps its translation to whole shadow
// texels so that sub-texel camera motion doesn't shimmer.
//
// Order matters here: the depth remap is applied to the projection
// before the texel-snap offset is computed.
func DirectionalLightSpaceMatrix(direction, cameraPos mgl32.Vec3, near, far, frustumSize float32, shadowMapSize uint32) mgl32.Mat4 {
	ld := direction.Normalize()

	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(ld.Dot(up))) > 0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}

	eye := cameraPos.Sub(ld.Mul(far / 2))
	view := mgl32.LookAtV(eye, cameraPos, up)

	proj := mgl32.Ortho(-frustumSize, frustumSize, -frustumSize, frustumSize, near, far)
	proj = depthRemap.Mul4(proj)

	m := proj.Mul4(view)
	return snapToTexel(m, proj, shadowMapSize).Mul4(view)
}

// snapToTexel offsets proj's translation column so that the world
// origin, transformed by the full light-space matrix, lands on an
// exact whole-texel boundary of the shadow map, and returns the
// adjusted projection.
// This is the standard cascade-shadow shimmer fix, applied here to a
// single non-cascaded map.
func snapToTexel(m, proj mgl32.Mat4, shadowMapSize uint32) mgl32.Mat4 {
	origin := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	texelsPerUnit := float32(shadowMapSize) / 2

	roundedX := float32(math.Round(float64(origin.X() * texelsPerUnit)))
	roundedY := float32(math.Round(float64(origin.Y() * texelsPerUnit)))

	dx := (roundedX - origin.X()*texelsPerUnit) / texelsPerUnit
	dy := (roundedY - origin.Y()*texelsPerUnit) / texelsPerUnit

	// Offset only X/Y; the Z/W components of the delta stay zero so
	// the snap never perturbs depth ordering.
	offset := mgl32.Translate3D(dx, dy, 0)
	snappedProj := offset.Mul4(proj)
	return snappedProj
}

// cubeFaceViewDirs and cubeFaceUpDirs give the six standard
// cube-map view/up vector pairs in +X,-X,+Y,-Y,+Z,-Z order.
var cubeFaceViewDirs = [6]mgl32.Vec3{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

var cubeFaceUpDirs = [6]mgl32.Vec3{
	{0, -1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
	{0, -1, 0}, {0, -1, 0},
}

// PointFaceProjection returns the view-projection matrix for one cube
// face of a point light at position, with a 90 degree perspective
// projection remapped to WebGPU's depth convention. far falls back to
// defaultFar when radius <= 0.
func PointFaceProjection(position mgl32.Vec3, radius, near, defaultFar float32, face uint32) mgl32.Mat4 {
	far := defaultFar
	if radius > 0 {
		far = radius
	}
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, near, far)
	proj = depthRemap.Mul4(proj)

	dir := cubeFaceViewDirs[face]
	up := cubeFaceUpDirs[face]
	view := mgl32.LookAtV(position, position.Add(dir), up)
	return proj.Mul4(view)
}

// AlignedStride rounds elemSize up to the next multiple of align, the
// per-light stride every dynamic-offset point-shadow UBO write uses.
func AlignedStride(elemSize, align uint64) uint64 {
	if align == 0 {
		return elemSize
	}
	rem := elemSize % align
	if rem == 0 {
		return elemSize
	}
	return elemSize + (align - rem)
}

package ibl

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// vanDerCorput computes the radical-inverse base-2 sequence used by
// hammersley, via the standard bit-reversal trick.
func vanDerCorput(bits uint32) float32 {
	bits = (bits << 16) | (bits >> 16)
	bits = ((bits & 0x55555555) << 1) | ((bits & 0xAAAAAAAA) >> 1)
	bits = ((bits & 0x33333333) << 2) | ((bits & 0xCCCCCCCC) >> 2)
	bits = ((bits & 0x0F0F0F0F) << 4) | ((bits & 0xF0F0F0F0) >> 4)
	bits = ((bits & 0x00FF00FF) << 8) | ((bits & 0xFF00FF00) >> 8)
	return float32(bits) * 2.3283064365386963e-10 // / 2^32
}

// hammersley returns the i-th point of the 2D Hammersley
// low-discrepancy sequence over n samples.
func hammersley(i uint32, n uint32) mgl32.Vec2 {
	return mgl32.Vec2{float32(i) / float32(n), vanDerCorput(i)}
}

// tangentBasis builds an orthonormal frame (tangent, bitangent) for N.
func tangentBasis(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(n.Y())) > 0.999 {
		up = mgl32.Vec3{1, 0, 0}
	}
	tangent := up.Cross(n).Normalize()
	bitangent := n.Cross(tangent)
	return tangent, bitangent
}

// cosineSampleHemisphere draws a cosine-weighted direction in the
// hemisphere around n from a Hammersley 2D sample, used by the
// irradiance convolution's diffuse integral.
func cosineSampleHemisphere(xi mgl32.Vec2, n mgl32.Vec3) mgl32.Vec3 {
	phi := 2 * math.Pi * float64(xi.X())
	cosTheta := float32(math.Sqrt(float64(1 - xi.Y())))
	sinTheta := float32(math.Sqrt(float64(xi.Y())))

	h := mgl32.Vec3{sinTheta * float32(math.Cos(phi)), sinTheta * float32(math.Sin(phi)), cosTheta}
	tangent, bitangent := tangentBasis(n)
	return tangent.Mul(h.X()).Add(bitangent.Mul(h.Y())).Add(n.Mul(h.Z())).Normalize()
}

// importanceSampleGGX draws a half-vector H around N from a GGX
// distribution of roughness, the standard split-sum specular sampler.
func importanceSampleGGX(xi mgl32.Vec2, n mgl32.Vec3, roughness float32) mgl32.Vec3 {
	a := roughness * roughness
	phi := 2 * math.Pi * float64(xi.X())
	cosTheta := float32(math.Sqrt(float64((1 - xi.Y()) / (1 + (a*a-1)*xi.Y()))))
	sinTheta := float32(math.Sqrt(float64(1 - cosTheta*cosTheta)))

	h := mgl32.Vec3{sinTheta * float32(math.Cos(phi)), sinTheta * float32(math.Sin(phi)), cosTheta}
	tangent, bitangent := tangentBasis(n)
	return tangent.Mul(h.X()).Add(bitangent.Mul(h.Y())).Add(n.Mul(h.Z())).Normalize()
}

// distributionGGX is the Trowbridge-Reitz normal distribution D(N,H).
func distributionGGX(nDotH, roughness float32) float32 {
	a := roughness * roughness
	a2 := a * a
	d := nDotH*nDotH*(a2-1) + 1
	return a2 / float32(math.Pi) / (d * d)
}

// geometrySmithIBL is Smith's joint shadowing-masking term using the
// IBL-specific k = alpha/2 (as opposed to the direct-lighting k).
func geometrySmithIBL(nDotV, nDotL, roughness float32) float32 {
	k := roughness * roughness / 2
	gv := nDotV / (nDotV*(1-k) + k)
	gl := nDotL / (nDotL*(1-k) + k)
	return gv * gl
}

// fresnelSchlickFc is (1-VdotH)^5, the exponent term shared by both A
// and B channels of the BRDF LUT.
func fresnelSchlickFc(vDotH float32) float32 {
	x := clamp32(1-vDotH, 0, 1)
	x2 := x * x
	return x2 * x2 * x
}

func reflectVec(i, n mgl32.Vec3) mgl32.Vec3 {
	return i.Sub(n.Mul(2 * n.Dot(i)))
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

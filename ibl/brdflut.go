package ibl

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// bayer2x2 is the 2x2 ordered-dither threshold matrix, normalized to
// [0,1), used to break up banding when the split-sum LUT is quantized
// to 8 bits .
var bayer2x2 = [2][2]float32{
	{0.0 / 4.0, 2.0 / 4.0},
	{3.0 / 4.0, 1.0 / 4.0},
}

// integrateBRDF evaluates the split-sum (A,B) factors at (NoV,
// roughness) via k GGX importance samples, Smith-GGX visibility with
// the IBL k=alpha/2 convention, and Schlick's Fc = (1-VdotH)^5.
func integrateBRDF(nDotV, roughness float32, k int) (float32, float32) {
	sinTheta := float32(math.Sqrt(float64(maxf(1-nDotV*nDotV, 0))))
	v := mgl32.Vec3{sinTheta, 0, nDotV}
	n := mgl32.Vec3{0, 0, 1}

	var a, b float32
	for i := 0; i < k; i++ {
		xi := hammersley(uint32(i), uint32(k))
		h := importanceSampleGGX(xi, n, roughness)
		l := reflectVec(v.Mul(-1), h).Normalize()

		nDotL := maxf(l.Z(), 0)
		nDotH := maxf(h.Z(), 0)
		vDotH := maxf(v.Dot(h), 0)

		if nDotL <= 0 {
			continue
		}
		g := geometrySmithIBL(nDotV, nDotL, roughness)
		gVis := (g * vDotH) / (nDotH*nDotV + 1e-5)
		fc := fresnelSchlickFc(vDotH)

		a += (1 - fc) * gVis
		b += fc * gVis
	}
	return a / float32(k), b / float32(k)
}

// brdfLUT renders the size x size (A,B) LUT as 8-bit RG bytes with
// 2x2 Bayer dithering, clamped to [0,1] so both channels stay in range
// holds by construction.
func brdfLUT(size uint32, samples int) []byte {
	out := make([]byte, int(size)*int(size)*2)
	parallelRows(int(size), func(y int) {
		rough := float32(y) / float32(size-1)
		for x := 0; x < int(size); x++ {
			nDotV := float32(x) / float32(size-1)
			if nDotV < 1e-3 {
				nDotV = 1e-3
			}
			a, b := integrateBRDF(nDotV, rough, samples)
			dither := (bayer2x2[y%2][x%2] - 0.5) / 255.0

			aByte := quantize8(a + dither)
			bByte := quantize8(b + dither)
			idx := (y*int(size) + x) * 2
			out[idx] = aByte
			out[idx+1] = bByte
		}
	})
	return out
}

func quantize8(v float32) byte {
	v = clamp32(v, 0, 1)
	return byte(v*255 + 0.5)
}

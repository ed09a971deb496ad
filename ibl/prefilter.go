package ibl

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// prefilterEnvironment produces the Np-mip split-sum specular
// prefilter cube from env. Mip 0 is a perfect-mirror copy of the
// environment's own base level; mip m>0 draws K(m) GGX samples per
// texel and resolves the source environment mip via a solid-angle
// heuristic.
func prefilterEnvironment(env *CubemapCpuImage, cfg Config) *CubemapCpuImage {
	np := cfg.PrefilterMipLevels
	out := NewCubemapCpuImage(cfg.PrefilterSize, np)

	size0 := out.MipSize(0)
	parallelRows(int(size0), func(y int) {
		for face := uint32(0); face < 6; face++ {
			for x := 0; x < int(size0); x++ {
				u := (float32(x)+0.5)/float32(size0)*2 - 1
				v := (float32(y)+0.5)/float32(size0)*2 - 1
				dir := cubeFaceDirection(face, u, v)
				c := sampleCubemapNearest(env, env.Size, dir)
				out.SetTexel(0, face, uint32(x), uint32(y), [4]float32{c.X(), c.Y(), c.Z(), 1})
			}
		}
	})

	envMips := float32(1)
	if env.MipLevels > 1 {
		envMips = float32(env.MipLevels)
	}
	saTexel := 4 * math.Pi / (6 * float64(env.Size) * float64(env.Size))

	for mip := uint32(1); mip < np; mip++ {
		roughness := cfg.Roughness(mip)
		k := cfg.PrefilterSampleCount(mip)
		size := out.MipSize(mip)

		parallelRows(int(size), func(y int) {
			for face := uint32(0); face < 6; face++ {
				for x := 0; x < int(size); x++ {
					u := (float32(x)+0.5)/float32(size)*2 - 1
					v := (float32(y)+0.5)/float32(size)*2 - 1
					// Split-sum approximation: R = V = N.
					n := cubeFaceDirection(face, u, v)
					vdir := n

					var sum mgl32.Vec3
					var totalWeight float32
					for i := 0; i < k; i++ {
						xi := hammersley(uint32(i), uint32(k))
						h := importanceSampleGGX(xi, n, roughness)
						l := reflectVec(vdir.Mul(-1), h).Normalize()
						nDotL := l.Dot(n)
						if nDotL <= 0 {
							continue
						}

						nDotH := maxf(n.Dot(h), 0)
						hDotV := maxf(h.Dot(vdir), 1e-4)
						d := distributionGGX(nDotH, roughness)
						pdf := d*nDotH/(4*hDotV) + 1e-5

						saSample := 1 / (float32(k)*pdf + 1e-5)
						srcMip := float32(0)
						if saSample > 0 {
							srcMip = 0.5 * float32(math.Log2(float64(saSample)/saTexel))
						}
						srcMip = clamp32(srcMip, 0, envMips-1)

						lo := uint32(math.Floor(float64(srcMip)))
						hi := lo + 1
						if hi >= env.MipLevels {
							hi = env.MipLevels - 1
						}
						frac := srcMip - float32(lo)

						cLo := sampleCubemapNearestMip(env, lo, l)
						cHi := sampleCubemapNearestMip(env, hi, l)
						c := cLo.Mul(1 - frac).Add(cHi.Mul(frac))

						sum = sum.Add(c.Mul(nDotL))
						totalWeight += nDotL
					}
					if totalWeight > 0 {
						sum = sum.Mul(1 / totalWeight)
					}
					out.SetTexel(mip, face, uint32(x), uint32(y), [4]float32{sum.X(), sum.Y(), sum.Z(), 1})
				}
			}
		})
	}
	return out
}

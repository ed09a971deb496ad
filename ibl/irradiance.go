package ibl

import "github.com/go-gl/mathgl/mgl32"

// convolveIrradiance computes the diffuse irradiance cubemap from env
// (a mipped environment cubemap, sampled at mip 0 for simplicity --
// the base level already holds the full-resolution source data this
// CPU convolution needs). For every output texel the surface normal
// is the texel's own direction; the integral is the cosine-weighted
// Monte-Carlo average over cfg.IrradianceSamples hemisphere samples
// .
func convolveIrradiance(env *CubemapCpuImage, size uint32, samples int) *CubemapCpuImage {
	out := NewCubemapCpuImage(size, 1)
	envSize := env.Size

	parallelRows(int(size), func(y int) {
		for face := uint32(0); face < 6; face++ {
			for x := 0; x < int(size); x++ {
				u := (float32(x)+0.5)/float32(size)*2 - 1
				v := (float32(y)+0.5)/float32(size)*2 - 1
				n := cubeFaceDirection(face, u, v)

				var sum mgl32.Vec3
				for i := 0; i < samples; i++ {
					xi := hammersley(uint32(i), uint32(samples))
					l := cosineSampleHemisphere(xi, n)
					radiance := sampleCubemapNearest(env, envSize, l)
					sum = sum.Add(radiance)
				}
				sum = sum.Mul(1 / float32(samples))
				out.SetTexel(0, face, uint32(x), uint32(y), [4]float32{sum.X(), sum.Y(), sum.Z(), 1})
			}
		}
	})
	return out
}

// sampleCubemapNearest maps a direction to the nearest face/texel of
// a CPU cubemap's mip-0 level. Importance-sampling loops call this
// many times per output texel, so nearest (rather than bilinear)
// keeps the convolution's CPU cost bounded; the Monte-Carlo sample
// counts already average away the quantization.
func sampleCubemapNearest(cube *CubemapCpuImage, size uint32, dir mgl32.Vec3) mgl32.Vec3 {
	face, u, v := directionToFaceUV(dir)
	x := uint32(clamp32((u*0.5+0.5)*float32(size), 0, float32(size-1)))
	y := uint32(clamp32((v*0.5+0.5)*float32(size), 0, float32(size-1)))
	t := cube.Texel(0, face, x, y)
	return mgl32.Vec3{t[0], t[1], t[2]}
}

// sampleCubemapNearestMip is sampleCubemapNearest generalized to an
// arbitrary mip level, used by the prefilter's solid-angle mip blend.
func sampleCubemapNearestMip(cube *CubemapCpuImage, mip uint32, dir mgl32.Vec3) mgl32.Vec3 {
	size := cube.MipSize(mip)
	face, u, v := directionToFaceUV(dir)
	x := uint32(clamp32((u*0.5+0.5)*float32(size), 0, float32(size-1)))
	y := uint32(clamp32((v*0.5+0.5)*float32(size), 0, float32(size-1)))
	t := cube.Texel(mip, face, x, y)
	return mgl32.Vec3{t[0], t[1], t[2]}
}

// directionToFaceUV is the inverse of cubeFaceDirection: given a
// direction, returns which face it projects onto and the (u,v) in
// [-1,1]^2 within that face.
func directionToFaceUV(d mgl32.Vec3) (uint32, float32, float32) {
	ax, ay, az := absf(d.X()), absf(d.Y()), absf(d.Z())
	switch {
	case ax >= ay && ax >= az:
		if d.X() > 0 {
			return 0, -d.Z() / ax, -d.Y() / ax
		}
		return 1, d.Z() / ax, -d.Y() / ax
	case ay >= ax && ay >= az:
		if d.Y() > 0 {
			return 2, d.X() / ay, d.Z() / ay
		}
		return 3, d.X() / ay, -d.Z() / ay
	default:
		if d.Z() > 0 {
			return 4, d.X() / az, -d.Y() / az
		}
		return 5, -d.X() / az, -d.Y() / az
	}
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

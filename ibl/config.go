// Package ibl implements the image-based-lighting precompute
// pipeline: equirectangular HDR to cubemap conversion, diffuse
// irradiance convolution, the split-sum specular prefilter, and the
// BRDF integration LUT, each backed by a content-keyed disk cache.
package ibl

import "math"

// Config mirrors IblConfig from the data model: sizes and sample
// counts for each of the four precompute stages, with presets
// trading quality for CPU precompute time.
type Config struct {
	EnvSize       uint32
	IrradianceSize uint32
	PrefilterSize uint32
	BrdfLutSize   uint32

	PrefilterMipLevels  uint32
	IrradianceSamples   int
	PrefilterBaseSamples int
	BrdfSamples         int
}

// mipLevelsFor computes floor(log2(size)) + 1, the full mip chain
// length down to 1x1.
func mipLevelsFor(size uint32) uint32 {
	return uint32(math.Floor(math.Log2(float64(size)))) + 1
}

func newConfig(env, irr, pre, lut uint32, irrSamples, preSamples, brdfSamples int) Config {
	return Config{
		EnvSize:              env,
		IrradianceSize:       irr,
		PrefilterSize:        pre,
		BrdfLutSize:          lut,
		PrefilterMipLevels:   mipLevelsFor(pre),
		IrradianceSamples:    irrSamples,
		PrefilterBaseSamples: preSamples,
		BrdfSamples:          brdfSamples,
	}
}

// Preset quality tiers. Sizes and sample counts grow together so
// CPU precompute time and disk-cache footprint scale in step with
// visual fidelity.
func Low() Config    { return newConfig(512, 32, 64, 128, 256, 32, 256) }
func Medium() Config { return newConfig(1024, 64, 128, 256, 512, 64, 512) }
func High() Config   { return newConfig(2048, 128, 256, 512, 1024, 128, 1024) }
func Ultra() Config  { return newConfig(4096, 128, 512, 1024, 2048, 256, 2048) }

// PrefilterSampleCount returns K(m) = base * (1 + m*8), the
// monotonically-growing importance-sample count used at prefilter
// mip m.
func (c Config) PrefilterSampleCount(mip uint32) int {
	return c.PrefilterBaseSamples * (1 + int(mip)*8)
}

// Roughness returns m / (Np-1) for prefilter mip m.
func (c Config) Roughness(mip uint32) float32 {
	if c.PrefilterMipLevels <= 1 {
		return 0
	}
	return float32(mip) / float32(c.PrefilterMipLevels-1)
}

package ibl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefilterMipLevelsInvariant(t *testing.T) {
	cases := map[uint32]uint32{
		64:   7,
		128:  8,
		256:  9,
		512:  10,
		1024: 11,
	}
	for size, want := range cases {
		cfg := newConfig(512, 32, size, 256, 32, 16, 128)
		assert.Equal(t, want, cfg.PrefilterMipLevels, "size=%d", size)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	require.NoError(t, saveCache(dir, "key", "suffix", 4, 4, 1, 6, data))
	hdr, got, err := loadCache(dir, "key", "suffix")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, uint32(4), hdr.Width)
	assert.Equal(t, uint32(4), hdr.Height)
	assert.Equal(t, uint64(len(data)), hdr.DataSize)
}

func TestCacheInvalidHeaderRegenerates(t *testing.T) {
	dir := t.TempDir()
	path := cachePath(dir, "key", "suffix")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// width=0 header, no payload -- must be treated as invalid.
	zero := make([]byte, cacheHeaderSize)
	require.NoError(t, os.WriteFile(path, zero, 0o644))

	_, _, err := loadCache(dir, "key", "suffix")
	assert.Error(t, err)
}

func TestCacheShortReadIsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, hashKey("key")+"_suffix.bin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, _, err := loadCache(dir, "key", "suffix")
	assert.Error(t, err)
}

func TestBRDFLUTChannelsAreClamped(t *testing.T) {
	lut := brdfLUT(8, 16)
	for i := 0; i < len(lut); i++ {
		// every byte is itself a clamped [0,1] value quantized to
		// [0,255].
		assert.True(t, lut[i] <= 255)
	}
	// Out-of-range inputs must clamp, not wrap, in quantize8.
	assert.Equal(t, byte(255), quantize8(1.5))
	assert.Equal(t, byte(0), quantize8(-0.5))
}

func TestIntegrateBRDFStaysInUnitRange(t *testing.T) {
	for _, nDotV := range []float32{0.01, 0.3, 0.7, 1.0} {
		for _, rough := range []float32{0.0, 0.25, 0.5, 0.75, 1.0} {
			a, b := integrateBRDF(nDotV, rough, 64)
			assert.GreaterOrEqual(t, a, float32(0))
			assert.GreaterOrEqual(t, b, float32(0))
			assert.LessOrEqual(t, a, float32(1.01))
			assert.LessOrEqual(t, b, float32(1.01))
		}
	}
}

func TestCubeFaceDirectionIsUnitLength(t *testing.T) {
	for face := uint32(0); face < 6; face++ {
		d := cubeFaceDirection(face, 0.3, -0.6)
		length := d.Len()
		assert.InDelta(t, 1.0, length, 1e-4)
	}
}

func TestDirectionToFaceUVRoundTrips(t *testing.T) {
	for face := uint32(0); face < 6; face++ {
		u, v := float32(0.25), float32(-0.4)
		dir := cubeFaceDirection(face, u, v)
		gotFace, gotU, gotV := directionToFaceUV(dir)
		assert.Equal(t, face, gotFace)
		assert.InDelta(t, u, gotU, 1e-3)
		assert.InDelta(t, v, gotV, 1e-3)
	}
}

func TestEquirectToCubemapProducesFiniteValues(t *testing.T) {
	src := &equirect{W: 8, H: 4, Channels: 3, Pixels: make([]float32, 8*4*3)}
	for i := range src.Pixels {
		src.Pixels[i] = 0.5
	}
	cube := equirectToCubemap(src, 4)
	for face := uint32(0); face < 6; face++ {
		for y := uint32(0); y < 4; y++ {
			for x := uint32(0); x < 4; x++ {
				t2 := cube.Texel(0, face, x, y)
				assert.InDelta(t, 0.5, t2[0], 1e-3)
			}
		}
	}
}

func TestProceduralGradientFallbackIsDeterministic(t *testing.T) {
	a := proceduralGradientCubemap(8)
	b := proceduralGradientCubemap(8)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestInitializeIBLIsIdempotentOnCache(t *testing.T) {
	// Exercised at the cache-layer boundary rather than through a live
	// GPU Precompute (no device in unit tests): two loads of the same
	// environment cache entry return identical headers and payloads.
	// Whether the CPU importance-sampler runs is not observed here.
	dir := t.TempDir()
	cfg := Low()

	src := proceduralGradientCubemap(cfg.EnvSize)
	require.NoError(t, saveCache(dir, "envkey", "env_cubemap", src.Size, src.Size, 1, 6, src.Bytes()))

	hdr1, data1, err := loadCache(dir, "envkey", "env_cubemap")
	require.NoError(t, err)
	hdr2, data2, err := loadCache(dir, "envkey", "env_cubemap")
	require.NoError(t, err)
	assert.Equal(t, hdr1, hdr2)
	assert.Equal(t, data1, data2)
}

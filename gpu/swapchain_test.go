package gpu

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
)

func TestPickSurfaceFormatPrefersBgraSrgb(t *testing.T) {
	got := pickSurfaceFormat([]wgpu.TextureFormat{
		wgpu.TextureFormatRGBA8Unorm,
		wgpu.TextureFormatBGRA8UnormSrgb,
		wgpu.TextureFormatBGRA8Unorm,
	})
	assert.Equal(t, wgpu.TextureFormatBGRA8UnormSrgb, got)
}

func TestPickSurfaceFormatFallsBackToFirst(t *testing.T) {
	got := pickSurfaceFormat([]wgpu.TextureFormat{wgpu.TextureFormatRGBA8Unorm})
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, got)
}

func TestPickPresentModePrefersMailbox(t *testing.T) {
	got := pickPresentMode([]wgpu.PresentMode{wgpu.PresentModeFifo, wgpu.PresentModeMailbox})
	assert.Equal(t, wgpu.PresentModeMailbox, got)

	got = pickPresentMode([]wgpu.PresentMode{wgpu.PresentModeImmediate})
	assert.Equal(t, wgpu.PresentModeFifo, got)
}

func TestImageCount(t *testing.T) {
	cases := []struct {
		min, max, want uint32
	}{
		{2, 8, 3},
		{2, 3, 3},
		{3, 3, 3},
		{2, 0, 3}, // maxImageCount 0 means unbounded
		{0, 0, 1},
	}
	for _, c := range cases {
		got := ImageCount(SurfaceCapabilities{MinImageCount: c.min, MaxImageCount: c.max})
		assert.Equal(t, c.want, got, "min=%d max=%d", c.min, c.max)
	}
}

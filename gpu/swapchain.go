package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/logging"
)

// SwapchainHost owns the presentable surface, its depth attachment,
// and the main render-pass configuration every frame's final draw
// targets. Pipelines that cache only the color/depth formats don't
// need rebuilding on resize; systems that cache the extent (water's
// screen-space passes, UI layout) must query Extent() again after
// Recreate.
type SwapchainHost struct {
	ctx    *GpuContext
	log    logging.Logger
	rf     *ResourceFactory

	surface     *wgpu.Surface
	format      wgpu.TextureFormat
	presentMode wgpu.PresentMode
	alphaMode   wgpu.CompositeAlphaMode
	width       uint32
	height      uint32

	depth     *Image
	depthView *View
}

// NewSwapchainHost configures surface for presentation at width x
// height, preferring BGRA8UnormSrgb / Mailbox and falling back to
// Fifo, and creates the shared depth image.
func NewSwapchainHost(ctx *GpuContext, rf *ResourceFactory, surface *wgpu.Surface, width, height uint32, caps SurfaceCapabilities, log logging.Logger) (*SwapchainHost, error) {
	h := &SwapchainHost{
		ctx:     ctx,
		log:     logging.Or(log),
		rf:      rf,
		surface: surface,
		width:   width,
		height:  height,
	}
	h.format = pickSurfaceFormat(caps.Formats)
	h.presentMode = pickPresentMode(caps.PresentModes)
	h.alphaMode = wgpu.CompositeAlphaModeOpaque
	if len(caps.AlphaModes) > 0 {
		h.alphaMode = caps.AlphaModes[0]
	}

	if err := h.configure(); err != nil {
		return nil, err
	}
	if err := h.createDepth(); err != nil {
		return nil, err
	}
	return h, nil
}

// SurfaceCapabilities is the subset of wgpu.Surface.GetCapabilities
// this host reasons about -- broken out so construction and resize
// tests can supply a fake capability set without a live surface.
type SurfaceCapabilities struct {
	Formats       []wgpu.TextureFormat
	PresentModes  []wgpu.PresentMode
	AlphaModes    []wgpu.CompositeAlphaMode
	MinImageCount uint32
	MaxImageCount uint32
}

func pickSurfaceFormat(formats []wgpu.TextureFormat) wgpu.TextureFormat {
	for _, f := range formats {
		if f == wgpu.TextureFormatBGRA8UnormSrgb {
			return f
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return wgpu.TextureFormatBGRA8UnormSrgb
}

func pickPresentMode(modes []wgpu.PresentMode) wgpu.PresentMode {
	for _, m := range modes {
		if m == wgpu.PresentModeMailbox {
			return m
		}
	}
	return wgpu.PresentModeFifo
}

// ImageCount implements `min(maxImageCount, capabilities.minImageCount
// + 1)`, clamped to at least 1 so a driver reporting
// maxImageCount==0 (unbounded) never produces a zero-length swapchain.
func ImageCount(caps SurfaceCapabilities) uint32 {
	want := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && want > caps.MaxImageCount {
		want = caps.MaxImageCount
	}
	if want < 1 {
		want = 1
	}
	return want
}

func (h *SwapchainHost) configure() error {
	h.surface.Configure(h.ctx.Adapter(), h.ctx.Device(), &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      h.format,
		Width:       h.width,
		Height:      h.height,
		PresentMode: h.presentMode,
		AlphaMode:   h.alphaMode,
	})
	return nil
}

func (h *SwapchainHost) createDepth() error {
	depth, err := h.rf.CreateDepthImage2D(h.width, h.height, h.ctx.DepthFormat(), wgpu.TextureUsageRenderAttachment)
	if err != nil {
		return fmt.Errorf("create swapchain depth image: %w", gpuerr.ErrResourceCreationFailed)
	}
	view, err := h.rf.CreateImageView(depth, ViewKind2D, 0, 1, 0, 1)
	if err != nil {
		return fmt.Errorf("create swapchain depth view: %w", gpuerr.ErrResourceCreationFailed)
	}
	h.rf.TransitionLayout(depth, LayoutDepthAttachment)
	h.depth, h.depthView = depth, view
	return nil
}

// Recreate implements the resize sequence: it waits for the device
// to go idle with a blocking poll, destroy is implicit -- wgpu
// reclaims the old surface textures once no view references them --
// then it reconfigures the surface and rebuilds the depth attachment
// at the new extent.
func (h *SwapchainHost) Recreate(width, height uint32) error {
	h.ctx.Device().Poll(true, nil)
	h.width, h.height = width, height
	if err := h.configure(); err != nil {
		return err
	}
	return h.createDepth()
}

// AcquireResult is the non-fatal acquire outcome the orchestrator
// branches on.
type AcquireResult struct {
	View      *wgpu.TextureView
	Texture   *wgpu.Texture
	OutOfDate bool
}

// Acquire fetches the next surface texture. A lost or
// needs-reconfigure surface is reported as OutOfDate, not returned as
// an error -- it is an expected event the orchestrator recovers
// from by recreating the swapchain and abandoning the frame.
func (h *SwapchainHost) Acquire() (AcquireResult, error) {
	tex, err := h.surface.GetCurrentTexture()
	if err != nil {
		if err == wgpu.ErrSurfaceLost || err == wgpu.ErrSurfaceNeedsReconfigure {
			return AcquireResult{OutOfDate: true}, nil
		}
		return AcquireResult{}, fmt.Errorf("acquire surface texture: %w", gpuerr.ErrSwapchainOutOfDate)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("create surface texture view: %w", gpuerr.ErrSwapchainOutOfDate)
	}
	return AcquireResult{View: view, Texture: tex}, nil
}

// Present hands the acquired surface texture back to the compositor.
func (h *SwapchainHost) Present() { h.surface.Present() }

// Format returns the selected surface color format.
func (h *SwapchainHost) Format() wgpu.TextureFormat { return h.format }

// Extent returns the current swapchain size.
func (h *SwapchainHost) Extent() (uint32, uint32) { return h.width, h.height }

// DepthView returns the shared depth attachment view for the main
// render pass.
func (h *SwapchainHost) DepthView() *View { return h.depthView }

// DepthImage returns the shared depth image (for layout bookkeeping).
func (h *SwapchainHost) DepthImage() *Image { return h.depth }

// Package gpu implements the low-level WebGPU resource layer the rest
// of the render core is built on: device/queue selection (GpuContext),
// typed resource creation (ResourceFactory), bind-group-layout caching
// (DescriptorHub) and swapchain lifecycle (SwapchainHost).
package gpu

import "github.com/cogentcore/webgpu/wgpu"

// Layout mirrors the Vulkan image-layout states this core reasons
// about. WebGPU has no explicit layout/barrier API -- its internal
// usage tracking does the equivalent synchronization -- but every
// Image still carries the layout the last recorded transition put it
// in, so code written against the layout invariant keeps working.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutDepthAttachment
	LayoutGeneral
	LayoutPresent
)

// Aspect selects which half of a depth/stencil-or-color image a view
// addresses.
type Aspect int

const (
	AspectColor Aspect = iota
	AspectDepth
)

// ViewKind is the dimensionality a View samples the owning Image as.
type ViewKind int

const (
	ViewKind2D ViewKind = iota
	ViewKindCube
	ViewKindCubeArray
)

// Image is a GPU-resident 2D or cube texture together with the
// bookkeeping the rest of the core depends on: current layout, array
// layer count (1 for 2D, 6 for cube, 6N for cube array) and mip count.
//
// Invariant: Layout always reflects the last TransitionLayout call
// recorded against this image.
type Image struct {
	Texture    *wgpu.Texture
	Width      uint32
	Height     uint32
	MipLevels  uint32
	Layers     uint32
	Format     wgpu.TextureFormat
	Aspect     Aspect
	Layout     Layout
}

// View is a typed, mip/layer-ranged view into an Image.
type View struct {
	TextureView *wgpu.TextureView
	Kind        ViewKind
	BaseMip     uint32
	MipCount    uint32
	BaseLayer   uint32
	LayerCount  uint32
}

// Buffer is a typed GPU memory region. MappedPtr is non-nil only for
// buffers created host-visible (ripple UBOs, dynamic-offset UBOs):
// WebGPU has no persistent mapping, so MappedPtr is a CPU shadow of
// the buffer contents that writers fill directly and the owner pushes
// to the GPU with ResourceFactory.FlushBuffer before each submit.
// The write-then-flush pair preserves the persistently-mapped call
// shape the rest of the core is written against.
type Buffer struct {
	Handle      *wgpu.Buffer
	Size        uint64
	Usage       wgpu.BufferUsage
	MappedPtr   []byte
	HostVisible bool
}

// Sampler wraps a created wgpu.Sampler purely so ResourceFactory's
// signatures read the same as the rest of the typed-creation API.
type Sampler struct {
	Handle *wgpu.Sampler
}

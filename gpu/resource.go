package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/realge/vkrender-core/gpu/internalshaders"
	"github.com/realge/vkrender-core/gpuerr"
)

// ResourceFactory creates typed images, buffers, views and samplers.
// It never retains what it creates -- ownership passes immediately to
// the caller, matching the ownership model in which IBL/Shadow/Water
// each exclusively own the handles they requested.
type ResourceFactory struct {
	ctx     *GpuContext
	mipBlit map[wgpu.TextureFormat]*wgpu.RenderPipeline
}

// NewResourceFactory binds a factory to a context's device.
func NewResourceFactory(ctx *GpuContext) *ResourceFactory {
	return &ResourceFactory{ctx: ctx, mipBlit: make(map[wgpu.TextureFormat]*wgpu.RenderPipeline)}
}

// CreateImage2D creates a single-layer 2D texture.
func (f *ResourceFactory) CreateImage2D(w, h, mips uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*Image, error) {
	return f.createImage(w, h, mips, 1, format, usage, AspectColor)
}

// CreateDepthImage2D creates a single-layer depth texture.
func (f *ResourceFactory) CreateDepthImage2D(w, h uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*Image, error) {
	return f.createImage(w, h, 1, 1, format, usage, AspectDepth)
}

// CreateCubeImage creates a cube (arrayLayers=6) or cube-array
// (arrayLayers=6N) texture.
func (f *ResourceFactory) CreateCubeImage(faceSize, mips, arrayLayers uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*Image, error) {
	if arrayLayers%6 != 0 {
		return nil, fmt.Errorf("cube image array layers must be a multiple of 6, got %d: %w", arrayLayers, gpuerr.ErrResourceCreationFailed)
	}
	return f.createImage(faceSize, faceSize, mips, arrayLayers, format, usage, AspectColor)
}

func (f *ResourceFactory) createImage(w, h, mips, layers uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage, aspect Aspect) (*Image, error) {
	tex, err := f.ctx.Device().CreateTexture(&wgpu.TextureDescriptor{
		Label:         "image",
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: layers},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %dx%d: %w", w, h, gpuerr.ErrResourceCreationFailed)
	}
	return &Image{
		Texture:   tex,
		Width:     w,
		Height:    h,
		MipLevels: mips,
		Layers:    layers,
		Format:    format,
		Aspect:    aspect,
		Layout:    LayoutUndefined,
	}, nil
}

// CreateImageView creates a view over img with the requested
// dimensionality and mip/layer range.
func (f *ResourceFactory) CreateImageView(img *Image, kind ViewKind, baseMip, mipCount, baseLayer, layerCount uint32) (*View, error) {
	dim := wgpu.TextureViewDimension2D
	switch kind {
	case ViewKindCube:
		dim = wgpu.TextureViewDimensionCube
	case ViewKindCubeArray:
		dim = wgpu.TextureViewDimensionCubeArray
	}

	aspect := wgpu.TextureAspectAll
	if img.Aspect == AspectDepth {
		aspect = wgpu.TextureAspectDepthOnly
	}

	tv, err := img.Texture.CreateView(&wgpu.TextureViewDescriptor{
		Format:          img.Format,
		Dimension:       dim,
		Aspect:          aspect,
		BaseMipLevel:    baseMip,
		MipLevelCount:   mipCount,
		BaseArrayLayer:  baseLayer,
		ArrayLayerCount: layerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("create image view: %w", gpuerr.ErrResourceCreationFailed)
	}
	return &View{TextureView: tv, Kind: kind, BaseMip: baseMip, MipCount: mipCount, BaseLayer: baseLayer, LayerCount: layerCount}, nil
}

// SamplerOptions configures CreateSampler.
type SamplerOptions struct {
	MagFilter, MinFilter wgpu.FilterMode
	MipmapFilter         wgpu.MipmapFilterMode
	AddressMode          wgpu.AddressMode
	MaxAnisotropy        uint16
	BorderWhite          bool
	CompareEnable        bool
	Compare              wgpu.CompareFunction
	LodMin, LodMax       float32
}

// CreateSampler creates a sampler per opts. BorderWhite overrides the
// address mode with ClampToEdge on all three axes; WebGPU samplers have
// no border color, so out-of-range samples read the nearest edge texel,
// not an opaque-white border.
func (f *ResourceFactory) CreateSampler(opts SamplerOptions) (*Sampler, error) {
	addr := opts.AddressMode
	desc := &wgpu.SamplerDescriptor{
		AddressModeU: addr,
		AddressModeV: addr,
		AddressModeW: addr,
		MagFilter:    opts.MagFilter,
		MinFilter:    opts.MinFilter,
		MipmapFilter: opts.MipmapFilter,
		LodMinClamp:  opts.LodMin,
		LodMaxClamp:  opts.LodMax,
		MaxAnisotropy: 1,
	}
	if opts.MaxAnisotropy > 1 {
		desc.MaxAnisotropy = opts.MaxAnisotropy
	}
	if opts.CompareEnable {
		desc.Compare = opts.Compare
	}
	if opts.BorderWhite {
		desc.AddressModeU = wgpu.AddressModeClampToEdge
		desc.AddressModeV = wgpu.AddressModeClampToEdge
		desc.AddressModeW = wgpu.AddressModeClampToEdge
	}
	s, err := f.ctx.Device().CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	return &Sampler{Handle: s}, nil
}

// CreateBuffer creates a buffer of size bytes with usage. hostVisible
// buffers (ripple/dynamic-offset UBOs written from the CPU every
// frame) get a same-size CPU shadow at MappedPtr; writers fill it in
// place and the owner calls FlushBuffer once per frame before submit.
func (f *ResourceFactory) CreateBuffer(size uint64, usage wgpu.BufferUsage, hostVisible bool) (*Buffer, error) {
	buf, err := f.ctx.Device().CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "buffer",
		Size:             size,
		Usage:            usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer size=%d: %w", size, gpuerr.ErrResourceCreationFailed)
	}

	b := &Buffer{Handle: buf, Size: size, Usage: usage, HostVisible: hostVisible}
	if hostVisible {
		b.MappedPtr = make([]byte, size)
	}
	return b, nil
}

// FlushBuffer pushes a host-visible buffer's CPU shadow to the GPU.
// Queue writes are ordered before any subsequently submitted command
// buffer, so flushing anywhere between the last CPU write and the
// frame's Submit is correct.
func (f *ResourceFactory) FlushBuffer(b *Buffer) {
	if b == nil || b.MappedPtr == nil {
		return
	}
	f.ctx.Queue().WriteBuffer(b.Handle, 0, b.MappedPtr)
}

// WriteBuffer uploads data into buf at offset via the queue's
// immediate-write path, for small CPU-authored buffers (grid mesh
// vertex/index data) that don't need UploadImage's staging-copy
// machinery.
func (f *ResourceFactory) WriteBuffer(buf *Buffer, offset uint64, data []byte) {
	f.ctx.Queue().WriteBuffer(buf.Handle, offset, data)
}

// UploadRegion describes one staging-buffer copy into dst.
type UploadRegion struct {
	Data       []byte
	MipLevel   uint32
	ArrayLayer uint32
	Width      uint32
	Height     uint32
	BytesPerRow uint32
}

// UploadImage stages bytes into dst for each region via
// Queue.WriteTexture, then optionally generates the remaining mip
// chain with GenerateMips. A failed write leaves dst's tracked layout
// untouched (Undefined) and returns ErrUploadFailed.
func (f *ResourceFactory) UploadImage(dst *Image, regions []UploadRegion, generateMips bool) error {
	queue := f.ctx.Queue()
	for _, r := range regions {
		copyDst := wgpu.ImageCopyTexture{
			Texture:  dst.Texture,
			MipLevel: r.MipLevel,
			Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: r.ArrayLayer},
			Aspect:   wgpu.TextureAspectAll,
		}
		layout := wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  r.BytesPerRow,
			RowsPerImage: r.Height,
		}
		size := wgpu.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: 1}
		if err := queue.WriteTexture(&copyDst, r.Data, &layout, &size); err != nil {
			return fmt.Errorf("write texture mip=%d layer=%d: %w", r.MipLevel, r.ArrayLayer, gpuerr.ErrUploadFailed)
		}
	}
	dst.Layout = LayoutTransferDst
	if generateMips && dst.MipLevels > 1 {
		if err := f.GenerateMips(dst); err != nil {
			return err
		}
	}
	return nil
}

// TransitionLayout updates img's tracked layout field. WebGPU has no
// explicit barrier call -- its usage-scope tracking does the
// equivalent synchronization automatically -- so this is bookkeeping,
// not a device call, but every layout-sensitive invariant in this core
// is defined in terms of it, so every transition (even the no-op ones)
// still goes through here rather than writing img.Layout directly.
func (f *ResourceFactory) TransitionLayout(img *Image, newLayout Layout) {
	img.Layout = newLayout
}

// GenerateMips fills mip levels 1..MipLevels-1 of img by repeatedly
// downsampling the previous level with a fullscreen-triangle render
// pass (WebGPU has no vkCmdBlitImage equivalent). Every array layer is
// processed per level, matching the cube-array blit-chain behavior.
func (f *ResourceFactory) GenerateMips(img *Image) error {
	blit, err := f.mipBlitPipeline(img.Format)
	if err != nil {
		return err
	}
	for mip := uint32(1); mip < img.MipLevels; mip++ {
		for layer := uint32(0); layer < img.Layers; layer++ {
			srcView, err := f.CreateImageView(img, ViewKind2D, mip-1, 1, layer, 1)
			if err != nil {
				return err
			}
			dstView, err := img.Texture.CreateView(&wgpu.TextureViewDescriptor{
				Format:          img.Format,
				Dimension:       wgpu.TextureViewDimension2D,
				BaseMipLevel:    mip,
				MipLevelCount:   1,
				BaseArrayLayer:  layer,
				ArrayLayerCount: 1,
			})
			if err != nil {
				return fmt.Errorf("mip dest view mip=%d layer=%d: %w", mip, layer, gpuerr.ErrResourceCreationFailed)
			}
			if err := f.blitMipLevel(blit, srcView.TextureView, dstView); err != nil {
				return err
			}
		}
		f.TransitionLayout(img, LayoutShaderReadOnly)
	}
	f.TransitionLayout(img, LayoutShaderReadOnly)
	return nil
}

// mipBlitPipeline lazily builds (and caches per color format) the
// fullscreen-triangle pipeline GenerateMips blits through.
func (f *ResourceFactory) mipBlitPipeline(format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	if p, ok := f.mipBlit[format]; ok {
		return p, nil
	}
	mod, err := f.ctx.Device().CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "mip-blit",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: internalshaders.MipBlitWGSL},
	})
	if err != nil || mod == nil {
		return nil, fmt.Errorf("create mip blit shader module: %w", gpuerr.ErrResourceCreationFailed)
	}

	bgl, err := f.ctx.Device().CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "mip-blit-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageFragment, Texture: wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat}},
			{Binding: 1, Visibility: wgpu.ShaderStageFragment, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create mip blit bind group layout: %w", gpuerr.ErrResourceCreationFailed)
	}
	layout, err := f.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "mip-blit-layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, fmt.Errorf("create mip blit pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}

	pipeline, err := f.ctx.Device().CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "mip-blit",
		Layout: layout,
		Vertex: wgpu.VertexState{Module: mod, EntryPoint: "vs_main"},
		Fragment: &wgpu.FragmentState{
			Module:     mod,
			EntryPoint: "fs_main",
			Targets:    []wgpu.ColorTargetState{{Format: format, WriteMask: wgpu.ColorWriteMaskAll}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil || pipeline == nil {
		return nil, fmt.Errorf("create mip blit pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}
	f.mipBlit[format] = pipeline
	return pipeline, nil
}

func (f *ResourceFactory) blitMipLevel(blit *wgpu.RenderPipeline, src, dst *wgpu.TextureView) error {
	sampler, err := f.ctx.Device().CreateSampler(&wgpu.SamplerDescriptor{
		MagFilter: wgpu.FilterModeLinear,
		MinFilter: wgpu.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("mip blit sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	bg, err := f.ctx.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: blit.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: src},
			{Binding: 1, Sampler: sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("mip blit bind group: %w", gpuerr.ErrResourceCreationFailed)
	}

	return f.ctx.WithSingleTimeCommands(func(encoder *wgpu.CommandEncoder) error {
		pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:       dst,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
			}},
		})
		pass.SetPipeline(blit)
		pass.SetBindGroup(0, bg, nil)
		pass.Draw(3, 1, 0, 0)
		return pass.End()
	})
}

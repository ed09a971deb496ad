package water

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/logging"
)

const (
	maxRipples = 16

	// waterUboSize is sizeof(WaterUbo): 3 mat4 (model/view/projection)
	// plus 3 vec4 (cameraPos/shallowColor/deepColor) plus 8 floats
	// (time, heightScale, gridSize, fresnelPower, reflectionStrength,
	// specularPower, 2 pad).
	waterUboSize = 3*64 + 3*16 + 8*4

	// rippleUboSize is maxRipples*{vec2 uv, float strength, float
	// radius} (16B each) plus a count padded to a 16-byte slot.
	rippleUboSize = maxRipples*16 + 16

	waveParamsSize   = 16 // {deltaTime, waveSpeed, damping, gridSize}
	normalParamsSize = 16 // {gridSize, heightScale, texelSize, _pad}

	// maxDeltaTime clamps Update's dt so a stalled frame (e.g. a debugger
	// pause) can't inject a wave-equation step large enough to blow up
	// the explicit integration.
	maxDeltaTime = float32(1.0 / 30.0)

	workgroupSize = 16
)

// Ripple is one pending height-field disturbance, in UV space ([0,1]²)
// with a falloff radius also in UV units.
type Ripple struct {
	UV       mgl32.Vec2
	Strength float32
	Radius   float32
}

// WaterSim owns the triple-buffered height-field compute solver, the
// derived normal map, and the transparent graphics pass that samples
// both plus the shared IBL set.
type WaterSim struct {
	ctx *gpupkg.GpuContext
	rf  *gpupkg.ResourceFactory
	hub *gpupkg.DescriptorHub
	log logging.Logger
	cfg Config

	height       [3]*gpupkg.Image
	heightView   [3]*gpupkg.View // storage + sampled view over the same image
	normal       *gpupkg.Image
	normalView   *gpupkg.View
	heightSampler *gpupkg.Sampler
	normalSampler *gpupkg.Sampler

	prev, curr, out int

	waveLayout    *wgpu.BindGroupLayout
	wavePipeline  *wgpu.ComputePipeline
	waveParamsBuf *gpupkg.Buffer
	rippleBuf     *gpupkg.Buffer

	normalLayout    *wgpu.BindGroupLayout
	normalPipeline  *wgpu.ComputePipeline
	normalParamsBuf *gpupkg.Buffer

	frameLayout         *wgpu.BindGroupLayout
	graphicsPipeline    *wgpu.RenderPipeline
	graphicsModule      *wgpu.ShaderModule
	graphicsFragModule  *wgpu.ShaderModule
	iblBound            bool

	frameUBOs []*gpupkg.Buffer
	frameSets []*wgpu.BindGroup

	vertexBuf  *gpupkg.Buffer
	indexBuf   *gpupkg.Buffer
	indexCount uint32

	pending []Ripple

	simTime float32

	waveSpeed, damping, heightScale float32

	simReady      bool
	graphicsReady bool
	enabled       bool
}

// New allocates the height-field triple, normal map, samplers, and the
// grid mesh. Pipelines are built by Initialize, which needs shader
// bytecode.
func New(ctx *gpupkg.GpuContext, rf *gpupkg.ResourceFactory, hub *gpupkg.DescriptorHub, cfg Config, log logging.Logger) (*WaterSim, error) {
	w := &WaterSim{
		ctx: ctx, rf: rf, hub: hub, cfg: cfg, log: logging.Or(log),
		enabled:     true,
		waveSpeed:   cfg.WaveSpeed,
		damping:     cfg.Damping,
		heightScale: cfg.HeightScale,
		prev:        0, curr: 1, out: 2,
	}
	if !validStability(w.waveSpeed, w.damping, w.heightScale) {
		return nil, fmt.Errorf("water: initial config fails stability invariants (speed=%g damping=%g heightScale=%g): %w",
			w.waveSpeed, w.damping, w.heightScale, gpuerr.ErrResourceCreationFailed)
	}

	usage := wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding
	for i := 0; i < 3; i++ {
		img, err := rf.CreateImage2D(cfg.GridSize, cfg.GridSize, 1, wgpu.TextureFormatR32Float, usage)
		if err != nil {
			return nil, fmt.Errorf("create water height image %d: %w", i, gpuerr.ErrResourceCreationFailed)
		}
		view, err := rf.CreateImageView(img, gpupkg.ViewKind2D, 0, 1, 0, 1)
		if err != nil {
			return nil, fmt.Errorf("create water height view %d: %w", i, gpuerr.ErrResourceCreationFailed)
		}
		rf.TransitionLayout(img, gpupkg.LayoutGeneral)
		w.height[i] = img
		w.heightView[i] = view
	}

	normal, err := rf.CreateImage2D(cfg.GridSize, cfg.GridSize, 1, wgpu.TextureFormatRGBA8Unorm, usage)
	if err != nil {
		return nil, fmt.Errorf("create water normal image: %w", gpuerr.ErrResourceCreationFailed)
	}
	normalView, err := rf.CreateImageView(normal, gpupkg.ViewKind2D, 0, 1, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("create water normal view: %w", gpuerr.ErrResourceCreationFailed)
	}
	rf.TransitionLayout(normal, gpupkg.LayoutGeneral)
	w.normal, w.normalView = normal, normalView

	heightSampler, err := rf.CreateSampler(gpupkg.SamplerOptions{
		MagFilter: wgpu.FilterModeNearest, MinFilter: wgpu.FilterModeNearest,
		MipmapFilter: wgpu.MipmapFilterModeNearest,
		AddressMode:  wgpu.AddressModeClampToEdge,
		LodMax:       1,
	})
	if err != nil {
		return nil, fmt.Errorf("create water height sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	normalSampler, err := rf.CreateSampler(gpupkg.SamplerOptions{
		MagFilter: wgpu.FilterModeLinear, MinFilter: wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeNearest,
		AddressMode:  wgpu.AddressModeClampToEdge,
		LodMax:       1,
	})
	if err != nil {
		return nil, fmt.Errorf("create water normal sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	w.heightSampler, w.normalSampler = heightSampler, normalSampler

	waveParamsBuf, err := rf.CreateBuffer(waveParamsSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
	if err != nil {
		return nil, fmt.Errorf("create water wave params ubo: %w", gpuerr.ErrResourceCreationFailed)
	}
	rippleBuf, err := rf.CreateBuffer(rippleUboSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
	if err != nil {
		return nil, fmt.Errorf("create water ripple ubo: %w", gpuerr.ErrResourceCreationFailed)
	}
	normalParamsBuf, err := rf.CreateBuffer(normalParamsSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
	if err != nil {
		return nil, fmt.Errorf("create water normal params ubo: %w", gpuerr.ErrResourceCreationFailed)
	}
	w.waveParamsBuf, w.rippleBuf, w.normalParamsBuf = waveParamsBuf, rippleBuf, normalParamsBuf

	frames := cfg.FramesInFlight
	if frames < 1 {
		frames = 1
	}
	w.frameUBOs = make([]*gpupkg.Buffer, frames)
	w.frameSets = make([]*wgpu.BindGroup, frames)
	for f := 0; f < frames; f++ {
		buf, err := rf.CreateBuffer(waterUboSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create water frame ubo %d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		w.frameUBOs[f] = buf
	}

	vtx, idx, count := buildGridMesh(cfg.MeshResolution)
	vertexBuf, err := rf.CreateBuffer(uint64(len(vtx)), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, false)
	if err != nil {
		return nil, fmt.Errorf("create water vertex buffer: %w", gpuerr.ErrResourceCreationFailed)
	}
	rf.WriteBuffer(vertexBuf, 0, vtx)
	indexBuf, err := rf.CreateBuffer(uint64(len(idx)), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, false)
	if err != nil {
		return nil, fmt.Errorf("create water index buffer: %w", gpuerr.ErrResourceCreationFailed)
	}
	rf.WriteBuffer(indexBuf, 0, idx)
	w.vertexBuf, w.indexBuf, w.indexCount = vertexBuf, indexBuf, count

	return w, nil
}

// Initialize loads the wave and normal compute shaders and the water
// vertex/fragment shaders, and builds the two compute pipelines. The
// graphics pipeline itself is deferred to RecreateGraphicsPipeline,
// which takes the IBL set's bind-group layout (or nil before IBL is
// ready).
func (w *WaterSim) Initialize(loader *gpupkg.ShaderLoader, shaderRoot string) error {
	waveLayout, err := w.hub.CreateLayout("water-wave", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageCompute},
		{Binding: 1, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageCompute},
		{Binding: 2, Kind: gpupkg.BindingStorageImage, Stages: wgpu.ShaderStageCompute, Format: wgpu.TextureFormatR32Float, Access: wgpu.StorageTextureAccessReadOnly},
		{Binding: 3, Kind: gpupkg.BindingStorageImage, Stages: wgpu.ShaderStageCompute, Format: wgpu.TextureFormatR32Float, Access: wgpu.StorageTextureAccessReadOnly},
		{Binding: 4, Kind: gpupkg.BindingStorageImage, Stages: wgpu.ShaderStageCompute, Format: wgpu.TextureFormatR32Float, Access: wgpu.StorageTextureAccessWriteOnly},
	})
	if err != nil {
		return err
	}
	w.waveLayout = waveLayout

	normalLayout, err := w.hub.CreateLayout("water-normal", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageCompute},
		{Binding: 1, Kind: gpupkg.BindingStorageImage, Stages: wgpu.ShaderStageCompute, Format: wgpu.TextureFormatR32Float, Access: wgpu.StorageTextureAccessReadOnly},
		{Binding: 2, Kind: gpupkg.BindingStorageImage, Stages: wgpu.ShaderStageCompute, Format: wgpu.TextureFormatRGBA8Unorm, Access: wgpu.StorageTextureAccessWriteOnly},
	})
	if err != nil {
		return err
	}
	w.normalLayout = normalLayout

	frameLayout, err := w.hub.CreateLayout("water-frame", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment},
		// R32Float is unfilterable-float in base WebGPU; the height
		// field is sampled with a nearest sampler to match.
		{Binding: 1, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			SampleType: wgpu.TextureSampleTypeUnfilterableFloat, SamplerType: wgpu.SamplerBindingTypeNonFiltering},
		{Binding: 2, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment},
	})
	if err != nil {
		return err
	}
	w.frameLayout = frameLayout
	for f := range w.frameUBOs {
		var set *wgpu.BindGroup
		if err := w.hub.Write(&set, frameLayout, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: w.frameUBOs[f].Handle, Size: waterUboSize},
			{Binding: 1, TextureView: w.heightView[w.curr].TextureView, Sampler: w.heightSampler.Handle},
			{Binding: 2, TextureView: w.normalView.TextureView, Sampler: w.normalSampler.Handle},
		}, fmt.Sprintf("water-frame-set-%d", f)); err != nil {
			return err
		}
		w.frameSets[f] = set
	}

	waveMod, err := loader.Load(shaderRoot, "water_wave.comp.spv")
	if err != nil {
		w.log.Warnf("water: wave compute shader unavailable, simulation disabled: %v", err)
		return nil
	}
	wavePipelineLayout, err := w.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "water-wave-layout", BindGroupLayouts: []*wgpu.BindGroupLayout{waveLayout},
	})
	if err != nil {
		return fmt.Errorf("create water wave pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}
	w.wavePipeline, err = w.ctx.Device().CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "water-wave", Layout: wavePipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{Module: waveMod, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create water wave pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}

	normalMod, err := loader.Load(shaderRoot, "water_normal.comp.spv")
	if err != nil {
		w.log.Warnf("water: normal compute shader unavailable, simulation disabled: %v", err)
		return nil
	}
	normalPipelineLayout, err := w.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "water-normal-layout", BindGroupLayouts: []*wgpu.BindGroupLayout{normalLayout},
	})
	if err != nil {
		return fmt.Errorf("create water normal pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}
	w.normalPipeline, err = w.ctx.Device().CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "water-normal", Layout: normalPipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{Module: normalMod, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create water normal pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}
	w.simReady = true

	vertMod, err := loader.Load(shaderRoot, "water.vert.spv")
	if err != nil {
		w.log.Warnf("water: graphics vertex shader unavailable, surface pass disabled: %v", err)
		return nil
	}
	fragMod, err := loader.Load(shaderRoot, "water.frag.spv")
	if err != nil {
		w.log.Warnf("water: graphics fragment shader unavailable, surface pass disabled: %v", err)
		return nil
	}
	w.graphicsModule = vertMod
	w.graphicsFragModule = fragMod
	return nil
}

// UpdateParams applies new wave-speed/damping/height-scale values if
// they satisfy the stability invariants, otherwise leaves the current
// values untouched and reports false.
func (w *WaterSim) UpdateParams(waveSpeed, damping, heightScale float32) bool {
	if !validStability(waveSpeed, damping, heightScale) {
		return false
	}
	w.waveSpeed, w.damping, w.heightScale = waveSpeed, damping, heightScale
	return true
}

// AddRipple enqueues a ripple to be injected at the next Update call.
// uv must be in [0,1]²; callers outside that range are clamped.
func (w *WaterSim) AddRipple(uv mgl32.Vec2, strength, radius float32) {
	u := clamp01(uv.X())
	v := clamp01(uv.Y())
	w.pending = append(w.pending, Ripple{UV: mgl32.Vec2{u, v}, Strength: strength, Radius: radius})
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Ready reports whether the compute pipelines are usable, gating
// Update. The graphics pass has its own readiness, since IBL may
// become available only after the compute side is already running.
func (w *WaterSim) Ready() bool { return w.simReady }

// SetEnabled toggles whether Update/Render emit any commands.
func (w *WaterSim) SetEnabled(enabled bool) { w.enabled = enabled }

// HeightView returns the current (latest-written) height map view.
func (w *WaterSim) HeightView() *gpupkg.View { return w.heightView[w.curr] }

// NormalView returns the derived normal map view.
func (w *WaterSim) NormalView() *gpupkg.View { return w.normalView }

// Package orchestrator implements the per-frame render loop: it
// sequences water compute, the two shadow passes and the main pass
// within one command encoder, selects the right pipeline per draw, and
// owns the per-frame-in-flight uniform buffers and bind groups every
// pass reads.
package orchestrator

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/ibl"
	"github.com/realge/vkrender-core/logging"
	"github.com/realge/vkrender-core/shadow"
	"github.com/realge/vkrender-core/stats"
	"github.com/realge/vkrender-core/water"
)

// MaxFramesInFlight bounds how many frames may be simultaneously
// recorded-but-not-retired.
const MaxFramesInFlight = 2

// vertex layout constants shared with the shadow package: the common
// mesh layout is position+normal+uv+tangent, the skeletal layout
// appends bone indices and weights.
const (
	commonVertexStride   = 4 * (3 + 3 + 2 + 4)
	skeletalVertexStride = commonVertexStride + 4*(4+4)
)

// Overlay is the external UI collaborator: it records its own draws
// into the tail of the main render pass.
type Overlay interface {
	Render(pass *wgpu.RenderPassEncoder)
}

// RayTracer is the optional external ray-tracing collaborator,
// dispatched between the shadow passes and the main pass.
type RayTracer interface {
	Dispatch(encoder *wgpu.CommandEncoder)
}

// FrameOrchestrator ties the subsystems together for the lifetime of
// the process. It borrows — never owns — the subsystem resources it
// records against.
type FrameOrchestrator struct {
	ctx       *gpupkg.GpuContext
	rf        *gpupkg.ResourceFactory
	hub       *gpupkg.DescriptorHub
	swapchain *gpupkg.SwapchainHost
	loader    *gpupkg.ShaderLoader
	log       logging.Logger

	shaderRoot string

	iblSys      *ibl.Precompute
	shadowDir   *shadow.ShadowDirectional
	shadowPoint *shadow.ShadowPointArray
	waterSys    *water.WaterSim

	material *MaterialBinding
	skybox   skyboxPass

	framesInFlight int
	frame          int
	submitted      []bool

	mvpUBOs   []*gpupkg.Buffer
	mvpSets   []*wgpu.BindGroup
	lightUBOs []*gpupkg.Buffer
	lightSets []*wgpu.BindGroup

	mvpLayout   *wgpu.BindGroupLayout
	lightLayout *wgpu.BindGroupLayout
	boneLayout  *wgpu.BindGroupLayout

	standardPipeline *wgpu.RenderPipeline
	pbrPipeline      *wgpu.RenderPipeline
	skeletalPipeline *wgpu.RenderPipeline

	bones map[uint64]*boneResources

	stats      stats.RenderStats
	mode       RenderMode
	debugLayer int32
	iblIntensity float32
}

// Config tunes the orchestrator at construction.
type Config struct {
	ShaderRoot   string
	MaxDraws     int
	IblIntensity float32
}

// DefaultConfig returns the shaders/ root with a 4096-draw material
// ring.
func DefaultConfig() Config {
	return Config{ShaderRoot: "shaders", MaxDraws: 4096, IblIntensity: 1.0}
}

// New wires the orchestrator to its collaborators and allocates the
// per-frame MVP/light uniform buffers and the material binding ring.
func New(ctx *gpupkg.GpuContext, rf *gpupkg.ResourceFactory, hub *gpupkg.DescriptorHub, swapchain *gpupkg.SwapchainHost,
	iblSys *ibl.Precompute, shadowDir *shadow.ShadowDirectional, shadowPoint *shadow.ShadowPointArray, waterSys *water.WaterSim,
	cfg Config, log logging.Logger) (*FrameOrchestrator, error) {

	o := &FrameOrchestrator{
		ctx: ctx, rf: rf, hub: hub, swapchain: swapchain,
		loader:     gpupkg.NewShaderLoader(ctx.Device()),
		log:        logging.Or(log),
		shaderRoot: cfg.ShaderRoot,

		iblSys: iblSys, shadowDir: shadowDir, shadowPoint: shadowPoint, waterSys: waterSys,

		framesInFlight: MaxFramesInFlight,
		submitted:      make([]bool, MaxFramesInFlight),
		bones:          make(map[uint64]*boneResources),
		mode:           ModeStandard,
		iblIntensity:   cfg.IblIntensity,
	}

	material, err := NewMaterialBinding(ctx, rf, hub, o.framesInFlight, cfg.MaxDraws, o.log)
	if err != nil {
		return nil, err
	}
	o.material = material

	o.mvpUBOs = make([]*gpupkg.Buffer, o.framesInFlight)
	o.lightUBOs = make([]*gpupkg.Buffer, o.framesInFlight)
	for f := 0; f < o.framesInFlight; f++ {
		mvp, err := rf.CreateBuffer(mvpUboSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create mvp ubo frame=%d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		light, err := rf.CreateBuffer(lightUboSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create light ubo frame=%d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		o.mvpUBOs[f], o.lightUBOs[f] = mvp, light
	}

	return o, nil
}

// Initialize builds the shared bind-group layouts, the per-frame MVP
// and light sets, and the three main-pass pipelines. Subsystems that
// fail to build their shaders stay unready and their passes are
// skipped per frame rather than aborting initialization.
func (o *FrameOrchestrator) Initialize() error {
	if err := o.material.Initialize(); err != nil {
		return err
	}

	mvpLayout, err := o.hub.CreateLayout("frame-mvp", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment},
	})
	if err != nil {
		return err
	}
	o.mvpLayout = mvpLayout

	lightLayout, err := o.hub.CreateLayout("frame-lights", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageFragment},
		{Binding: 1, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment,
			SampleType: wgpu.TextureSampleTypeDepth, SamplerType: wgpu.SamplerBindingTypeComparison},
		{Binding: 2, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment,
			SampleType: wgpu.TextureSampleTypeDepth, SamplerType: wgpu.SamplerBindingTypeComparison,
			ViewDim: wgpu.TextureViewDimensionCubeArray},
	})
	if err != nil {
		return err
	}
	o.lightLayout = lightLayout

	boneLayout, err := o.hub.CreateLayout("frame-bones", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingStorageBuffer, Stages: wgpu.ShaderStageVertex},
	})
	if err != nil {
		return err
	}
	o.boneLayout = boneLayout

	o.mvpSets = make([]*wgpu.BindGroup, o.framesInFlight)
	o.lightSets = make([]*wgpu.BindGroup, o.framesInFlight)
	for f := 0; f < o.framesInFlight; f++ {
		if err := o.hub.Write(&o.mvpSets[f], mvpLayout, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: o.mvpUBOs[f].Handle, Size: mvpUboSize},
		}, fmt.Sprintf("frame-mvp-set-%d", f)); err != nil {
			return err
		}
		if err := o.writeLightSet(f); err != nil {
			return err
		}
	}

	if err := o.buildScenePipelines(); err != nil {
		return err
	}
	return nil
}

// writeLightSet (re)writes frame f's light set: the light UBO plus the
// two shadow-map samplers. Called at initialize and again whenever a
// referenced shadow view is recreated.
func (o *FrameOrchestrator) writeLightSet(f int) error {
	return o.hub.Write(&o.lightSets[f], o.lightLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: o.lightUBOs[f].Handle, Size: lightUboSize},
		{Binding: 1, TextureView: o.shadowDir.View().TextureView, Sampler: o.shadowDir.Sampler().Handle},
		{Binding: 2, TextureView: o.shadowPoint.CubeArrayView().TextureView, Sampler: o.shadowDir.Sampler().Handle},
	}, fmt.Sprintf("frame-light-set-%d", f))
}

// buildScenePipelines creates the standard, PBR and skeletal
// main-pass pipelines. Missing shader blobs degrade: a pipeline whose
// shaders are unavailable is left nil and the per-draw selection falls
// back per the selection rules.
func (o *FrameOrchestrator) buildScenePipelines() error {
	standard, err := o.buildPipeline("scene_standard", []*wgpu.BindGroupLayout{o.mvpLayout, o.material.Layout()}, commonVertexStride, false)
	if err != nil {
		return err
	}
	o.standardPipeline = standard

	pbrLayouts := []*wgpu.BindGroupLayout{o.mvpLayout, o.material.Layout(), o.lightLayout}
	if o.iblSys.Layout() != nil {
		pbrLayouts = append(pbrLayouts, o.iblSys.Layout())
	}
	pbr, err := o.buildPipeline("scene_pbr", pbrLayouts, commonVertexStride, false)
	if err != nil {
		return err
	}
	o.pbrPipeline = pbr

	skeletalLayouts := append(append([]*wgpu.BindGroupLayout{}, pbrLayouts...), o.boneLayout)
	skeletal, err := o.buildPipeline("scene_skeletal", skeletalLayouts, skeletalVertexStride, true)
	if err != nil {
		return err
	}
	o.skeletalPipeline = skeletal
	return nil
}

// buildPipeline loads <name>.vert.spv / <name>.frag.spv and builds a
// forward pipeline against the swapchain's color/depth formats with
// the full mesh vertex layout. A missing blob returns (nil, nil): the
// caller treats that pipeline as never-ready.
func (o *FrameOrchestrator) buildPipeline(name string, layouts []*wgpu.BindGroupLayout, stride uint64, skeletal bool) (*wgpu.RenderPipeline, error) {
	vertMod, err := o.loader.Load(o.shaderRoot, name+".vert.spv")
	if err != nil {
		o.log.Warnf("orchestrator: %s vertex shader unavailable, pipeline disabled: %v", name, err)
		return nil, nil
	}
	fragMod, err := o.loader.Load(o.shaderRoot, name+".frag.spv")
	if err != nil {
		o.log.Warnf("orchestrator: %s fragment shader unavailable, pipeline disabled: %v", name, err)
		return nil, nil
	}

	pipelineLayout, err := o.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            name + "-layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline layout: %w", name, gpuerr.ErrResourceCreationFailed)
	}

	attrs := []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
		{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 3},
	}
	if skeletal {
		attrs = append(attrs,
			wgpu.VertexAttribute{Format: wgpu.VertexFormatSint32x4, Offset: 48, ShaderLocation: 4},
			wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x4, Offset: 64, ShaderLocation: 5},
		)
	}

	pipeline, err := o.ctx.Device().CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  name,
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vertMod,
			EntryPoint: "main",
			Buffers: []wgpu.VertexBufferLayout{
				{ArrayStride: stride, StepMode: wgpu.VertexStepModeVertex, Attributes: attrs},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     fragMod,
			EntryPoint: "main",
			Targets: []wgpu.ColorTargetState{
				{Format: o.swapchain.Format(), WriteMask: wgpu.ColorWriteMaskAll},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            o.ctx.DepthFormat(),
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil || pipeline == nil {
		return nil, fmt.Errorf("create %s pipeline: %w", name, gpuerr.ErrResourceCreationFailed)
	}
	return pipeline, nil
}

// InitializeIBL runs the IBL precompute for hdrPath, then builds the
// skybox pass against the resulting environment cube and rebuilds the
// water graphics pipeline so its layout gains the IBL set.
func (o *FrameOrchestrator) InitializeIBL(hdrPath string) error {
	if err := o.iblSys.InitializeIBL(hdrPath); err != nil {
		return err
	}
	return o.afterIblReady()
}

// ReloadIBL tears down and recomputes the IBL set for a new HDR, then
// rebuilds every dependent pipeline. The device is drained first so no
// in-flight frame still references the old textures.
func (o *FrameOrchestrator) ReloadIBL(hdrPath string) error {
	o.ctx.Device().Poll(true, nil)
	for i := range o.submitted {
		o.submitted[i] = false
	}
	if err := o.iblSys.ReloadIBL(hdrPath); err != nil {
		return err
	}
	return o.afterIblReady()
}

func (o *FrameOrchestrator) afterIblReady() error {
	if err := o.initSkybox(o.iblSys.EnvironmentView(), o.iblSys.Sampler()); err != nil {
		return err
	}
	if err := o.buildScenePipelines(); err != nil {
		return err
	}
	return o.waterSys.RecreateGraphicsPipeline(o.iblSys.Layout(), o.swapchain.Format(), o.ctx.DepthFormat())
}

// SetRenderMode selects the forward path non-skeletal geometry takes.
func (o *FrameOrchestrator) SetRenderMode(mode RenderMode) { o.mode = mode }

// SetDebugLayer routes the debug-visualization layer index into every
// draw's constants.
func (o *FrameOrchestrator) SetDebugLayer(layer int32) { o.debugLayer = layer }

// GetRenderStats returns the counters accumulated by the last frame.
func (o *FrameOrchestrator) GetRenderStats() stats.RenderStats { return o.stats }

// AddRipple forwards a water disturbance to the simulation.
func (o *FrameOrchestrator) AddRipple(u, v, strength, radius float32) {
	o.waterSys.AddRipple(mgl32.Vec2{u, v}, strength, radius)
}

// Water returns the water system for external tuning UI.
func (o *FrameOrchestrator) Water() *water.WaterSim { return o.waterSys }

// IBL returns the IBL precompute for external tuning UI.
func (o *FrameOrchestrator) IBL() *ibl.Precompute { return o.iblSys }

// ShadowDirectional returns the sun shadow system.
func (o *FrameOrchestrator) ShadowDirectional() *shadow.ShadowDirectional { return o.shadowDir }

// ShadowPoint returns the point-light shadow system.
func (o *FrameOrchestrator) ShadowPoint() *shadow.ShadowPointArray { return o.shadowPoint }

// Resize recreates the swapchain and its depth attachment at the new
// extent and rewrites every frame's light descriptor set. No
// descriptor set references the swapchain depth image, so none needs
// repointing. Pipelines are untouched: they were created against
// formats, not extents.
func (o *FrameOrchestrator) Resize(width, height uint32) error {
	o.ctx.Device().Poll(true, nil)
	for i := range o.submitted {
		o.submitted[i] = false
	}
	if err := o.swapchain.Recreate(width, height); err != nil {
		return err
	}
	for f := 0; f < o.framesInFlight; f++ {
		if err := o.writeLightSet(f); err != nil {
			return err
		}
	}
	return nil
}

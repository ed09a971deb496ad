package shadow

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/logging"
	"github.com/realge/vkrender-core/scene"
)

// commonVertexStride/skeletalVertexStride are the byte strides of the
// two vertex layouts the rest of the core's meshes upload: position
// (vec3) + normal (vec3) + uv (vec2) + tangent (vec4), with the
// skeletal layout appending bone indices (ivec4) + bone weights
// (vec4). The depth-only pipelines below only read the leading
// position attribute out of either layout.
const (
	commonVertexStride   = 4 * (3 + 3 + 2 + 4)
	skeletalVertexStride = commonVertexStride + 4*(4+4)
)

const defaultFrustumSize = 50.0

// DirectionalConfig tunes ShadowDirectional at construction.
type DirectionalConfig struct {
	MapSize        uint32
	FrustumSize    float32
	Near, Far      float32
	DepthBias      float32
	MaxDraws       int // upper bound on distinct model matrices per frame
	FramesInFlight int
}

// DefaultDirectionalConfig returns the 4096x4096 default map with a
// 50-unit half-extent frustum.
func DefaultDirectionalConfig() DirectionalConfig {
	return DirectionalConfig{MapSize: 4096, FrustumSize: defaultFrustumSize, Near: 0.5, Far: 200, DepthBias: 1.5, MaxDraws: 4096, FramesInFlight: 2}
}

// ShadowDirectional owns the single sun shadow map: its depth image,
// edge-clamp comparison sampler, and the static + skeletal depth-only
// pipelines.
type ShadowDirectional struct {
	ctx *gpupkg.GpuContext
	rf  *gpupkg.ResourceFactory
	hub *gpupkg.DescriptorHub
	log logging.Logger
	cfg DirectionalConfig

	depth     *gpupkg.Image
	depthView *gpupkg.View
	sampler   *gpupkg.Sampler

	frameLayout *wgpu.BindGroupLayout
	boneLayout  *wgpu.BindGroupLayout

	staticPipeline   *wgpu.RenderPipeline
	skeletalPipeline *wgpu.RenderPipeline

	frameBufs  []*gpupkg.Buffer
	frameSets  []*wgpu.BindGroup
	modelBufs  []*gpupkg.Buffer
	drawStride uint64
	drawCursor int

	ready   bool
	enabled bool
}

// NewShadowDirectional allocates the depth target, sampler and
// per-frame/per-draw uniform buffers, but defers pipeline creation to
// Initialize (which needs shader bytecode).
func NewShadowDirectional(ctx *gpupkg.GpuContext, rf *gpupkg.ResourceFactory, hub *gpupkg.DescriptorHub, cfg DirectionalConfig, log logging.Logger) (*ShadowDirectional, error) {
	s := &ShadowDirectional{ctx: ctx, rf: rf, hub: hub, cfg: cfg, log: logging.Or(log), enabled: true}

	depth, err := rf.CreateDepthImage2D(cfg.MapSize, cfg.MapSize, ctx.DepthFormat(), wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return nil, fmt.Errorf("create directional shadow depth image: %w", gpuerr.ErrResourceCreationFailed)
	}
	view, err := rf.CreateImageView(depth, gpupkg.ViewKind2D, 0, 1, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("create directional shadow depth view: %w", gpuerr.ErrResourceCreationFailed)
	}
	rf.TransitionLayout(depth, gpupkg.LayoutDepthAttachment)
	s.depth, s.depthView = depth, view

	sampler, err := rf.CreateSampler(gpupkg.SamplerOptions{
		MagFilter: wgpu.FilterModeLinear, MinFilter: wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeNearest,
		BorderWhite:  true,
		CompareEnable: true, Compare: wgpu.CompareFunctionLessEqual,
		LodMax: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create directional shadow sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	s.sampler = sampler

	s.drawStride = AlignedStride(64, ctx.MinUniformBufferOffsetAlignment())
	maxDraws := cfg.MaxDraws
	if maxDraws < 1 {
		maxDraws = 1
	}
	frames := cfg.FramesInFlight
	if frames < 1 {
		frames = 1
	}
	s.frameBufs = make([]*gpupkg.Buffer, frames)
	s.modelBufs = make([]*gpupkg.Buffer, frames)
	s.frameSets = make([]*wgpu.BindGroup, frames)
	for f := 0; f < frames; f++ {
		frameBuf, err := rf.CreateBuffer(64, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create directional shadow frame ubo %d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		modelBuf, err := rf.CreateBuffer(s.drawStride*uint64(maxDraws), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create directional shadow model ubo %d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		s.frameBufs[f], s.modelBufs[f] = frameBuf, modelBuf
	}

	return s, nil
}

// Initialize loads shader bytecode for the static and skeletal
// depth-only pipelines and builds the bind-group layouts/sets.
func (s *ShadowDirectional) Initialize(loader *gpupkg.ShaderLoader, shaderRoot string) error {
	frameLayout, err := s.hub.CreateLayout("shadow-directional-frame", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageVertex},
		{Binding: 1, Kind: gpupkg.BindingUniformBufferDynamic, Stages: wgpu.ShaderStageVertex},
	})
	if err != nil {
		return err
	}
	s.frameLayout = frameLayout

	boneLayout, err := s.hub.CreateLayout("shadow-directional-bones", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingStorageBuffer, Stages: wgpu.ShaderStageVertex},
	})
	if err != nil {
		return err
	}
	s.boneLayout = boneLayout

	for f := range s.frameBufs {
		if err := s.hub.Write(&s.frameSets[f], frameLayout, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: s.frameBufs[f].Handle, Size: 64},
			{Binding: 1, Buffer: s.modelBufs[f].Handle, Size: 64},
		}, fmt.Sprintf("shadow-directional-frame-set-%d", f)); err != nil {
			return err
		}
	}

	staticMod, err := loader.Load(shaderRoot, "shadow_directional.vert.spv")
	if err != nil {
		s.log.Warnf("shadow: static depth shader unavailable, directional shadows disabled: %v", err)
		return nil
	}
	skeletalMod, err := loader.Load(shaderRoot, "shadow_directional_skeletal.vert.spv")
	if err != nil {
		s.log.Warnf("shadow: skeletal depth shader unavailable, skeletal casters disabled: %v", err)
	}

	staticLayout, err := s.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "shadow-directional-static-layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{frameLayout},
	})
	if err != nil {
		return fmt.Errorf("create directional static pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}
	s.staticPipeline, err = s.ctx.Device().CreateRenderPipeline(depthOnlyPipelineDescriptor(
		"shadow-directional-static", staticLayout, staticMod, commonVertexStride, s.ctx.DepthFormat(), s.cfg.DepthBias))
	if err != nil {
		return fmt.Errorf("create directional static pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}

	if skeletalMod != nil {
		skeletalPipelineLayout, err := s.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
			Label:            "shadow-directional-skeletal-layout",
			BindGroupLayouts: []*wgpu.BindGroupLayout{frameLayout, boneLayout},
		})
		if err != nil {
			return fmt.Errorf("create directional skeletal pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
		}
		s.skeletalPipeline, err = s.ctx.Device().CreateRenderPipeline(depthOnlyPipelineDescriptor(
			"shadow-directional-skeletal", skeletalPipelineLayout, skeletalMod, skeletalVertexStride, s.ctx.DepthFormat(), s.cfg.DepthBias))
		if err != nil {
			return fmt.Errorf("create directional skeletal pipeline: %w", gpuerr.ErrResourceCreationFailed)
		}
	}

	s.ready = true
	return nil
}

func depthOnlyPipelineDescriptor(label string, layout *wgpu.PipelineLayout, mod *wgpu.ShaderModule, stride uint64, depthFormat wgpu.TextureFormat, bias float32) *wgpu.RenderPipelineDescriptor {
	return &wgpu.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     mod,
			EntryPoint: "main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: stride,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					},
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLessEqual,
			DepthBias:         int32(bias * 100),
			DepthBiasSlopeScale: 1.5,
			DepthBiasClamp:    0,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
}

// Ready reports whether at least the static pipeline is usable.
func (s *ShadowDirectional) Ready() bool { return s.ready }

// Config returns the construction-time tuning values, read by the
// orchestrator to build the light-space matrix each frame.
func (s *ShadowDirectional) Config() DirectionalConfig { return s.cfg }

// SetEnabled toggles whether Render emits any commands.
func (s *ShadowDirectional) SetEnabled(enabled bool) { s.enabled = enabled }

// View returns the shadow map's sampled view.
func (s *ShadowDirectional) View() *gpupkg.View { return s.depthView }

// Sampler returns the comparison sampler. It is created with
// BorderWhite, which clamps to the edge texel: samples outside the map
// read the nearest edge depth, not a white border.
func (s *ShadowDirectional) Sampler() *gpupkg.Sampler { return s.sampler }

// UpdateFrame writes the light-space matrix into frame's UBO slot.
func (s *ShadowDirectional) UpdateFrame(lightSpace mgl32.Mat4, frame int) {
	writeMat4(s.frameBufs[frame%len(s.frameBufs)].MappedPtr, 0, lightSpace)
}

// BoneSource supplies per-instance bone bind groups for skeletal
// casters. The orchestrator owns the idempotent per-instance cache and
// implements this; the shadow pass only consumes it.
type BoneSource interface {
	BoneSet(state scene.SkeletalState, frame int) (*wgpu.BindGroup, error)
}

// Render depth-draws every instance (and, for skeletal meshes with a
// ready skeletal pipeline, their bone-skinned variant) into the
// directional shadow map. bones may be nil, which forces every caster
// down the static path. A disabled system or one whose static pipeline
// never built emits no commands.
func (s *ShadowDirectional) Render(encoder *wgpu.CommandEncoder, instances []scene.Instance, frame int, bones BoneSource) error {
	if !s.enabled || !s.ready {
		return nil
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "shadow-directional-pass",
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            s.depthView.TextureView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	pass.SetViewport(0, 0, float32(s.cfg.MapSize), float32(s.cfg.MapSize), 0, 1)
	pass.SetScissorRect(0, 0, s.cfg.MapSize, s.cfg.MapSize)

	frameSet := s.frameSets[frame%len(s.frameSets)]
	modelBuf := s.modelBufs[frame%len(s.modelBufs)]
	s.drawCursor = 0
	bound := -1 // 0=static, 1=skeletal
	for _, inst := range instances {
		if inst.Mesh == nil {
			continue
		}
		skeletal := inst.IsSkeletal() && s.skeletalPipeline != nil && bones != nil
		want := 0
		if skeletal {
			want = 1
		}
		if bound != want {
			if skeletal {
				pass.SetPipeline(s.skeletalPipeline)
			} else {
				pass.SetPipeline(s.staticPipeline)
			}
			bound = want
		}

		offset := s.writeModel(modelBuf, inst.Transform)
		pass.SetBindGroup(0, frameSet, []uint32{uint32(offset)})
		if skeletal {
			state, _ := inst.Mesh.SkeletalState()
			boneSet, err := bones.BoneSet(state, frame)
			if err != nil {
				return err
			}
			pass.SetBindGroup(1, boneSet, nil)
		}
		inst.Mesh.Bind(pass)
		pass.DrawIndexed(inst.Mesh.IndexCount(), 1, 0, 0, 0)
	}

	if err := pass.End(); err != nil {
		return fmt.Errorf("end directional shadow pass: %w", gpuerr.ErrResourceCreationFailed)
	}

	s.rf.FlushBuffer(s.frameBufs[frame%len(s.frameBufs)])
	s.rf.FlushBuffer(modelBuf)
	return nil
}

// writeModel stores model into the next slot of this frame's model
// ring and returns the dynamic offset to bind it at, wrapping once
// MaxDraws is exceeded.
func (s *ShadowDirectional) writeModel(modelBuf *gpupkg.Buffer, model mgl32.Mat4) uint64 {
	slots := uint64(len(modelBuf.MappedPtr)) / s.drawStride
	slot := uint64(s.drawCursor) % slots
	offset := slot * s.drawStride
	writeMat4(modelBuf.MappedPtr, offset, model)
	s.drawCursor++
	return offset
}

func writeMat4(dst []byte, offset uint64, m mgl32.Mat4) {
	for i, v := range m {
		bits := math.Float32bits(v)
		o := offset + uint64(i*4)
		dst[o] = byte(bits)
		dst[o+1] = byte(bits >> 8)
		dst[o+2] = byte(bits >> 16)
		dst[o+3] = byte(bits >> 24)
	}
}

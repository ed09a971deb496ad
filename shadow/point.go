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

// shadowUboPointSize is sizeof(ShadowUboPoint): 6 mat4 view-projections
// plus a vec4 {lightPos, farPlane}.
const shadowUboPointSize = 6*64 + 16

// PointConfig tunes ShadowPointArray at construction.
type PointConfig struct {
	FaceSize     uint32
	Near         float32
	DefaultFar   float32
	FramesInFlight int
}

// DefaultPointConfig returns the 1024x1024-per-face default.
func DefaultPointConfig() PointConfig {
	return PointConfig{FaceSize: 1024, Near: 0.1, DefaultFar: 50, FramesInFlight: 2}
}

// ShadowPointArray owns the cube-array depth target backing every
// point light's omnidirectional shadow, one per-face render target
// per (light, face) pair, and the per-frame-in-flight dynamic-offset
// UBO that carries each light's 6 face matrices + far plane.
type ShadowPointArray struct {
	ctx *gpupkg.GpuContext
	rf  *gpupkg.ResourceFactory
	hub *gpupkg.DescriptorHub
	log logging.Logger
	cfg PointConfig

	depth      *gpupkg.Image
	cubeView   *gpupkg.View
	faceViews  []*gpupkg.View // indexed light*6+face

	layout *wgpu.BindGroupLayout
	pipeline *wgpu.RenderPipeline

	stride  uint64
	ubos    []*gpupkg.Buffer
	sets    []*wgpu.BindGroup

	// drawStride/drawBufs/drawCursor back the per-draw {model, face}
	// push, emulated as a second dynamic-offset binding in the same
	// set, distinct from the per-light UBO above which only changes
	// once per (light,face) pass.
	drawStride uint64
	drawBufs   []*gpupkg.Buffer
	drawCursor int

	activeLights int
	lightInfo    [MaxShadowPointLights]mgl32.Vec4
	enabled      bool
	ready        bool
}

// NewShadowPointArray allocates the cube-array depth image, its
// sampling view, and one 2D view per (light, face) render target, and
// transitions every layer to ShaderReadOnly so unread slots don't
// trip shader-side validation before their first write.
func NewShadowPointArray(ctx *gpupkg.GpuContext, rf *gpupkg.ResourceFactory, hub *gpupkg.DescriptorHub, cfg PointConfig, log logging.Logger) (*ShadowPointArray, error) {
	s := &ShadowPointArray{ctx: ctx, rf: rf, hub: hub, cfg: cfg, log: logging.Or(log), enabled: true}

	layers := uint32(6 * MaxShadowPointLights)
	depth, err := rf.CreateCubeImage(cfg.FaceSize, 1, layers, ctx.DepthFormat(), wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return nil, fmt.Errorf("create point shadow cube array: %w", gpuerr.ErrResourceCreationFailed)
	}
	s.depth = depth

	cubeView, err := rf.CreateImageView(depth, gpupkg.ViewKindCubeArray, 0, 1, 0, layers)
	if err != nil {
		return nil, fmt.Errorf("create point shadow cube-array sampling view: %w", gpuerr.ErrResourceCreationFailed)
	}
	s.cubeView = cubeView

	s.faceViews = make([]*gpupkg.View, layers)
	for i := uint32(0); i < layers; i++ {
		v, err := rf.CreateImageView(depth, gpupkg.ViewKind2D, 0, 1, i, 1)
		if err != nil {
			return nil, fmt.Errorf("create point shadow face view %d: %w", i, gpuerr.ErrResourceCreationFailed)
		}
		s.faceViews[i] = v
	}
	rf.TransitionLayout(depth, gpupkg.LayoutShaderReadOnly)

	s.stride = AlignedStride(shadowUboPointSize, ctx.MinUniformBufferOffsetAlignment())
	frames := cfg.FramesInFlight
	if frames < 1 {
		frames = 1
	}
	s.ubos = make([]*gpupkg.Buffer, frames)
	s.sets = make([]*wgpu.BindGroup, frames)
	for f := 0; f < frames; f++ {
		buf, err := rf.CreateBuffer(s.stride*uint64(MaxShadowPointLights), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create point shadow ubo frame=%d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		s.ubos[f] = buf
	}

	// Per-draw payload is {model: mat4 (64B), face: i32 padded to a
	// vec4 (16B)} = 80 bytes, aligned up to the device's dynamic-offset
	// granularity.
	s.drawStride = AlignedStride(80, ctx.MinUniformBufferOffsetAlignment())
	s.drawBufs = make([]*gpupkg.Buffer, frames)
	for f := 0; f < frames; f++ {
		buf, err := rf.CreateBuffer(s.drawStride*2048, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create point shadow draw ubo frame=%d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		s.drawBufs[f] = buf
	}

	return s, nil
}

// Initialize loads the omnidirectional depth-only shader and builds
// the dynamic-UBO bind-group layout and per-frame sets.
func (s *ShadowPointArray) Initialize(loader *gpupkg.ShaderLoader, shaderRoot string) error {
	layout, err := s.hub.CreateLayout("shadow-point-frame", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBufferDynamic, Stages: wgpu.ShaderStageVertex},
		{Binding: 1, Kind: gpupkg.BindingUniformBufferDynamic, Stages: wgpu.ShaderStageVertex},
	})
	if err != nil {
		return err
	}
	s.layout = layout

	for f := range s.ubos {
		var set *wgpu.BindGroup
		if err := s.hub.Write(&set, layout, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: s.ubos[f].Handle, Size: shadowUboPointSize},
			{Binding: 1, Buffer: s.drawBufs[f].Handle, Size: 80},
		}, fmt.Sprintf("shadow-point-set-%d", f)); err != nil {
			return err
		}
		s.sets[f] = set
	}

	mod, err := loader.Load(shaderRoot, "shadow_point.vert.spv")
	if err != nil {
		s.log.Warnf("shadow: point depth shader unavailable, point shadows disabled: %v", err)
		return nil
	}

	pipelineLayout, err := s.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "shadow-point-layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("create point shadow pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}
	s.pipeline, err = s.ctx.Device().CreateRenderPipeline(depthOnlyPipelineDescriptor(
		"shadow-point", pipelineLayout, mod, commonVertexStride, s.ctx.DepthFormat(), 0))
	if err != nil {
		return fmt.Errorf("create point shadow pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}

	s.ready = true
	return nil
}

// Ready reports whether the depth-only pipeline is usable.
func (s *ShadowPointArray) Ready() bool { return s.ready }

// SetEnabled toggles whether Render emits any commands.
func (s *ShadowPointArray) SetEnabled(enabled bool) { s.enabled = enabled }

// CubeArrayView returns the shared sampling view over every light's 6
// faces, bound by the main pass's point-light shadow sampler.
func (s *ShadowPointArray) CubeArrayView() *gpupkg.View { return s.cubeView }

// UpdateLights writes each active point light's 6 face matrices and
// far plane into this frame's dynamic UBO, up to MaxShadowPointLights.
func (s *ShadowPointArray) UpdateLights(lights []scene.Light, frame int) {
	buf := s.ubos[frame%len(s.ubos)]
	n := 0
	for _, l := range lights {
		if l.Kind != scene.LightPoint {
			continue
		}
		if n >= MaxShadowPointLights {
			break
		}
		writePointLight(buf.MappedPtr, uint64(n)*s.stride, l, s.cfg.Near, s.cfg.DefaultFar)
		far := s.cfg.DefaultFar
		if l.Radius > 0 {
			far = l.Radius
		}
		s.lightInfo[n] = mgl32.Vec4{l.PositionOrDirection.X(), l.PositionOrDirection.Y(), l.PositionOrDirection.Z(), far}
		n++
	}
	s.activeLights = n
}

// ActiveLightCount returns how many point lights the last UpdateLights
// call admitted into the cube array.
func (s *ShadowPointArray) ActiveLightCount() int { return s.activeLights }

// LightInfo returns {position, farPlane} for active light slot i, the
// same vec4 the main pass's shader reads to select a cube layer.
func (s *ShadowPointArray) LightInfo(i int) mgl32.Vec4 { return s.lightInfo[i] }

// Stride returns the aligned per-light dynamic-UBO stride, computed
// once at construction.
func (s *ShadowPointArray) Stride() uint64 { return s.stride }

func writePointLight(dst []byte, offset uint64, l scene.Light, near, defaultFar float32) {
	far := defaultFar
	if l.Radius > 0 {
		far = l.Radius
	}
	for face := uint32(0); face < 6; face++ {
		vp := PointFaceProjection(l.PositionOrDirection, l.Radius, near, defaultFar, face)
		writeMat4(dst, offset+uint64(face)*64, vp)
	}
	base := offset + 6*64
	writeVec4(dst, base, l.PositionOrDirection, far)
}

func writeVec4(dst []byte, offset uint64, pos mgl32.Vec3, w float32) {
	vals := [4]float32{pos.X(), pos.Y(), pos.Z(), w}
	for i, v := range vals {
		bits := math.Float32bits(v)
		o := offset + uint64(i*4)
		dst[o] = byte(bits)
		dst[o+1] = byte(bits >> 8)
		dst[o+2] = byte(bits >> 16)
		dst[o+3] = byte(bits >> 24)
	}
}

// Render depth-draws every instance into each active light's 6 faces.
// Unused light slots are left at their last ShaderReadOnly transition
// and never rendered into this frame.
func (s *ShadowPointArray) Render(encoder *wgpu.CommandEncoder, instances []scene.Instance, frame int) error {
	if !s.enabled || !s.ready {
		return nil
	}
	set := s.sets[frame%len(s.sets)]
	drawBuf := s.drawBufs[frame%len(s.drawBufs)]
	s.drawCursor = 0

	for l := 0; l < s.activeLights; l++ {
		for face := uint32(0); face < 6; face++ {
			layer := uint32(l)*6 + face
			view := s.faceViews[layer]

			pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
				Label: fmt.Sprintf("shadow-point-l%d-f%d", l, face),
				DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
					View:            view.TextureView,
					DepthLoadOp:     wgpu.LoadOpClear,
					DepthStoreOp:    wgpu.StoreOpStore,
					DepthClearValue: 1.0,
				},
			})
			pass.SetViewport(0, 0, float32(s.cfg.FaceSize), float32(s.cfg.FaceSize), 0, 1)
			pass.SetScissorRect(0, 0, s.cfg.FaceSize, s.cfg.FaceSize)
			pass.SetPipeline(s.pipeline)
			lightOffset := uint32(uint64(l) * s.stride)

			for _, inst := range instances {
				if inst.Mesh == nil {
					continue
				}
				drawOffset := s.writeDraw(drawBuf, inst.Transform, face)
				pass.SetBindGroup(0, set, []uint32{lightOffset, drawOffset})
				inst.Mesh.Bind(pass)
				pass.DrawIndexed(inst.Mesh.IndexCount(), 1, 0, 0, 0)
			}

			if err := pass.End(); err != nil {
				return fmt.Errorf("end point shadow pass light=%d face=%d: %w", l, face, gpuerr.ErrResourceCreationFailed)
			}
			s.rf.TransitionLayout(s.depth, gpupkg.LayoutShaderReadOnly)
		}
	}

	s.rf.FlushBuffer(s.ubos[frame%len(s.ubos)])
	s.rf.FlushBuffer(drawBuf)
	return nil
}

// writeDraw stores the per-draw {model, face} payload into the next
// slot of this frame's draw ring and returns the dynamic offset to
// bind it at, wrapping once the ring fills.
func (s *ShadowPointArray) writeDraw(buf *gpupkg.Buffer, model mgl32.Mat4, face uint32) uint32 {
	slots := uint64(len(buf.MappedPtr)) / s.drawStride
	slot := uint64(s.drawCursor) % slots
	offset := slot * s.drawStride
	writeMat4(buf.MappedPtr, offset, model)
	writeUint32At(buf.MappedPtr, offset+64, face)
	s.drawCursor++
	return uint32(offset)
}

func writeUint32At(dst []byte, offset uint64, v uint32) {
	dst[offset] = byte(v)
	dst[offset+1] = byte(v >> 8)
	dst[offset+2] = byte(v >> 16)
	dst[offset+3] = byte(v >> 24)
}

package orchestrator

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/logging"
	"github.com/realge/vkrender-core/scene"
	"github.com/realge/vkrender-core/shadow"
)

// materialPushSize is sizeof(MaterialPush): model mat4, baseColorFactor
// vec4, 4 scalar factors, 5 hasXMap flags, debugLayer/useIbl,
// iblIntensity, and the 4 ray-tracing fields.
const materialPushSize = 64 + 16 + 16 + 20 + 8 + 4 + 16

// MaterialPush is the per-draw constant block every main-pass pipeline
// receives. WebGPU has no push-constant block, so MaterialBinding
// streams these through a per-frame dynamic-offset UBO ring with the
// same per-draw cost profile.
type MaterialPush struct {
	Model           mgl32.Mat4
	BaseColorFactor mgl32.Vec4
	Metallic        float32
	Roughness       float32
	AO              float32
	Emissive        float32

	HasBaseColorMap  bool
	HasNormalMap     bool
	HasMetalRoughMap bool
	HasAOMap         bool
	HasEmissiveMap   bool

	DebugLayer   int32
	UseIbl       bool
	IblIntensity float32

	UseRt            bool
	RtBlendFactor    float32
	UseRtReflections bool
	UseRtShadows     bool
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// packMaterialPush serializes p into dst in the UBO field order the
// main-pass shaders declare.
func packMaterialPush(dst []byte, p MaterialPush) {
	putMat4(dst, 0, p.Model)
	putVec4(dst, 64, p.BaseColorFactor.X(), p.BaseColorFactor.Y(), p.BaseColorFactor.Z(), p.BaseColorFactor.W())
	putVec4(dst, 80, p.Metallic, p.Roughness, p.AO, p.Emissive)

	putUint32(dst, 96, boolToUint32(p.HasBaseColorMap))
	putUint32(dst, 100, boolToUint32(p.HasNormalMap))
	putUint32(dst, 104, boolToUint32(p.HasMetalRoughMap))
	putUint32(dst, 108, boolToUint32(p.HasAOMap))
	putUint32(dst, 112, boolToUint32(p.HasEmissiveMap))

	putUint32(dst, 116, uint32(p.DebugLayer))
	putUint32(dst, 120, boolToUint32(p.UseIbl))
	putFloat32(dst, 124, p.IblIntensity)

	putUint32(dst, 128, boolToUint32(p.UseRt))
	putFloat32(dst, 132, p.RtBlendFactor)
	putUint32(dst, 136, boolToUint32(p.UseRtReflections))
	putUint32(dst, 140, boolToUint32(p.UseRtShadows))
}

// MaterialBinding owns the per-draw material constant ring and the
// material bind groups, resolving any texture map a material omits to
// a 1x1 default at descriptor-write time.
type MaterialBinding struct {
	ctx *gpupkg.GpuContext
	rf  *gpupkg.ResourceFactory
	hub *gpupkg.DescriptorHub
	log logging.Logger

	layout *wgpu.BindGroupLayout

	stride   uint64
	rings    []*gpupkg.Buffer
	cursor   int
	frames   int
	maxDraws int

	whiteView  *gpupkg.View
	normalView *gpupkg.View
	sampler    *gpupkg.Sampler

	// sets caches one bind group per (material, frame ring) pair; the
	// group references the frame's ring buffer plus the material's
	// resolved texture views, so it stays valid until the material's
	// views change.
	sets map[scene.MaterialHandle][]*wgpu.BindGroup

	// defaulted remembers which materials already logged their default
	// substitutions so the log line fires once per material, not per
	// frame.
	defaulted map[scene.MaterialHandle]bool
}

// NewMaterialBinding allocates the per-frame draw rings and creates
// the 1x1 default textures (opaque white, flat +Z normal).
func NewMaterialBinding(ctx *gpupkg.GpuContext, rf *gpupkg.ResourceFactory, hub *gpupkg.DescriptorHub, framesInFlight, maxDraws int, log logging.Logger) (*MaterialBinding, error) {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	if maxDraws < 1 {
		maxDraws = 1
	}
	m := &MaterialBinding{
		ctx: ctx, rf: rf, hub: hub, log: logging.Or(log),
		frames: framesInFlight, maxDraws: maxDraws,
		sets:      make(map[scene.MaterialHandle][]*wgpu.BindGroup),
		defaulted: make(map[scene.MaterialHandle]bool),
	}
	m.stride = shadow.AlignedStride(materialPushSize, ctx.MinUniformBufferOffsetAlignment())

	m.rings = make([]*gpupkg.Buffer, framesInFlight)
	for f := 0; f < framesInFlight; f++ {
		buf, err := rf.CreateBuffer(m.stride*uint64(maxDraws), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create material draw ring frame=%d: %w", f, gpuerr.ErrResourceCreationFailed)
		}
		m.rings[f] = buf
	}

	if err := m.createDefaults(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MaterialBinding) createDefaults() error {
	white, err := m.createPixelTexture([4]byte{255, 255, 255, 255}, "material-default-white")
	if err != nil {
		return err
	}
	normal, err := m.createPixelTexture([4]byte{128, 128, 255, 255}, "material-default-normal")
	if err != nil {
		return err
	}
	m.whiteView, m.normalView = white, normal

	sampler, err := m.rf.CreateSampler(gpupkg.SamplerOptions{
		MagFilter: wgpu.FilterModeLinear, MinFilter: wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
		AddressMode:  wgpu.AddressModeRepeat,
		MaxAnisotropy: 4,
		LodMax:        32,
	})
	if err != nil {
		return fmt.Errorf("create material sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	m.sampler = sampler
	return nil
}

func (m *MaterialBinding) createPixelTexture(rgba [4]byte, label string) (*gpupkg.View, error) {
	img, err := m.rf.CreateImage2D(1, 1, 1, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, gpuerr.ErrResourceCreationFailed)
	}
	if err := m.rf.UploadImage(img, []gpupkg.UploadRegion{{
		Data: rgba[:], MipLevel: 0, ArrayLayer: 0, Width: 1, Height: 1, BytesPerRow: 4,
	}}, false); err != nil {
		return nil, err
	}
	m.rf.TransitionLayout(img, gpupkg.LayoutShaderReadOnly)
	return m.rf.CreateImageView(img, gpupkg.ViewKind2D, 0, 1, 0, 1)
}

// Initialize builds the material bind-group layout: binding 0 is the
// per-draw dynamic-offset constant block, bindings 1-5 are the five
// texture maps.
func (m *MaterialBinding) Initialize() error {
	slots := []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBufferDynamic, Stages: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment},
	}
	for b := uint32(1); b <= 5; b++ {
		slots = append(slots, gpupkg.BindingSlot{Binding: b, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment})
	}
	layout, err := m.hub.CreateLayout("material", slots)
	if err != nil {
		return err
	}
	m.layout = layout
	return nil
}

// Layout returns the material bind-group layout (set 1 in every main
// pipeline).
func (m *MaterialBinding) Layout() *wgpu.BindGroupLayout { return m.layout }

// Stride returns the aligned per-draw constant stride.
func (m *MaterialBinding) Stride() uint64 { return m.stride }

// BeginFrame resets the draw cursor for the new frame's ring. The
// caller has already awaited this frame's slot, so overwriting the
// ring is safe.
func (m *MaterialBinding) BeginFrame() { m.cursor = 0 }

// EndFrame pushes frame's accumulated draw constants to the GPU, once,
// after the last BindDraw of the frame.
func (m *MaterialBinding) EndFrame(frame int) {
	m.rf.FlushBuffer(m.rings[frame%m.frames])
}

// resolveViews substitutes defaults for every map mat omits, logging
// which substitutions happened the first time a material needs them.
func (m *MaterialBinding) resolveViews(mat *scene.Material) [5]*wgpu.TextureView {
	views := [5]*wgpu.TextureView{mat.BaseColorMap, mat.NormalMap, mat.MetalRoughMap, mat.AOMap, mat.EmissiveMap}
	names := [5]string{"baseColor", "normal", "metalRough", "ao", "emissive"}
	var missing []string
	for i, v := range views {
		if v != nil {
			continue
		}
		if i == 1 {
			views[i] = m.normalView.TextureView
		} else {
			views[i] = m.whiteView.TextureView
		}
		missing = append(missing, names[i])
	}
	if len(missing) > 0 && !m.defaulted[mat.Handle] {
		m.log.Debugf("material %s: substituted default textures for %v", mat.Handle, missing)
		m.defaulted[mat.Handle] = true
	}
	return views
}

// setFor returns (building if needed) the bind group for mat against
// frame f's ring buffer.
func (m *MaterialBinding) setFor(mat *scene.Material, f int) (*wgpu.BindGroup, error) {
	groups, ok := m.sets[mat.Handle]
	if !ok {
		groups = make([]*wgpu.BindGroup, m.frames)
		m.sets[mat.Handle] = groups
	}
	if groups[f] != nil {
		return groups[f], nil
	}

	views := m.resolveViews(mat)
	entries := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: m.rings[f].Handle, Size: materialPushSize},
	}
	for i, v := range views {
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i + 1), TextureView: v, Sampler: m.sampler.Handle})
	}
	if err := m.hub.Write(&groups[f], m.layout, entries, fmt.Sprintf("material-%s-f%d", mat.Handle, f)); err != nil {
		return nil, err
	}
	return groups[f], nil
}

// defaultMaterial backs instances that carry no material at all.
var defaultMaterial = scene.Material{
	BaseColorFactor: mgl32.Vec4{1, 1, 1, 1},
	Metallic:        0,
	Roughness:       0.8,
	AO:              1,
}

// BindDraw writes push into the next ring slot and binds the
// material's set at group index 1 with the slot's dynamic offset.
// Instances without a material fall back to an all-defaults material.
func (m *MaterialBinding) BindDraw(pass *wgpu.RenderPassEncoder, frame int, mat *scene.Material, push MaterialPush) error {
	if mat == nil {
		mat = &defaultMaterial
	}
	f := frame % m.frames
	ring := m.rings[f]

	slot := uint64(m.cursor % m.maxDraws)
	offset := slot * m.stride
	packMaterialPush(ring.MappedPtr[offset:], push)
	m.cursor++

	set, err := m.setFor(mat, f)
	if err != nil {
		return err
	}
	pass.SetBindGroup(1, set, []uint32{uint32(offset)})
	return nil
}

// PushFor fills a MaterialPush from an instance's material scalars,
// leaving the frame-level fields (debug layer, IBL mode) to the caller.
func PushFor(inst scene.Instance) MaterialPush {
	mat := inst.Material
	if mat == nil {
		mat = &defaultMaterial
	}
	return MaterialPush{
		Model:            inst.Transform,
		BaseColorFactor:  mat.BaseColorFactor,
		Metallic:         mat.Metallic,
		Roughness:        mat.Roughness,
		AO:               mat.AO,
		Emissive:         mat.Emissive,
		HasBaseColorMap:  mat.BaseColorMap != nil,
		HasNormalMap:     mat.NormalMap != nil,
		HasMetalRoughMap: mat.MetalRoughMap != nil,
		HasAOMap:         mat.AOMap != nil,
		HasEmissiveMap:   mat.EmissiveMap != nil,
	}
}

package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/realge/vkrender-core/gpuerr"
)

// BindingKind enumerates the descriptor kinds the rest of the core
// asks DescriptorHub to lay out, matching the Vulkan descriptor types
// named in the data model 1:1.
type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingUniformBufferDynamic
	BindingStorageImage
	BindingCombinedImageSampler
	BindingStorageBuffer
)

// BindingSlot is one entry of a bind-group-layout description. Format
// and Access only matter for BindingStorageImage slots; left zero they
// default to RGBA8Unorm/WriteOnly, which covers every storage-image
// consumer until WaterSim's R32Float height fields needed read-write
// access, so both became explicit fields rather than a hardcoded pair.
//
// For BindingCombinedImageSampler slots, SampleType/SamplerType/
// ViewDim refine the texture half of the binding: depth textures need
// {Depth sample type, comparison sampler}, unfilterable-float formats
// (R32Float height fields) need {UnfilterableFloat, non-filtering
// sampler}, and cube/cube-array views must declare their dimension.
// Zero values keep the common case: filterable 2D float.
type BindingSlot struct {
	Binding uint32
	Kind    BindingKind
	Stages  wgpu.ShaderStage
	Count   uint32
	Format  wgpu.TextureFormat
	Access  wgpu.StorageTextureAccess

	SampleType  wgpu.TextureSampleType
	SamplerType wgpu.SamplerBindingType
	ViewDim     wgpu.TextureViewDimension
}

// PoolSummary sizes DescriptorHub at construction. WebGPU has no
// descriptor-pool object to preallocate, so this is diagnostic
// bookkeeping only -- kept because every call site in the core still
// reasons about "how many sets of each kind will this process ever
// need", and a hub that can't account for its own usage is a hub that
// silently grows without bound.
type PoolSummary struct {
	UniformBuffer        uint32
	UniformBufferDynamic uint32
	StorageImage         uint32
	CombinedImageSampler uint32
	StorageBuffer        uint32
	MaxSets              uint32
}

// DescriptorHub owns the bind-group-layout cache and tracks how many
// sets have been allocated against the summary it was sized with.
// Layouts and allocated groups live for the process; freeing is not
// supported, matching the pool-lifetime-equals-process-lifetime
// policy in the data model.
type DescriptorHub struct {
	device  *wgpu.Device
	summary PoolSummary

	layouts map[string]*wgpu.BindGroupLayout
	allocated uint32
}

// NewDescriptorHub sizes a hub from summary. The device is retained
// only to create layouts and bind groups on demand.
func NewDescriptorHub(device *wgpu.Device, summary PoolSummary) *DescriptorHub {
	return &DescriptorHub{
		device:  device,
		summary: summary,
		layouts: make(map[string]*wgpu.BindGroupLayout),
	}
}

func slotKey(slots []BindingSlot) string {
	key := ""
	for _, s := range slots {
		key += fmt.Sprintf("%d:%d:%d:%d:%d:%d:%d:%d:%d|",
			s.Binding, s.Kind, s.Stages, s.Count, s.Format, s.Access,
			s.SampleType, s.SamplerType, s.ViewDim)
	}
	return key
}

// CreateLayout builds (or returns the cached) bind-group-layout for
// slots. Two calls with structurally identical slots return the exact
// same *wgpu.BindGroupLayout.
func (h *DescriptorHub) CreateLayout(label string, slots []BindingSlot) (*wgpu.BindGroupLayout, error) {
	key := slotKey(slots)
	if l, ok := h.layouts[key]; ok {
		return l, nil
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(slots))
	for _, s := range slots {
		e := wgpu.BindGroupLayoutEntry{Binding: s.Binding, Visibility: s.Stages}
		switch s.Kind {
		case BindingUniformBuffer:
			e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
		case BindingUniformBufferDynamic:
			e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, HasDynamicOffset: true}
		case BindingStorageImage:
			format := s.Format
			if format == 0 {
				format = wgpu.TextureFormatRGBA8Unorm
			}
			access := s.Access
			if access == 0 {
				access = wgpu.StorageTextureAccessWriteOnly
			}
			e.StorageTexture = wgpu.StorageTextureBindingLayout{Access: access, Format: format}
		case BindingCombinedImageSampler:
			// WebGPU has no single combined-image-sampler binding
			// type; this fork's BindGroupLayoutEntry carries both a
			// Texture and a Sampler sub-descriptor on one binding
			// index, which is what lets Write below populate texture
			// view + sampler in a single BindGroupEntry per binding
			// (matching the Vulkan "combined image sampler" call
			// shape the rest of this core's comments use).
			sampleType := s.SampleType
			if sampleType == 0 {
				sampleType = wgpu.TextureSampleTypeFloat
			}
			samplerType := s.SamplerType
			if samplerType == 0 {
				samplerType = wgpu.SamplerBindingTypeFiltering
			}
			viewDim := s.ViewDim
			if viewDim == 0 {
				viewDim = wgpu.TextureViewDimension2D
			}
			e.Texture = wgpu.TextureBindingLayout{SampleType: sampleType, ViewDimension: viewDim}
			e.Sampler = wgpu.SamplerBindingLayout{Type: samplerType}
		case BindingStorageBuffer:
			e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
		}
		entries = append(entries, e)
	}

	layout, err := h.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: label, Entries: entries})
	if err != nil || layout == nil {
		return nil, fmt.Errorf("create bind group layout %s: %w", label, gpuerr.ErrResourceCreationFailed)
	}
	h.layouts[key] = layout
	return layout, nil
}

// Allocate reserves count bind-group slots against layout, one per
// frame-in-flight, and counts them toward Allocated. The returned
// slots are nil; callers build each group via Write before first use.
func (h *DescriptorHub) Allocate(layout *wgpu.BindGroupLayout, count int) []*wgpu.BindGroup {
	sets := make([]*wgpu.BindGroup, count)
	h.allocated += uint32(count)
	_ = layout // groups are built lazily by Write, which needs the entries anyway
	return sets
}

// Write builds a fresh bind group from entries and stores it into
// *set. WebGPU bind groups are immutable once created, so "writing" a
// descriptor set here means constructing a new wgpu.BindGroup and
// swapping the pointer -- callers must not do this while a command
// buffer referencing *set is still in flight; the caller guarantees
// that by awaiting the frame's slot first, not this call.
func (h *DescriptorHub) Write(set **wgpu.BindGroup, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry, label string) error {
	bg, err := h.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: label, Layout: layout, Entries: entries})
	if err != nil || bg == nil {
		return fmt.Errorf("write bind group %s: %w", label, gpuerr.ErrResourceCreationFailed)
	}
	*set = bg
	return nil
}

// Summary returns the pool sizing this hub was constructed with.
func (h *DescriptorHub) Summary() PoolSummary { return h.summary }

// Allocated returns the number of sets handed out via Allocate so far.
func (h *DescriptorHub) Allocated() uint32 { return h.allocated }

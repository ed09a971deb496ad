package gpu

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
)

func TestSlotKeyDeduplicatesStructurally(t *testing.T) {
	a := []BindingSlot{
		{Binding: 0, Kind: BindingUniformBuffer, Stages: wgpu.ShaderStageVertex},
		{Binding: 1, Kind: BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment},
	}
	b := []BindingSlot{
		{Binding: 0, Kind: BindingUniformBuffer, Stages: wgpu.ShaderStageVertex},
		{Binding: 1, Kind: BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment},
	}
	assert.Equal(t, slotKey(a), slotKey(b))
}

func TestSlotKeySeparatesDistinctLayouts(t *testing.T) {
	base := []BindingSlot{{Binding: 0, Kind: BindingUniformBuffer, Stages: wgpu.ShaderStageVertex}}

	dynamic := []BindingSlot{{Binding: 0, Kind: BindingUniformBufferDynamic, Stages: wgpu.ShaderStageVertex}}
	assert.NotEqual(t, slotKey(base), slotKey(dynamic))

	depth := []BindingSlot{{Binding: 0, Kind: BindingUniformBuffer, Stages: wgpu.ShaderStageVertex,
		SampleType: wgpu.TextureSampleTypeDepth}}
	assert.NotEqual(t, slotKey(base), slotKey(depth))

	cube := []BindingSlot{{Binding: 0, Kind: BindingUniformBuffer, Stages: wgpu.ShaderStageVertex,
		ViewDim: wgpu.TextureViewDimensionCube}}
	assert.NotEqual(t, slotKey(base), slotKey(cube))
}

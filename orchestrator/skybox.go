package orchestrator

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
)

// skyboxPass draws the environment cubemap behind everything else.
// The vertex shader synthesizes a fullscreen cube from the vertex
// index, so no vertex buffer is bound; depth compare is LessEqual with
// writes off, and the main pass draws it before the scene, so scene
// geometry drawn after it covers it.
type skyboxPass struct {
	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.RenderPipeline
	sets     []*wgpu.BindGroup
	ready    bool
}

// initSkybox builds the skybox pipeline against the environment cube
// view. Called after IBL initialization; a missing shader blob leaves
// the pass unready and the frame loop skips it.
func (o *FrameOrchestrator) initSkybox(envView *gpupkg.View, envSampler *gpupkg.Sampler) error {
	layout, err := o.hub.CreateLayout("skybox", []gpupkg.BindingSlot{
		{Binding: 0, Kind: gpupkg.BindingUniformBuffer, Stages: wgpu.ShaderStageVertex},
		{Binding: 1, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment, ViewDim: wgpu.TextureViewDimensionCube},
	})
	if err != nil {
		return err
	}
	o.skybox.layout = layout

	o.skybox.sets = make([]*wgpu.BindGroup, o.framesInFlight)
	for f := 0; f < o.framesInFlight; f++ {
		if err := o.hub.Write(&o.skybox.sets[f], layout, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: o.mvpUBOs[f].Handle, Size: mvpUboSize},
			{Binding: 1, TextureView: envView.TextureView, Sampler: envSampler.Handle},
		}, fmt.Sprintf("skybox-set-%d", f)); err != nil {
			return err
		}
	}

	vertMod, err := o.loader.Load(o.shaderRoot, "skybox.vert.spv")
	if err != nil {
		o.log.Warnf("skybox: vertex shader unavailable, pass disabled: %v", err)
		return nil
	}
	fragMod, err := o.loader.Load(o.shaderRoot, "skybox.frag.spv")
	if err != nil {
		o.log.Warnf("skybox: fragment shader unavailable, pass disabled: %v", err)
		return nil
	}

	pipelineLayout, err := o.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "skybox-layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("create skybox pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}
	pipeline, err := o.ctx.Device().CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "skybox",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{Module: vertMod, EntryPoint: "main"},
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
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            o.ctx.DepthFormat(),
			DepthWriteEnabled: false,
			DepthCompare:      wgpu.CompareFunctionLessEqual,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil || pipeline == nil {
		return fmt.Errorf("create skybox pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}

	o.skybox.pipeline = pipeline
	o.skybox.ready = true
	return nil
}

// renderSkybox draws the 36-vertex index-synthesized cube.
func (o *FrameOrchestrator) renderSkybox(pass *wgpu.RenderPassEncoder, frame int) {
	if !o.skybox.ready {
		return
	}
	pass.SetPipeline(o.skybox.pipeline)
	pass.SetBindGroup(0, o.skybox.sets[frame%o.framesInFlight], nil)
	pass.Draw(36, 1, 0, 0)
}

package water

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/realge/vkrender-core/gpuerr"
)

// RecreateGraphicsPipeline (re)builds the transparent graphics
// pipeline. iblLayout is nil until IBL finishes its first
// InitializeIBL; calling this again once it is ready upgrades the
// pipeline layout to two sets. depthFormat/colorFormat come from the
// swapchain host.
func (w *WaterSim) RecreateGraphicsPipeline(iblLayout *wgpu.BindGroupLayout, colorFormat, depthFormat wgpu.TextureFormat) error {
	if w.graphicsModule == nil || w.graphicsFragModule == nil {
		return nil
	}

	layouts := []*wgpu.BindGroupLayout{w.frameLayout}
	if iblLayout != nil {
		layouts = append(layouts, iblLayout)
	}
	pipelineLayout, err := w.ctx.Device().CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "water-graphics-layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return fmt.Errorf("create water graphics pipeline layout: %w", gpuerr.ErrResourceCreationFailed)
	}

	pipeline, err := w.ctx.Device().CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "water-graphics",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     w.graphicsModule,
			EntryPoint: "main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: vertexStride,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
						{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     w.graphicsFragModule,
			EntryPoint: "main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    colorFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
					Blend: &wgpu.BlendState{
						Color: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha},
						Alpha: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha},
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
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil || pipeline == nil {
		return fmt.Errorf("create water graphics pipeline: %w", gpuerr.ErrResourceCreationFailed)
	}

	w.graphicsPipeline = pipeline
	w.iblBound = iblLayout != nil
	w.graphicsReady = true
	return nil
}

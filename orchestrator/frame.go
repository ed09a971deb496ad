package orchestrator

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/scene"
	"github.com/realge/vkrender-core/shadow"
	"github.com/realge/vkrender-core/water"
)

// FrameInput is everything one recorded frame reads from the outside
// world. Instances, lights and camera are borrowed for the duration of
// RenderFrame and never retained.
type FrameInput struct {
	Camera    scene.Camera
	Instances []scene.Instance
	Lights    []scene.Light
	DeltaTime float32

	// WaterParams feeds the water graphics UBO; zero-value colors are
	// usable defaults.
	WaterParams water.FrameParams

	// Overlay and RayTracer are optional external collaborators; nil
	// skips their slots in the recorded sequence.
	Overlay   Overlay
	RayTracer RayTracer
}

// waitFrameSlot blocks until frame f's previously submitted work has
// retired. A blocking device poll drains the whole queue, which
// retires every outstanding slot at once — coarser than a per-slot
// fence but it preserves the guarantee the per-frame resources rely
// on: no CPU write to a slot's UBOs while its command buffer is in
// flight.
func (o *FrameOrchestrator) waitFrameSlot(f int) {
	if !o.submitted[f] {
		return
	}
	o.ctx.Device().Poll(true, nil)
	for i := range o.submitted {
		o.submitted[i] = false
	}
}

// RenderFrame runs one full acquire→record→submit→present cycle. An
// out-of-date or suboptimal acquire recreates the swapchain and
// abandons the frame without presenting; every other error is
// returned to the caller, which treats it as fatal per the error
// design.
func (o *FrameOrchestrator) RenderFrame(in FrameInput) error {
	f := o.frame
	o.waitFrameSlot(f)

	acquired, err := o.swapchain.Acquire()
	if err != nil {
		return err
	}
	if acquired.OutOfDate {
		w, h := o.swapchain.Extent()
		if err := o.Resize(w, h); err != nil {
			return err
		}
		return nil
	}
	defer acquired.Texture.Release()
	defer acquired.View.Release()

	o.stats.Reset()
	o.material.BeginFrame()
	o.shadowPoint.UpdateLights(in.Lights, f)
	o.updateFrameUbos(in, f)

	encoder, err := o.ctx.Device().CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return fmt.Errorf("create frame encoder: %w", gpuerr.ErrResourceCreationFailed)
	}

	if err := o.waterSys.Update(encoder, in.DeltaTime, f); err != nil {
		return err
	}
	o.waterSys.UpdateFrame(in.WaterParams, f)

	if err := o.shadowDir.Render(encoder, in.Instances, f, o); err != nil {
		return err
	}
	if err := o.shadowPoint.Render(encoder, in.Instances, f); err != nil {
		return err
	}

	if in.RayTracer != nil {
		in.RayTracer.Dispatch(encoder)
	}

	if err := o.recordMainPass(encoder, acquired.View, in, f); err != nil {
		return err
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish frame encoder: %w", gpuerr.ErrResourceCreationFailed)
	}
	o.ctx.Queue().Submit(cmdBuf)
	o.submitted[f] = true

	o.swapchain.Present()

	o.frame = (o.frame + 1) % o.framesInFlight
	return nil
}

// updateFrameUbos refreshes frame f's MVP and light uniform buffers
// from the camera and light list, and pushes the directional
// light-space matrix into the sun shadow system.
func (o *FrameOrchestrator) updateFrameUbos(in FrameInput, f int) {
	packMvpUbo(o.mvpUBOs[f].MappedPtr, in.Camera)

	lightSpace := mgl32.Ident4()
	if sun, ok := firstDirectional(in.Lights); ok {
		cfg := o.shadowDir.Config()
		lightSpace = shadow.DirectionalLightSpaceMatrix(
			sun.PositionOrDirection, in.Camera.Position,
			cfg.Near, cfg.Far, cfg.FrustumSize, cfg.MapSize)
		o.shadowDir.UpdateFrame(lightSpace, f)
	}

	info := make([]mgl32.Vec4, 0, shadow.MaxShadowPointLights)
	for i := 0; i < o.shadowPoint.ActiveLightCount(); i++ {
		info = append(info, o.shadowPoint.LightInfo(i))
	}
	packLightUbo(o.lightUBOs[f].MappedPtr, lightSpace, in.Lights, info)

	o.rf.FlushBuffer(o.mvpUBOs[f])
	o.rf.FlushBuffer(o.lightUBOs[f])
}

// recordMainPass records skybox, scene geometry, the water surface and
// the UI overlay into the main color+depth pass.
func (o *FrameOrchestrator) recordMainPass(encoder *wgpu.CommandEncoder, target *wgpu.TextureView, in FrameInput, f int) error {
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "main-pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.05, G: 0.05, B: 0.08, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            o.swapchain.DepthView().TextureView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})

	w, h := o.swapchain.Extent()
	pass.SetViewport(0, 0, float32(w), float32(h), 0, 1)
	pass.SetScissorRect(0, 0, w, h)

	o.renderSkybox(pass, f)

	if err := o.recordScene(pass, in, f); err != nil {
		return err
	}

	if err := o.waterSys.Render(pass, o.iblSys.DescriptorSet(), f); err != nil {
		return err
	}

	if in.Overlay != nil {
		in.Overlay.Render(pass)
	}

	if err := pass.End(); err != nil {
		return fmt.Errorf("end main pass: %w", gpuerr.ErrResourceCreationFailed)
	}
	return nil
}

// recordScene walks the planned draw list, binding a pipeline only
// when the plan says the tracked bound pipeline changed, then the
// per-path bind groups, the per-draw material constants, and finally
// the mesh itself.
func (o *FrameOrchestrator) recordScene(pass *wgpu.RenderPassEncoder, in FrameInput, f int) error {
	plans := planDraws(in.Instances, o.mode, o.pbrPipeline != nil, o.skeletalPipeline != nil)
	iblSet := o.iblSys.DescriptorSet()

	for _, plan := range plans {
		inst := plan.Instance
		var pipeline *wgpu.RenderPipeline
		switch plan.Pipeline {
		case PipelineSkeletal:
			pipeline = o.skeletalPipeline
		case PipelinePBR:
			pipeline = o.pbrPipeline
		default:
			pipeline = o.standardPipeline
		}
		if pipeline == nil {
			continue
		}
		if plan.Rebind {
			pass.SetPipeline(pipeline)
		}

		pass.SetBindGroup(0, o.mvpSets[f], nil)

		push := PushFor(inst)
		push.DebugLayer = o.debugLayer
		push.UseIbl = o.mode == ModePBRIBL && o.iblSys.Ready()
		push.IblIntensity = o.iblIntensity
		if err := o.material.BindDraw(pass, f, inst.Material, push); err != nil {
			return err
		}

		if plan.Pipeline == PipelinePBR || plan.Pipeline == PipelineSkeletal {
			pass.SetBindGroup(2, o.lightSets[f], nil)
			if iblSet != nil {
				pass.SetBindGroup(3, iblSet, nil)
			}
		}
		if plan.Pipeline == PipelineSkeletal {
			state, _ := inst.Mesh.SkeletalState()
			boneSet, err := o.updateBones(state, f)
			if err != nil {
				return err
			}
			pass.SetBindGroup(4, boneSet, nil)
		}

		inst.Mesh.Bind(pass)
		count := inst.Mesh.IndexCount()
		pass.DrawIndexed(count, 1, 0, 0, 0)
		// scene.Mesh exposes no vertex count, so the index count is
		// recorded as the vertex count too; Vertices counts indices.
		o.stats.RecordDraw(count, count)
	}

	o.material.EndFrame(f)
	return nil
}

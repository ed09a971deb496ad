package water

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/realge/vkrender-core/gpuerr"
)

func workgroupCount(dim uint32) uint32 {
	return (dim + workgroupSize - 1) / workgroupSize
}

// Update records the wave and normal compute passes into encoder,
// injects any ripples queued since the last call, and rotates the
// height-field triple so the graphics pass always samples the
// freshest result as H[curr]. A disabled or not-yet-ready simulation
// records nothing.
func (w *WaterSim) Update(encoder *wgpu.CommandEncoder, dt float32, frame int) error {
	if !w.enabled || !w.simReady {
		return nil
	}
	if dt > maxDeltaTime {
		dt = maxDeltaTime
	}
	if dt < 0 {
		dt = 0
	}
	w.simTime += dt

	w.writeRipples()
	writeVec4Floats(w.waveParamsBuf.MappedPtr, 0, dt, w.waveSpeed, w.damping, float32(w.cfg.GridSize))
	w.rf.FlushBuffer(w.rippleBuf)
	w.rf.FlushBuffer(w.waveParamsBuf)

	waveSet, err := w.buildWaveBindGroup()
	if err != nil {
		return err
	}
	wg := workgroupCount(w.cfg.GridSize)
	wavePass := encoder.BeginComputePass(nil)
	wavePass.SetPipeline(w.wavePipeline)
	wavePass.SetBindGroup(0, waveSet, nil)
	wavePass.DispatchWorkgroups(wg, wg, 1)
	wavePass.End()

	texelSize := float32(1) / float32(w.cfg.GridSize)
	writeVec4Floats(w.normalParamsBuf.MappedPtr, 0, float32(w.cfg.GridSize), w.heightScale, texelSize, 0)
	w.rf.FlushBuffer(w.normalParamsBuf)

	normalSet, err := w.buildNormalBindGroup()
	if err != nil {
		return err
	}
	normalPass := encoder.BeginComputePass(nil)
	normalPass.SetPipeline(w.normalPipeline)
	normalPass.SetBindGroup(0, normalSet, nil)
	normalPass.DispatchWorkgroups(wg, wg, 1)
	normalPass.End()

	w.prev, w.curr, w.out = rotateTriple(w.prev, w.curr, w.out)

	return w.refreshFrameSet(frame)
}

// rotateTriple advances the height-field indices: the freshly written
// "out" becomes "curr", the old "curr" becomes "prev", and the old
// "prev" is recycled as the next write target.
func rotateTriple(prev, curr, out int) (newPrev, newCurr, newOut int) {
	return curr, out, prev
}

func (w *WaterSim) buildWaveBindGroup() (*wgpu.BindGroup, error) {
	bg, err := w.ctx.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "water-wave-set",
		Layout: w.waveLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: w.waveParamsBuf.Handle, Size: waveParamsSize},
			{Binding: 1, Buffer: w.rippleBuf.Handle, Size: rippleUboSize},
			{Binding: 2, TextureView: w.heightView[w.prev].TextureView},
			{Binding: 3, TextureView: w.heightView[w.curr].TextureView},
			{Binding: 4, TextureView: w.heightView[w.out].TextureView},
		},
	})
	if err != nil || bg == nil {
		return nil, fmt.Errorf("water wave bind group: %w", gpuerr.ErrResourceCreationFailed)
	}
	return bg, nil
}

func (w *WaterSim) buildNormalBindGroup() (*wgpu.BindGroup, error) {
	bg, err := w.ctx.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "water-normal-set",
		Layout: w.normalLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: w.normalParamsBuf.Handle, Size: normalParamsSize},
			{Binding: 1, TextureView: w.heightView[w.out].TextureView},
			{Binding: 2, TextureView: w.normalView.TextureView},
		},
	})
	if err != nil || bg == nil {
		return nil, fmt.Errorf("water normal bind group: %w", gpuerr.ErrResourceCreationFailed)
	}
	return bg, nil
}

// refreshFrameSet rewrites frame f's graphics bind group so binding 1
// points at the height image that just became H[curr].
func (w *WaterSim) refreshFrameSet(frame int) error {
	f := frame % len(w.frameSets)
	return w.hub.Write(&w.frameSets[f], w.frameLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: w.frameUBOs[f].Handle, Size: waterUboSize},
		{Binding: 1, TextureView: w.heightView[w.curr].TextureView, Sampler: w.heightSampler.Handle},
		{Binding: 2, TextureView: w.normalView.TextureView, Sampler: w.normalSampler.Handle},
	}, fmt.Sprintf("water-frame-set-%d", f))
}

// writeRipples copies pending into the mapped ripple UBO (clamped to
// maxRipples) and clears it.
func (w *WaterSim) writeRipples() {
	n := len(w.pending)
	if n > maxRipples {
		n = maxRipples
	}
	dst := w.rippleBuf.MappedPtr
	for i := 0; i < n; i++ {
		r := w.pending[i]
		off := i * 16
		writeFloat32(dst, off, r.UV.X())
		writeFloat32(dst, off+4, r.UV.Y())
		writeFloat32(dst, off+8, r.Strength)
		writeFloat32(dst, off+12, r.Radius)
	}
	writeUint32(dst, maxRipples*16, uint32(n))
	w.pending = w.pending[:0]
}

func writeVec4Floats(dst []byte, offset int, a, b, c, d float32) {
	writeFloat32(dst, offset, a)
	writeFloat32(dst, offset+4, b)
	writeFloat32(dst, offset+8, c)
	writeFloat32(dst, offset+12, d)
}

// FrameParams is the per-frame payload UpdateFrame packs into the
// water UBO, matching WaterUbo's field order.
type FrameParams struct {
	Model, View, Projection         mgl32.Mat4
	CameraPos                       mgl32.Vec3
	ShallowColor, DeepColor          mgl32.Vec4
	FresnelPower, ReflectionStrength float32
	SpecularPower                    float32
}

// UpdateFrame writes this frame's WaterUbo contents.
func (w *WaterSim) UpdateFrame(p FrameParams, frame int) {
	buf := w.frameUBOs[frame%len(w.frameUBOs)]
	writeMat4At(buf.MappedPtr, 0, p.Model)
	writeMat4At(buf.MappedPtr, 64, p.View)
	writeMat4At(buf.MappedPtr, 128, p.Projection)
	off := uint64(192)
	writeVec4At(buf.MappedPtr, off, p.CameraPos, 0)
	writeVec4At(buf.MappedPtr, off+16, mgl32.Vec3{p.ShallowColor.X(), p.ShallowColor.Y(), p.ShallowColor.Z()}, p.ShallowColor.W())
	writeVec4At(buf.MappedPtr, off+32, mgl32.Vec3{p.DeepColor.X(), p.DeepColor.Y(), p.DeepColor.Z()}, p.DeepColor.W())
	tail := off + 48
	writeVec4Floats(buf.MappedPtr, int(tail), w.simTime, w.heightScale, float32(w.cfg.GridSize), p.FresnelPower)
	writeVec4Floats(buf.MappedPtr, int(tail+16), p.ReflectionStrength, p.SpecularPower, 0, 0)
	w.rf.FlushBuffer(buf)
}

func writeMat4At(dst []byte, offset uint64, m mgl32.Mat4) {
	for i, v := range m {
		bits := math.Float32bits(v)
		o := offset + uint64(i*4)
		dst[o] = byte(bits)
		dst[o+1] = byte(bits >> 8)
		dst[o+2] = byte(bits >> 16)
		dst[o+3] = byte(bits >> 24)
	}
}

func writeVec4At(dst []byte, offset uint64, xyz mgl32.Vec3, w float32) {
	vals := [4]float32{xyz.X(), xyz.Y(), xyz.Z(), w}
	for i, v := range vals {
		bits := math.Float32bits(v)
		o := offset + uint64(i*4)
		dst[o] = byte(bits)
		dst[o+1] = byte(bits >> 8)
		dst[o+2] = byte(bits >> 16)
		dst[o+3] = byte(bits >> 24)
	}
}

// Render binds the graphics pipeline and draws the grid mesh. iblSet
// is bound at set 1 only if RecreateGraphicsPipeline last built the
// pipeline layout with an IBL set bound; nil is safe to pass
// otherwise. A disabled system or a pipeline not yet built emits no
// commands.
func (w *WaterSim) Render(pass *wgpu.RenderPassEncoder, iblSet *wgpu.BindGroup, frame int) error {
	if !w.enabled || !w.graphicsReady {
		return nil
	}
	set := w.frameSets[frame%len(w.frameSets)]
	pass.SetPipeline(w.graphicsPipeline)
	pass.SetBindGroup(0, set, nil)
	if w.iblBound && iblSet != nil {
		pass.SetBindGroup(1, iblSet, nil)
	}
	pass.SetVertexBuffer(0, w.vertexBuf.Handle, 0, w.vertexBuf.Size)
	pass.SetIndexBuffer(w.indexBuf.Handle, wgpu.IndexFormatUint32, 0, w.indexBuf.Size)
	pass.DrawIndexed(w.indexCount, 1, 0, 0, 0)
	return nil
}

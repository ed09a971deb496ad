package orchestrator

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/scene"
)

// maxBones bounds the per-instance skinning palette.
const maxBones = 256

// boneResources is the per-instance bone storage: one buffer and bind
// group per frame-in-flight, keyed by the instance's numeric id.
type boneResources struct {
	buffers []*gpupkg.Buffer
	sets    []*wgpu.BindGroup
}

// ensureBoneResources creates (once) the per-frame bone buffers and
// bind groups for instance id. Idempotent: both the directional shadow
// pass and the main pass call this for the same instance each frame,
// and only the first call allocates.
func (o *FrameOrchestrator) ensureBoneResources(id uint64) (*boneResources, error) {
	if res, ok := o.bones[id]; ok {
		return res, nil
	}

	res := &boneResources{
		buffers: make([]*gpupkg.Buffer, o.framesInFlight),
		sets:    make([]*wgpu.BindGroup, o.framesInFlight),
	}
	for f := 0; f < o.framesInFlight; f++ {
		buf, err := o.rf.CreateBuffer(maxBones*64, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, true)
		if err != nil {
			return nil, fmt.Errorf("create bone buffer instance=%d frame=%d: %w", id, f, gpuerr.ErrResourceCreationFailed)
		}
		res.buffers[f] = buf
		if err := o.hub.Write(&res.sets[f], o.boneLayout, []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: buf.Handle, Size: maxBones * 64},
		}, fmt.Sprintf("bones-%d-f%d", id, f)); err != nil {
			return nil, err
		}
	}
	o.bones[id] = res
	return res, nil
}

// BoneSet implements shadow.BoneSource: the shadow pass and the main
// pass share one idempotent per-instance cache, so whichever runs
// first this frame both allocates (once) and refreshes the palette.
func (o *FrameOrchestrator) BoneSet(state scene.SkeletalState, frame int) (*wgpu.BindGroup, error) {
	return o.updateBones(state, frame)
}

// updateBones writes the instance's skinning palette into its buffer
// for this frame-in-flight and returns the bind group to attach.
func (o *FrameOrchestrator) updateBones(state scene.SkeletalState, frame int) (*wgpu.BindGroup, error) {
	res, err := o.ensureBoneResources(state.InstanceID)
	if err != nil {
		return nil, err
	}
	f := frame % o.framesInFlight
	buf := res.buffers[f]

	n := len(state.BoneMatrices)
	if n > maxBones {
		n = maxBones
	}
	for i := 0; i < n; i++ {
		putMat4(buf.MappedPtr, i*64, state.BoneMatrices[i])
	}
	o.rf.FlushBuffer(buf)
	return res.sets[f], nil
}

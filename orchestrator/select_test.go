package orchestrator

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/realge/vkrender-core/scene"
)

// fakeMesh satisfies scene.Mesh without a device; Bind is never
// reached by the planner.
type fakeMesh struct {
	indices  uint32
	skeletal bool
}

func (m *fakeMesh) Bind(pass *wgpu.RenderPassEncoder) {}
func (m *fakeMesh) IndexCount() uint32                { return m.indices }
func (m *fakeMesh) SkeletalState() (scene.SkeletalState, bool) {
	if !m.skeletal {
		return scene.SkeletalState{}, false
	}
	return scene.SkeletalState{InstanceID: 1, BoneMatrices: []mgl32.Mat4{mgl32.Ident4()}}, true
}

func instances(n int, skeletal bool) []scene.Instance {
	out := make([]scene.Instance, n)
	for i := range out {
		out[i] = scene.Instance{
			Mesh:      &fakeMesh{indices: 36, skeletal: skeletal},
			Transform: mgl32.Ident4(),
		}
	}
	return out
}

func countRebinds(plans []drawPlan) int {
	n := 0
	for _, p := range plans {
		if p.Rebind {
			n++
		}
	}
	return n
}

func TestPlanMinimizesPipelineBinds(t *testing.T) {
	// 10 PBR meshes, 10 skeletal, 10 PBR: exactly three SetPipeline
	// calls and thirty draws.
	batch := append(append(instances(10, false), instances(10, true)...), instances(10, false)...)

	plans := planDraws(batch, ModePBR, true, true)
	assert.Len(t, plans, 30)
	assert.Equal(t, 3, countRebinds(plans))

	assert.Equal(t, PipelinePBR, plans[0].Pipeline)
	assert.Equal(t, PipelineSkeletal, plans[10].Pipeline)
	assert.Equal(t, PipelinePBR, plans[20].Pipeline)
}

func TestUniformBatchBindsOnce(t *testing.T) {
	plans := planDraws(instances(50, false), ModePBRIBL, true, true)
	assert.Len(t, plans, 50)
	assert.Equal(t, 1, countRebinds(plans))
}

func TestSkeletalFallsBackWhenPipelineUnready(t *testing.T) {
	inst := instances(1, true)[0]
	// Skeletal pipeline missing: PBR path when available, else standard.
	assert.Equal(t, PipelinePBR, selectPipeline(inst, ModePBR, true, false))
	assert.Equal(t, PipelineStandard, selectPipeline(inst, ModePBR, false, false))
	assert.Equal(t, PipelineStandard, selectPipeline(inst, ModeStandard, false, false))
}

func TestStandardModeIgnoresPbrReadiness(t *testing.T) {
	inst := instances(1, false)[0]
	assert.Equal(t, PipelineStandard, selectPipeline(inst, ModeStandard, true, true))
}

func TestNilMeshInstancesAreSkipped(t *testing.T) {
	batch := instances(3, false)
	batch = append(batch, scene.Instance{Mesh: nil})
	batch = append(batch, instances(2, false)...)

	plans := planDraws(batch, ModeStandard, false, false)
	assert.Len(t, plans, 5)
	assert.Equal(t, 1, countRebinds(plans))
}

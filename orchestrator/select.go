package orchestrator

import "github.com/realge/vkrender-core/scene"

// RenderMode selects which forward path non-skeletal scene geometry
// takes through the main pass.
type RenderMode int

const (
	ModeStandard RenderMode = iota
	ModePBR
	ModePBRIBL
)

// PipelineKind identifies which of the main-pass pipelines a draw is
// dispatched through. PipelineNone is the "nothing bound yet" state
// the per-frame tracker starts in.
type PipelineKind int

const (
	PipelineNone PipelineKind = iota
	PipelineStandard
	PipelinePBR
	PipelineSkeletal
)

// selectPipeline applies the per-instance selection rules: skeletal
// instances take the skeletal path when its pipeline built, PBR modes
// take the PBR path when that pipeline built, everything else falls
// back to the standard path.
func selectPipeline(inst scene.Instance, mode RenderMode, pbrReady, skeletalReady bool) PipelineKind {
	if inst.IsSkeletal() && skeletalReady {
		return PipelineSkeletal
	}
	if (mode == ModePBR || mode == ModePBRIBL) && pbrReady {
		return PipelinePBR
	}
	return PipelineStandard
}

// drawPlan is one planned draw: which pipeline it needs and whether
// reaching it requires a SetPipeline call given the previous draw.
type drawPlan struct {
	Instance scene.Instance
	Pipeline PipelineKind
	Rebind   bool
}

// planDraws walks instances in order and marks exactly the draws where
// the tracked bound pipeline changes, so the recorder emits the
// minimum number of SetPipeline calls for the given sequence.
func planDraws(instances []scene.Instance, mode RenderMode, pbrReady, skeletalReady bool) []drawPlan {
	plans := make([]drawPlan, 0, len(instances))
	bound := PipelineNone
	for _, inst := range instances {
		if inst.Mesh == nil {
			continue
		}
		want := selectPipeline(inst, mode, pbrReady, skeletalReady)
		plans = append(plans, drawPlan{Instance: inst, Pipeline: want, Rebind: want != bound})
		bound = want
	}
	return plans
}

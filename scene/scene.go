// Package scene defines the external-interface contracts the render
// core consumes each frame: scene instances, camera, lights, meshes
// and materials. None of these types own GPU resources themselves --
// they are the borrowed, read-only view the FrameOrchestrator walks
// while recording a frame.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/cogentcore/webgpu/wgpu"
)

// MeshHandle stably identifies a mesh across frames.
type MeshHandle uuid.UUID

// NewMeshHandle mints a fresh random mesh identity.
func NewMeshHandle() MeshHandle { return MeshHandle(uuid.New()) }

func (h MeshHandle) String() string { return uuid.UUID(h).String() }

// MaterialHandle stably identifies a material across frames.
type MaterialHandle uuid.UUID

// NewMaterialHandle mints a fresh random material identity.
func NewMaterialHandle() MaterialHandle { return MaterialHandle(uuid.New()) }

func (h MaterialHandle) String() string { return uuid.UUID(h).String() }

// Mesh is a drawable external collaborator: it knows how to bind its
// own vertex/index buffers and how many indices a full draw consumes.
type Mesh interface {
	// Bind records SetVertexBuffer/SetIndexBuffer calls into pass.
	Bind(pass *wgpu.RenderPassEncoder)
	IndexCount() uint32
	// Skeletal meshes additionally expose bone state; ordinary meshes
	// return ok=false and the orchestrator takes the static path.
	SkeletalState() (state SkeletalState, ok bool)
}

// SkeletalState is the per-instance bone data a skeletal mesh needs
// bound at set 4 (main pass) or set 1 (directional shadow pass).
type SkeletalState struct {
	// InstanceID keys the per-instance bone-buffer/bind-group cache
	// (FrameOrchestrator.ensureBoneResources is idempotent on this).
	InstanceID uint64
	// BoneMatrices is the flattened skinning palette for this frame.
	BoneMatrices []mgl32.Mat4
}

// Material carries the texture views MaterialBinding binds at the
// material set, plus the scalar fields it packs into MaterialPush.
// Any *Map field left nil is resolved to a 1x1 default texture at
// descriptor-write time, not here.
type Material struct {
	Handle          MaterialHandle
	BaseColorFactor mgl32.Vec4
	Metallic        float32
	Roughness       float32
	AO              float32
	Emissive        float32

	BaseColorMap *wgpu.TextureView
	NormalMap    *wgpu.TextureView
	MetalRoughMap *wgpu.TextureView
	AOMap        *wgpu.TextureView
	EmissiveMap  *wgpu.TextureView
}

// LightKind distinguishes directional (sun) lights from point lights.
type LightKind int

const (
	LightDirectional LightKind = iota
	LightPoint
)

// Light is one entry of the per-frame light list. For directional
// lights, PositionOrDirection is a normalized direction; for point
// lights it is a world-space position. Radius <= 0 means "use the
// shadow system's default far plane".
type Light struct {
	Kind                 LightKind
	PositionOrDirection  mgl32.Vec3
	Color                mgl32.Vec3
	Intensity            float32
	Radius               float32
	Falloff              float32
}

// Camera supplies the view/projection the orchestrator needs to
// update per-frame UBOs and to seed the directional shadow matrix.
type Camera struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
	Near       float32
	Far        float32
}

// Instance is one entry of the ordered sequence the caller supplies
// each frame: a mesh placed by Transform, with an optional material
// override (nil falls back to the orchestrator's built-in default
// material).
type Instance struct {
	MeshHandle MeshHandle
	Mesh       Mesh
	Transform  mgl32.Mat4
	Material   *Material
}

// IsSkeletal reports whether this instance's mesh carries bone state.
func (i Instance) IsSkeletal() bool {
	if i.Mesh == nil {
		return false
	}
	_, ok := i.Mesh.SkeletalState()
	return ok
}

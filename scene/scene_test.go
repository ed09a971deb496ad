package scene

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

type plainMesh struct{}

func (plainMesh) Bind(pass *wgpu.RenderPassEncoder)       {}
func (plainMesh) IndexCount() uint32                      { return 6 }
func (plainMesh) SkeletalState() (SkeletalState, bool)    { return SkeletalState{}, false }

type boneMesh struct{}

func (boneMesh) Bind(pass *wgpu.RenderPassEncoder) {}
func (boneMesh) IndexCount() uint32                { return 6 }
func (boneMesh) SkeletalState() (SkeletalState, bool) {
	return SkeletalState{InstanceID: 7, BoneMatrices: []mgl32.Mat4{mgl32.Ident4()}}, true
}

func TestInstanceIsSkeletal(t *testing.T) {
	assert.False(t, Instance{Mesh: plainMesh{}}.IsSkeletal())
	assert.True(t, Instance{Mesh: boneMesh{}}.IsSkeletal())
	assert.False(t, Instance{}.IsSkeletal())
}

func TestHandlesAreDistinct(t *testing.T) {
	a, b := NewMeshHandle(), NewMeshHandle()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a.String())

	m, n := NewMaterialHandle(), NewMaterialHandle()
	assert.NotEqual(t, m, n)
}

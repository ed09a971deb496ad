package orchestrator

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/realge/vkrender-core/scene"
	"github.com/realge/vkrender-core/shadow"
)

func f32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

func u32At(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

func TestPackMvpUbo(t *testing.T) {
	buf := make([]byte, mvpUboSize)
	cam := scene.Camera{
		View:       mgl32.Translate3D(1, 2, 3),
		Projection: mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100),
		Position:   mgl32.Vec3{4, 5, 6},
	}
	packMvpUbo(buf, cam)

	// mgl32 matrices are column-major; element 0 is m[0][0].
	assert.Equal(t, cam.View[0], f32At(buf, 0))
	assert.Equal(t, cam.Projection[0], f32At(buf, 64))
	assert.Equal(t, float32(4), f32At(buf, 128))
	assert.Equal(t, float32(6), f32At(buf, 136))
}

func TestPackLightUboCountsAndEntries(t *testing.T) {
	buf := make([]byte, lightUboSize)
	lights := []scene.Light{
		{Kind: scene.LightDirectional, PositionOrDirection: mgl32.Vec3{0, -1, 0}, Color: mgl32.Vec3{1, 1, 1}, Intensity: 3},
		{Kind: scene.LightPoint, PositionOrDirection: mgl32.Vec3{5, 2, 0}, Color: mgl32.Vec3{1, 0, 0}, Intensity: 7, Radius: 20, Falloff: 1.5},
	}
	info := []mgl32.Vec4{{5, 2, 0, 20}}
	packLightUbo(buf, mgl32.Ident4(), lights, info)

	assert.Equal(t, uint32(2), u32At(buf, 64))
	assert.Equal(t, uint32(1), u32At(buf, 68))

	// first entry: direction with kind in w
	assert.Equal(t, float32(-1), f32At(buf, 80+4))
	assert.Equal(t, float32(scene.LightDirectional), f32At(buf, 80+12))
	// second entry: radius/falloff in the params vec4
	second := 80 + lightEntrySize
	assert.Equal(t, float32(20), f32At(buf, second+32))
	assert.Equal(t, float32(1.5), f32At(buf, second+36))

	// shadow info slot carries {pos, far}
	infoBase := 80 + maxLights*lightEntrySize
	assert.Equal(t, float32(20), f32At(buf, infoBase+12))
}

func TestPackLightUboClampsToMaxLights(t *testing.T) {
	buf := make([]byte, lightUboSize)
	lights := make([]scene.Light, maxLights+5)
	packLightUbo(buf, mgl32.Ident4(), lights, nil)
	assert.Equal(t, uint32(maxLights), u32At(buf, 64))
}

func TestFirstDirectional(t *testing.T) {
	lights := []scene.Light{
		{Kind: scene.LightPoint},
		{Kind: scene.LightDirectional, Intensity: 2},
		{Kind: scene.LightDirectional, Intensity: 9},
	}
	sun, ok := firstDirectional(lights)
	assert.True(t, ok)
	assert.Equal(t, float32(2), sun.Intensity)

	_, ok = firstDirectional([]scene.Light{{Kind: scene.LightPoint}})
	assert.False(t, ok)
}

func TestPackMaterialPushLayout(t *testing.T) {
	buf := make([]byte, materialPushSize)
	push := MaterialPush{
		Model:           mgl32.Translate3D(7, 0, 0),
		BaseColorFactor: mgl32.Vec4{0.5, 0.25, 0.125, 1},
		Metallic:        0.9,
		Roughness:       0.3,
		AO:              1,
		Emissive:        0.2,
		HasBaseColorMap: true,
		HasNormalMap:    false,
		HasEmissiveMap:  true,
		DebugLayer:      4,
		UseIbl:          true,
		IblIntensity:    1.5,
		RtBlendFactor:   0.75,
	}
	packMaterialPush(buf, push)

	assert.Equal(t, push.Model[0], f32At(buf, 0))
	assert.Equal(t, float32(0.5), f32At(buf, 64))
	assert.Equal(t, float32(0.9), f32At(buf, 80))
	assert.Equal(t, uint32(1), u32At(buf, 96))   // hasBaseColorMap
	assert.Equal(t, uint32(0), u32At(buf, 100))  // hasNormalMap
	assert.Equal(t, uint32(1), u32At(buf, 112))  // hasEmissiveMap
	assert.Equal(t, uint32(4), u32At(buf, 116))  // debugLayer
	assert.Equal(t, uint32(1), u32At(buf, 120))  // useIbl
	assert.Equal(t, float32(1.5), f32At(buf, 124))
	assert.Equal(t, float32(0.75), f32At(buf, 132))
}

func TestMaterialPushSizeIsVec4Aligned(t *testing.T) {
	assert.Zero(t, materialPushSize%16)
}

func TestMaterialStrideRespectsUboAlignment(t *testing.T) {
	stride := shadow.AlignedStride(materialPushSize, 256)
	assert.Zero(t, stride%256)
	assert.GreaterOrEqual(t, stride, uint64(materialPushSize))
}

func TestPushForResolvesMissingMaterial(t *testing.T) {
	inst := scene.Instance{Mesh: &fakeMesh{indices: 3}, Transform: mgl32.Ident4()}
	push := PushFor(inst)
	assert.Equal(t, defaultMaterial.BaseColorFactor, push.BaseColorFactor)
	assert.False(t, push.HasBaseColorMap)
	assert.False(t, push.HasNormalMap)
}

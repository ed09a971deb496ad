package orchestrator

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/realge/vkrender-core/scene"
	"github.com/realge/vkrender-core/shadow"
)

// maxLights bounds the per-frame light UBO. Lights past this count are
// dropped from shading (the shadow systems apply their own tighter
// bounds separately).
const maxLights = 16

const (
	// mvpUboSize is {view mat4, projection mat4, cameraPos vec4}.
	mvpUboSize = 2*64 + 16

	// lightUboSize is {lightSpaceMatrix mat4; counts vec4; maxLights
	// entries of 3 vec4 each; MaxShadowPointLights shadow-info vec4}.
	lightEntrySize = 3 * 16
	lightUboSize   = 64 + 16 + maxLights*lightEntrySize + shadow.MaxShadowPointLights*16
)

func putFloat32(dst []byte, off int, v float32) {
	bits := math.Float32bits(v)
	dst[off] = byte(bits)
	dst[off+1] = byte(bits >> 8)
	dst[off+2] = byte(bits >> 16)
	dst[off+3] = byte(bits >> 24)
}

func putUint32(dst []byte, off int, v uint32) {
	dst[off] = byte(v)
	dst[off+1] = byte(v >> 8)
	dst[off+2] = byte(v >> 16)
	dst[off+3] = byte(v >> 24)
}

func putMat4(dst []byte, off int, m mgl32.Mat4) {
	for i, v := range m {
		putFloat32(dst, off+i*4, v)
	}
}

func putVec4(dst []byte, off int, x, y, z, w float32) {
	putFloat32(dst, off, x)
	putFloat32(dst, off+4, y)
	putFloat32(dst, off+8, z)
	putFloat32(dst, off+12, w)
}

// packMvpUbo writes {view, projection, cameraPos} into dst.
func packMvpUbo(dst []byte, cam scene.Camera) {
	putMat4(dst, 0, cam.View)
	putMat4(dst, 64, cam.Projection)
	putVec4(dst, 128, cam.Position.X(), cam.Position.Y(), cam.Position.Z(), 1)
}

// packLightUbo writes the directional light-space matrix, the light
// list (clamped to maxLights) and the active point-shadow info slots
// into dst. Entry layout per light: {posOrDir, kind}, {color,
// intensity}, {radius, falloff, 0, 0}.
func packLightUbo(dst []byte, lightSpace mgl32.Mat4, lights []scene.Light, shadowInfo []mgl32.Vec4) {
	putMat4(dst, 0, lightSpace)

	n := len(lights)
	if n > maxLights {
		n = maxLights
	}
	putUint32(dst, 64, uint32(n))
	putUint32(dst, 68, uint32(len(shadowInfo)))
	putUint32(dst, 72, 0)
	putUint32(dst, 76, 0)

	base := 80
	for i := 0; i < n; i++ {
		l := lights[i]
		off := base + i*lightEntrySize
		putVec4(dst, off, l.PositionOrDirection.X(), l.PositionOrDirection.Y(), l.PositionOrDirection.Z(), float32(l.Kind))
		putVec4(dst, off+16, l.Color.X(), l.Color.Y(), l.Color.Z(), l.Intensity)
		putVec4(dst, off+32, l.Radius, l.Falloff, 0, 0)
	}

	infoBase := base + maxLights*lightEntrySize
	for i := 0; i < len(shadowInfo) && i < shadow.MaxShadowPointLights; i++ {
		v := shadowInfo[i]
		putVec4(dst, infoBase+i*16, v.X(), v.Y(), v.Z(), v.W())
	}
}

// firstDirectional returns the first directional light in lights, the
// one the sun shadow system keys its light-space matrix on.
func firstDirectional(lights []scene.Light) (scene.Light, bool) {
	for _, l := range lights {
		if l.Kind == scene.LightDirectional {
			return l, true
		}
	}
	return scene.Light{}, false
}

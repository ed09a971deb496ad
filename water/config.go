// Package water implements the triple-buffered height-field wave
// solver, its derived normal map, and the transparent graphics pass
// that renders the surface lit by the shared IBL set.
package water

// Config tunes WaterSim at construction. WaveSpeed/Damping/HeightScale
// are also the values UpdateParams validates against the stability
// invariants before a call takes effect.
type Config struct {
	GridSize       uint32
	MeshResolution uint32
	WaveSpeed      float32
	Damping        float32
	HeightScale    float32
	FramesInFlight int
}

// DefaultConfig returns the 256-texel height field over a 64-vertex-
// per-side mesh.
func DefaultConfig() Config {
	return Config{
		GridSize:       256,
		MeshResolution: 64,
		WaveSpeed:      0.35,
		Damping:        0.985,
		HeightScale:    1.0,
		FramesInFlight: 2,
	}
}

// validStability reports whether speed/damping/heightScale satisfy
// the caller-facing stability invariants in the design note: 0 <
// waveSpeed < 0.5, 0.9 <= damping <= 1.0, heightScale > 0.
func validStability(waveSpeed, damping, heightScale float32) bool {
	if !(waveSpeed > 0 && waveSpeed < 0.5) {
		return false
	}
	if !(damping >= 0.9 && damping <= 1.0) {
		return false
	}
	return heightScale > 0
}

// Package stats implements the render core's per-frame draw counters.
package stats

// RenderStats accumulates draw-call, triangle and vertex counts across
// one recorded frame. It carries no synchronization -- the orchestrator
// is single-threaded command recording, so a plain struct is enough.
type RenderStats struct {
	DrawCalls uint32
	Triangles uint64
	Vertices  uint64
}

// Reset zeroes every counter, called once per frame before recording
// begins.
func (s *RenderStats) Reset() {
	s.DrawCalls = 0
	s.Triangles = 0
	s.Vertices = 0
}

// RecordDraw accounts for one indexed draw call of indexCount indices
// and vertexCount distinct vertices (triangles assumes a triangle-list
// topology).
func (s *RenderStats) RecordDraw(indexCount, vertexCount uint32) {
	s.DrawCalls++
	s.Triangles += uint64(indexCount / 3)
	s.Vertices += uint64(vertexCount)
}

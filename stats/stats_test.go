package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordDrawAccumulates(t *testing.T) {
	var s RenderStats
	s.RecordDraw(36, 24) // a cube: 12 triangles, 24 vertices
	s.RecordDraw(6, 4)
	assert.Equal(t, uint32(2), s.DrawCalls)
	assert.Equal(t, uint64(14), s.Triangles)
	assert.Equal(t, uint64(28), s.Vertices)
}

func TestResetZeroes(t *testing.T) {
	s := RenderStats{DrawCalls: 5, Triangles: 100, Vertices: 300}
	s.Reset()
	assert.Equal(t, RenderStats{}, s)
}

func TestRecordDrawTruncatesPartialTriangle(t *testing.T) {
	var s RenderStats
	s.RecordDraw(5, 3) // not a multiple of 3 -- shouldn't happen, but must not panic
	assert.Equal(t, uint64(1), s.Triangles)
}

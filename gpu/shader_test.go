package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/realge/vkrender-core/gpuerr"
)

func TestLoadBytesRejectsUnalignedBlob(t *testing.T) {
	l := NewShaderLoader(nil)
	_, err := l.LoadBytes("bad", []byte{1, 2, 3})
	assert.True(t, errors.Is(err, gpuerr.ErrShaderBlobInvalid))
}

func TestLoadMissingFileIsInvalidBlob(t *testing.T) {
	l := NewShaderLoader(nil)
	_, err := l.Load(t.TempDir(), "nope.vert.spv")
	assert.True(t, errors.Is(err, gpuerr.ErrShaderBlobInvalid))
}

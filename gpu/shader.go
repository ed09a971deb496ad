package gpu

import (
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/realge/vkrender-core/gpuerr"
)

// ShaderLoader reads precompiled shader bytecode blobs from disk and
// turns them into wgpu shader modules via the SPIR-V-passthrough
// path. Shader bytecode is an external input to this core: the only
// requirement the loader imposes on a blob is that its length be a
// multiple of 4.
type ShaderLoader struct {
	device *wgpu.Device
}

// NewShaderLoader binds a loader to a device.
func NewShaderLoader(device *wgpu.Device) *ShaderLoader {
	return &ShaderLoader{device: device}
}

// Load reads shaders/<name> relative to root, validates the blob
// length is a multiple of 4 (the only requirement the wire format
// imposes), and creates a shader module from it.
func (l *ShaderLoader) Load(root, name string) (*wgpu.ShaderModule, error) {
	path := root + "/" + name
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader blob %s: %w", path, gpuerr.ErrShaderBlobInvalid)
	}
	return l.LoadBytes(name, blob)
}

// LoadBytes validates and compiles an in-memory shader bytecode blob.
func (l *ShaderLoader) LoadBytes(label string, blob []byte) (*wgpu.ShaderModule, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("shader blob %s length %d not a multiple of 4: %w", label, len(blob), gpuerr.ErrShaderBlobInvalid)
	}
	mod, err := l.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:           label,
		SPIRVDescriptor: &wgpu.ShaderModuleSPIRVDescriptor{Code: blob},
	})
	if err != nil || mod == nil {
		return nil, fmt.Errorf("create shader module %s: %w", label, gpuerr.ErrShaderBlobInvalid)
	}
	return mod, nil
}

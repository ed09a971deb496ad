package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/realge/vkrender-core/gpuerr"
	"github.com/realge/vkrender-core/logging"
)

// GpuContext owns the device and queue for the lifetime of the
// process. Every other component in this core borrows a *GpuContext
// rather than talking to wgpu.Instance/Adapter directly, which is how
// the cyclic renderer<->subsystem back-pointers in the original
// engine are avoided: subsystems hold a GpuContext value plus a
// read-only capability view of their siblings, never a pointer back
// into an orchestrator.
type GpuContext struct {
	log      logging.Logger
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	depthFormat wgpu.TextureFormat
	minUboAlign uint64
}

// Options selects the surface a GpuContext must be able to present to
// and optional feature requests. Surface may be nil for headless/test
// construction.
type Options struct {
	Surface          *wgpu.Surface
	RequireRayTracing bool
	Logger           logging.Logger
}

// NewGpuContext requests a single high-performance adapter compatible
// with opts.Surface (when given), then creates the logical device and
// queue. It does not enumerate adapters and does not query the adapter
// for anisotropic filtering or depth-format support.
//
// All failures here are fatal at boot: ErrDeviceInitFailed.
func NewGpuContext(instance *wgpu.Instance, opts Options) (*GpuContext, error) {
	log := logging.Or(opts.Logger)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: opts.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		log.Errorf("no compatible adapter: %v", err)
		return nil, fmt.Errorf("request adapter: %w", gpuerr.ErrDeviceInitFailed)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "vkrender-core device",
	})
	if err != nil || device == nil {
		log.Errorf("device request failed: %v", err)
		return nil, fmt.Errorf("request device: %w", gpuerr.ErrDeviceInitFailed)
	}
	if opts.RequireRayTracing {
		// Ray tracing rides on ordinary compute in WebGPU; the external
		// ray tracer validates its own feature needs at Dispatch time.
		log.Infof("ray-tracing-adjacent features requested; compute-based path assumed")
	}

	ctx := &GpuContext{
		log:      log,
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),

		// WebGPU's minimum uniform-buffer dynamic-offset alignment is
		// a device limit; 256 is the conservative value every
		// implementation in practice reports, and is computed once
		// here rather than per-frame per the dynamic-UBO design note.
		minUboAlign: 256,
	}
	ctx.depthFormat = ctx.FindDepthFormat()
	return ctx, nil
}

// Device returns the owned logical device.
func (c *GpuContext) Device() *wgpu.Device { return c.device }

// Adapter returns the selected physical adapter, needed by surface
// configuration.
func (c *GpuContext) Adapter() *wgpu.Adapter { return c.adapter }

// Queue returns the owned graphics+present queue.
func (c *GpuContext) Queue() *wgpu.Queue { return c.queue }

// Logger returns the context's logger (never nil).
func (c *GpuContext) Logger() logging.Logger { return c.log }

// MinUniformBufferOffsetAlignment is the stride granularity every
// dynamic-UBO consumer (ShadowPointArray, MaterialBinding) must align
// its per-element stride to.
func (c *GpuContext) MinUniformBufferOffsetAlignment() uint64 { return c.minUboAlign }

// FindDepthFormat returns Depth32Float. WebGPU does not expose a
// device format-support query as granular as Vulkan's, and
// Depth32Float is a core format every WebGPU implementation supports,
// so no other depth format is tried.
func (c *GpuContext) FindDepthFormat() wgpu.TextureFormat {
	return wgpu.TextureFormatDepth32Float
}

// DepthFormat returns the format selected at construction time.
func (c *GpuContext) DepthFormat() wgpu.TextureFormat { return c.depthFormat }

// WithSingleTimeCommands creates a command encoder, invokes fn to
// record into it, finishes, submits to the queue and polls the
// device until the submission completes. Used for staging uploads and
// one-shot layout transitions outside the per-frame record loop.
//
// A failure inside fn propagates as ErrUploadFailed; the caller is
// responsible for leaving the destination resource in a safe
// (Undefined-layout) state.
func (c *GpuContext) WithSingleTimeCommands(fn func(encoder *wgpu.CommandEncoder) error) error {
	encoder, err := c.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "single-time-commands"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", gpuerr.ErrUploadFailed)
	}

	if err := fn(encoder); err != nil {
		return fmt.Errorf("record single-time commands: %w", gpuerr.ErrUploadFailed)
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish single-time commands: %w", gpuerr.ErrUploadFailed)
	}

	c.queue.Submit(cmdBuf)
	c.device.Poll(true, nil)
	return nil
}

// Package gpuerr defines the sentinel error taxonomy shared by every
// subsystem in the render core. Call sites wrap one of these with
// fmt.Errorf("...: %w", err) so callers can recover the category with
// errors.Is regardless of how much context was added along the way.
package gpuerr

import "errors"

var (
	// ErrDeviceInitFailed means no suitable adapter, queue or required
	// feature was available. Always fatal at boot.
	ErrDeviceInitFailed = errors.New("gpu: device initialization failed")

	// ErrResourceCreationFailed covers image/buffer/view/sampler/pipeline
	// creation failures. Fatal for the owning subsystem's Initialize;
	// the subsystem must report Ready() == false afterwards.
	ErrResourceCreationFailed = errors.New("gpu: resource creation failed")

	// ErrUploadFailed means a staging upload or single-time submit
	// failed. Fatal for the texture being uploaded.
	ErrUploadFailed = errors.New("gpu: upload failed")

	// ErrCacheInvalid means a disk cache header or payload did not
	// match expectations. Recoverable: caller regenerates and
	// overwrites the file.
	ErrCacheInvalid = errors.New("gpu: cache invalid")

	// ErrHdrLoadFailed means the source .hdr file was missing or
	// unreadable. Recoverable: caller substitutes a procedural cubemap.
	ErrHdrLoadFailed = errors.New("gpu: hdr load failed")

	// ErrSwapchainOutOfDate and ErrSwapchainSuboptimal are expected
	// events signaled by acquire/present. Recoverable: recreate the
	// swapchain and abandon the frame.
	ErrSwapchainOutOfDate  = errors.New("gpu: swapchain out of date")
	ErrSwapchainSuboptimal = errors.New("gpu: swapchain suboptimal")

	// ErrShaderBlobInvalid means a shader bytecode blob's length was
	// not a multiple of 4, or module creation failed. Fatal for the
	// owning pipeline.
	ErrShaderBlobInvalid = errors.New("gpu: shader blob invalid")
)

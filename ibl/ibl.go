package ibl

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/logging"
)

const cacheDir = "cache"

// Precompute owns the four IBL textures -- environment, irradiance,
// prefilter, BRDF LUT -- and the disk cache that lets a second
// InitializeIBL/ReloadIBL call for the same source skip convolution
// entirely.
type Precompute struct {
	ctx *gpupkg.GpuContext
	rf  *gpupkg.ResourceFactory
	hub *gpupkg.DescriptorHub
	log logging.Logger

	cfg Config

	environment *gpupkg.Image
	envView     *gpupkg.View
	irradiance  *gpupkg.Image
	irrView     *gpupkg.View
	prefilter   *gpupkg.Image
	preView     *gpupkg.View
	brdfLutImg  *gpupkg.Image
	brdfView    *gpupkg.View

	sampler *gpupkg.Sampler

	layout *wgpu.BindGroupLayout
	set    *wgpu.BindGroup

	ready   bool
	hdrPath string
}

// NewPrecompute binds a Precompute to its GPU context, factory and
// descriptor hub. No GPU resources are created until InitializeIBL.
func NewPrecompute(ctx *gpupkg.GpuContext, rf *gpupkg.ResourceFactory, hub *gpupkg.DescriptorHub, cfg Config, log logging.Logger) *Precompute {
	return &Precompute{ctx: ctx, rf: rf, hub: hub, cfg: cfg, log: logging.Or(log)}
}

// Ready reports whether all four textures and the descriptor set are
// available. The orchestrator queries this to set the per-draw useIbl
// flag; the set itself is bound at set 3 of the PBR pipelines and at
// set 1 of the water graphics pipeline.
func (p *Precompute) Ready() bool { return p.ready }

// DescriptorSet returns the shared {irradiance, prefilter, brdf_lut}
// bind group, read-only, consumed by PBR/skeletal-PBR/water pipelines.
func (p *Precompute) DescriptorSet() *wgpu.BindGroup { return p.set }

// EnvironmentView returns the mipped environment cube view, sampled
// by the skybox pass.
func (p *Precompute) EnvironmentView() *gpupkg.View { return p.envView }

// Sampler returns the shared trilinear clamp sampler for the IBL
// textures.
func (p *Precompute) Sampler() *gpupkg.Sampler { return p.sampler }

// Layout returns the bind-group layout describing the IBL set. It is
// nil until the first InitializeIBL builds it alongside the set, so
// dependent pipelines (PBR, water graphics) built before then leave the
// IBL set out of their layout and are rebuilt once it exists.
func (p *Precompute) Layout() *wgpu.BindGroupLayout { return p.layout }

// InitializeIBL computes or loads from cache the four IBL textures
// for hdrPath. Calling it twice with the same path is idempotent: the
// second call hits the disk cache for every stage and never invokes
// the CPU importance-sampler.
func (p *Precompute) InitializeIBL(hdrPath string) error {
	p.hdrPath = hdrPath

	env, err := p.loadOrComputeEnvironment(hdrPath)
	if err != nil {
		return err
	}
	hdrKey := hdrPath

	irr, err := p.loadOrComputeIrradiance(hdrKey, env)
	if err != nil {
		return err
	}
	pre, err := p.loadOrComputePrefilter(hdrKey, env)
	if err != nil {
		return err
	}
	lut, err := p.loadOrComputeBRDFLUT()
	if err != nil {
		return err
	}

	if err := p.uploadEnvironment(env); err != nil {
		return err
	}
	if err := p.uploadIrradiance(irr); err != nil {
		return err
	}
	if err := p.uploadPrefilter(pre); err != nil {
		return err
	}
	if err := p.uploadBRDFLUT(lut); err != nil {
		return err
	}
	if err := p.ensureSampler(); err != nil {
		return err
	}
	if err := p.buildDescriptorSet(); err != nil {
		return err
	}

	p.ready = true
	return nil
}

// ReloadIBL clears readiness and drops its references to every owned
// texture, view and the IBL bind group before recomputing for a new
// path. Precompute keeps no CPU-side cubemap between calls.
func (p *Precompute) ReloadIBL(hdrPath string) error {
	p.ready = false
	p.environment, p.envView = nil, nil
	p.irradiance, p.irrView = nil, nil
	p.prefilter, p.preView = nil, nil
	p.brdfLutImg, p.brdfView = nil, nil
	p.set = nil
	return p.InitializeIBL(hdrPath)
}

func (p *Precompute) loadOrComputeEnvironment(hdrPath string) (*CubemapCpuImage, error) {
	key := fmt.Sprintf("%s_%d", hdrPath, p.cfg.EnvSize)
	if hdr, data, err := loadCache(cacheDir, key, "env_cubemap"); err == nil {
		if mips := mipLevelsFor(p.cfg.EnvSize); hdr.MipLevels == mips || hdr.MipLevels == 1 {
			return cubemapFromCacheBytes(hdr, data), nil
		}
		p.log.Warnf("ibl: environment cache mip mismatch for %s, regenerating", hdrPath)
	}

	src, err := loadHDR(hdrPath)
	var base *CubemapCpuImage
	if err != nil {
		p.log.Warnf("ibl: hdr load failed for %s (%v), substituting gradient", hdrPath, err)
		base = proceduralGradientCubemap(p.cfg.EnvSize)
	} else {
		base = equirectToCubemap(src, p.cfg.EnvSize)
	}

	if err := saveCache(cacheDir, key, "env_cubemap", base.Size, base.Size, 1, 6, base.Bytes()); err != nil {
		p.log.Warnf("ibl: failed to write environment cache: %v", err)
	}
	return base, nil
}

func (p *Precompute) loadOrComputeIrradiance(hdrKey string, env *CubemapCpuImage) (*CubemapCpuImage, error) {
	key := fmt.Sprintf("%s_%d", hdrKey, p.cfg.IrradianceSize)
	if hdr, data, err := loadCache(cacheDir, key, fmt.Sprintf("irradiance_%d", p.cfg.IrradianceSize)); err == nil {
		return cubemapFromCacheBytes(hdr, data), nil
	}
	irr := convolveIrradiance(env, p.cfg.IrradianceSize, p.cfg.IrradianceSamples)
	if err := saveCache(cacheDir, key, fmt.Sprintf("irradiance_%d", p.cfg.IrradianceSize), irr.Size, irr.Size, 1, 6, irr.Bytes()); err != nil {
		p.log.Warnf("ibl: failed to write irradiance cache: %v", err)
	}
	return irr, nil
}

func (p *Precompute) loadOrComputePrefilter(hdrKey string, env *CubemapCpuImage) (*CubemapCpuImage, error) {
	key := fmt.Sprintf("%s_%d", hdrKey, p.cfg.PrefilterSize)
	suffix := fmt.Sprintf("prefilter_%d", p.cfg.PrefilterSize)
	if hdr, data, err := loadCache(cacheDir, key, suffix); err == nil && hdr.MipLevels == p.cfg.PrefilterMipLevels {
		return cubemapFromCacheBytes(hdr, data), nil
	}
	pre := prefilterEnvironment(env, p.cfg)
	if err := saveCache(cacheDir, key, suffix, pre.Size, pre.Size, pre.MipLevels, 6, pre.Bytes()); err != nil {
		p.log.Warnf("ibl: failed to write prefilter cache: %v", err)
	}
	return pre, nil
}

func (p *Precompute) loadOrComputeBRDFLUT() ([]byte, error) {
	key := fmt.Sprintf("brdf_lut_%d", p.cfg.BrdfLutSize)
	suffix := fmt.Sprintf("brdf_lut_%d", p.cfg.BrdfLutSize)
	if hdr, data, err := loadCache(cacheDir, key, suffix); err == nil {
		_ = hdr
		return data, nil
	}
	lut := brdfLUT(p.cfg.BrdfLutSize, p.cfg.BrdfSamples)
	if err := saveCache(cacheDir, key, suffix, p.cfg.BrdfLutSize, p.cfg.BrdfLutSize, 1, 1, lut); err != nil {
		p.log.Warnf("ibl: failed to write brdf lut cache: %v", err)
	}
	return lut, nil
}

func cubemapFromCacheBytes(hdr cacheHeader, data []byte) *CubemapCpuImage {
	img := NewCubemapCpuImage(hdr.Width, hdr.MipLevels)
	off := 0
	for m := range img.Pixels {
		n := len(img.Pixels[m])
		for i := 0; i < n; i++ {
			bits := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
			img.Pixels[m][i] = math.Float32frombits(bits)
			off += 4
		}
	}
	return img
}

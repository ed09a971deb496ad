package ibl

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	gpupkg "github.com/realge/vkrender-core/gpu"
	"github.com/realge/vkrender-core/gpuerr"
)

// float32ToHalf converts f to IEEE 754 binary16, rounding to nearest
// with halfway cases rounded away from zero, with overflow clamped to
// infinity.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 0x1f:
		// overflow (or inf/nan): carry the nan payload bit, else inf
		if bits&0x7fffffff > 0x7f800000 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp <= 0:
		// subnormal or underflow to zero
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		if mant>>(shift-1)&1 != 0 {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(mant>>13)
		if mant&0x1000 != 0 {
			half++
		}
		return half
	}
}

// cubemapFaceBytes packs one face of one mip as RGBA16Float bytes, in
// the layout UploadImage's regions expect. Half floats keep the cube
// textures filterable (RGBA32Float is not, without an optional device
// feature) at enough range for environment radiance.
func cubemapFaceBytes(cube *CubemapCpuImage, mip, face uint32) []byte {
	size := cube.MipSize(mip)
	out := make([]byte, int(size)*int(size)*4*2)
	off := 0
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			t := cube.Texel(mip, face, x, y)
			for c := 0; c < 4; c++ {
				h := float32ToHalf(t[c])
				out[off] = byte(h)
				out[off+1] = byte(h >> 8)
				off += 2
			}
		}
	}
	return out
}

func (p *Precompute) uploadCubeTexture(name string, cube *CubemapCpuImage) (*gpupkg.Image, *gpupkg.View, error) {
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	if cube.MipLevels > 1 {
		// the mip chain is regenerated on GPU by rendering into each
		// level, so mipped cubes also need render-attachment usage
		usage |= wgpu.TextureUsageRenderAttachment
	}
	img, err := p.rf.CreateCubeImage(cube.Size, cube.MipLevels, 6, wgpu.TextureFormatRGBA16Float, usage)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s cube image: %w", name, gpuerr.ErrResourceCreationFailed)
	}

	regions := make([]gpupkg.UploadRegion, 0, int(cube.MipLevels)*6)
	for mip := uint32(0); mip < cube.MipLevels; mip++ {
		size := cube.MipSize(mip)
		for face := uint32(0); face < 6; face++ {
			regions = append(regions, gpupkg.UploadRegion{
				Data:        cubemapFaceBytes(cube, mip, face),
				MipLevel:    mip,
				ArrayLayer:  face,
				Width:       size,
				Height:      size,
				BytesPerRow: size * 4 * 2,
			})
		}
	}
	if err := p.rf.UploadImage(img, regions, false); err != nil {
		return nil, nil, fmt.Errorf("upload %s cube image: %w", name, gpuerr.ErrUploadFailed)
	}
	p.rf.TransitionLayout(img, gpupkg.LayoutShaderReadOnly)

	view, err := p.rf.CreateImageView(img, gpupkg.ViewKindCube, 0, img.MipLevels, 0, 6)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s cube view: %w", name, gpuerr.ErrResourceCreationFailed)
	}
	return img, view, nil
}

func (p *Precompute) uploadEnvironment(cube *CubemapCpuImage) error {
	if cube.MipLevels == 1 && p.cfg.EnvSize > 1 {
		full := NewCubemapCpuImage(cube.Size, mipLevelsFor(cube.Size))
		copy(full.Pixels[0], cube.Pixels[0])
		cube = full
	}
	img, view, err := p.uploadCubeTexture("environment", cube)
	if err != nil {
		return err
	}
	if img.MipLevels > 1 {
		if err := p.rf.GenerateMips(img); err != nil {
			return fmt.Errorf("generate environment mips: %w", err)
		}
	}
	p.environment, p.envView = img, view
	return nil
}

func (p *Precompute) uploadIrradiance(cube *CubemapCpuImage) error {
	img, view, err := p.uploadCubeTexture("irradiance", cube)
	if err != nil {
		return err
	}
	p.irradiance, p.irrView = img, view
	return nil
}

func (p *Precompute) uploadPrefilter(cube *CubemapCpuImage) error {
	img, view, err := p.uploadCubeTexture("prefilter", cube)
	if err != nil {
		return err
	}
	p.prefilter, p.preView = img, view
	return nil
}

func (p *Precompute) uploadBRDFLUT(lut []byte) error {
	img, err := p.rf.CreateImage2D(p.cfg.BrdfLutSize, p.cfg.BrdfLutSize, 1, wgpu.TextureFormatRG8Unorm,
		wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst)
	if err != nil {
		return fmt.Errorf("create brdf lut image: %w", gpuerr.ErrResourceCreationFailed)
	}
	region := gpupkg.UploadRegion{
		Data:        lut,
		Width:       p.cfg.BrdfLutSize,
		Height:      p.cfg.BrdfLutSize,
		BytesPerRow: p.cfg.BrdfLutSize * 2,
	}
	if err := p.rf.UploadImage(img, []gpupkg.UploadRegion{region}, false); err != nil {
		return fmt.Errorf("upload brdf lut: %w", gpuerr.ErrUploadFailed)
	}
	p.rf.TransitionLayout(img, gpupkg.LayoutShaderReadOnly)

	view, err := p.rf.CreateImageView(img, gpupkg.ViewKind2D, 0, 1, 0, 1)
	if err != nil {
		return fmt.Errorf("create brdf lut view: %w", gpuerr.ErrResourceCreationFailed)
	}
	p.brdfLutImg, p.brdfView = img, view
	return nil
}

func (p *Precompute) ensureSampler() error {
	if p.sampler != nil {
		return nil
	}
	s, err := p.rf.CreateSampler(gpupkg.SamplerOptions{
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		AddressMode:   wgpu.AddressModeClampToEdge,
		MaxAnisotropy: 1,
		LodMax:        16,
	})
	if err != nil {
		return fmt.Errorf("create ibl sampler: %w", gpuerr.ErrResourceCreationFailed)
	}
	p.sampler = s
	return nil
}

// buildDescriptorSet (re)creates the {irradiance, prefilter, brdf_lut}
// bind group at set bindings 0,1,2, stage Fragment.
func (p *Precompute) buildDescriptorSet() error {
	if p.layout == nil {
		layout, err := p.hub.CreateLayout("ibl", []gpupkg.BindingSlot{
			{Binding: 0, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment, ViewDim: wgpu.TextureViewDimensionCube},
			{Binding: 1, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment, ViewDim: wgpu.TextureViewDimensionCube},
			{Binding: 2, Kind: gpupkg.BindingCombinedImageSampler, Stages: wgpu.ShaderStageFragment},
		})
		if err != nil {
			return err
		}
		p.layout = layout
	}

	entries := []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: p.irrView.TextureView, Sampler: p.sampler.Handle},
		{Binding: 1, TextureView: p.preView.TextureView, Sampler: p.sampler.Handle},
		{Binding: 2, TextureView: p.brdfView.TextureView, Sampler: p.sampler.Handle},
	}
	return p.hub.Write(&p.set, p.layout, entries, "ibl-set")
}

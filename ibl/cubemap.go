package ibl

import (
	"math"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// CubemapCpuImage is packed RGBA-float cube pixel data for all 6
// faces and all mip levels: for each mip, 6 faces contiguous; mips
// packed back-to-back. This is also the disk-cache payload format.
type CubemapCpuImage struct {
	Size      uint32
	MipLevels uint32
	Pixels    [][]float32 // one slice per mip, length size_m*size_m*4*6, face-major
}

// NewCubemapCpuImage allocates a cubemap with mipLevels mips, each
// halving in resolution from size.
func NewCubemapCpuImage(size, mipLevels uint32) *CubemapCpuImage {
	img := &CubemapCpuImage{Size: size, MipLevels: mipLevels, Pixels: make([][]float32, mipLevels)}
	s := size
	for m := uint32(0); m < mipLevels; m++ {
		img.Pixels[m] = make([]float32, int(s)*int(s)*4*6)
		if s > 1 {
			s /= 2
		}
	}
	return img
}

// MipSize returns the face edge length at mip.
func (c *CubemapCpuImage) MipSize(mip uint32) uint32 {
	s := c.Size
	for i := uint32(0); i < mip; i++ {
		if s > 1 {
			s /= 2
		}
	}
	return s
}

func (c *CubemapCpuImage) texelIndex(mip, face, x, y uint32) int {
	s := int(c.MipSize(mip))
	return (int(face)*s*s + int(y)*s + int(x)) * 4
}

// SetTexel writes an RGBA value into mip/face/(x,y).
func (c *CubemapCpuImage) SetTexel(mip, face, x, y uint32, rgba [4]float32) {
	i := c.texelIndex(mip, face, x, y)
	p := c.Pixels[mip]
	p[i], p[i+1], p[i+2], p[i+3] = rgba[0], rgba[1], rgba[2], rgba[3]
}

// Texel reads an RGBA value from mip/face/(x,y).
func (c *CubemapCpuImage) Texel(mip, face, x, y uint32) [4]float32 {
	i := c.texelIndex(mip, face, x, y)
	p := c.Pixels[mip]
	return [4]float32{p[i], p[i+1], p[i+2], p[i+3]}
}

// Bytes packs every mip, face-major, into one contiguous buffer --
// exactly the blob saveCache/loadCache round-trip.
func (c *CubemapCpuImage) Bytes() []byte {
	total := 0
	for _, p := range c.Pixels {
		total += len(p) * 4
	}
	out := make([]byte, total)
	off := 0
	for _, p := range c.Pixels {
		for _, f := range p {
			bits := math.Float32bits(f)
			out[off] = byte(bits)
			out[off+1] = byte(bits >> 8)
			out[off+2] = byte(bits >> 16)
			out[off+3] = byte(bits >> 24)
			off += 4
		}
	}
	return out
}

// cubeFaceDirection returns the unit direction the texel (u,v) in
// [-1,1]^2 on face maps to, using the V-flip that makes a cube
// sampled in the fragment shader match the equirect source's
// orientation.
func cubeFaceDirection(face uint32, u, v float32) mgl32.Vec3 {
	var d mgl32.Vec3
	switch face {
	case 0: // +X
		d = mgl32.Vec3{1, -v, -u}
	case 1: // -X
		d = mgl32.Vec3{-1, -v, u}
	case 2: // +Y
		d = mgl32.Vec3{u, 1, v}
	case 3: // -Y
		d = mgl32.Vec3{u, -1, -v}
	case 4: // +Z
		d = mgl32.Vec3{u, -v, 1}
	case 5: // -Z
		d = mgl32.Vec3{-u, -v, -1}
	}
	return d.Normalize()
}

// directionToEquirectUV converts a direction to the (u,v) in [0,1]^2
// an equirectangular source image is sampled at.
func directionToEquirectUV(d mgl32.Vec3) (float32, float32) {
	theta := float32(math.Atan2(float64(d.Z()), float64(d.X())))
	phi := float32(math.Asin(float64(clamp32(d.Y(), -1, 1))))
	u := theta/(2*math.Pi) + 0.5
	v := 0.5 - phi/math.Pi
	return u, v
}

func clamp32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// equirect is an RGB(A) float equirectangular source image sampled
// bilinearly, wrapping U and clamping V.
type equirect struct {
	W, H     int
	Channels int
	Pixels   []float32
}

func (e *equirect) sample(u, v float32) [3]float32 {
	u -= float32(math.Floor(float64(u)))
	v = clamp32(v, 0, 1)

	fx := u*float32(e.W) - 0.5
	fy := v*float32(e.H) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	wrap := func(x int) int {
		x %= e.W
		if x < 0 {
			x += e.W
		}
		return x
	}
	clampY := func(y int) int {
		if y < 0 {
			return 0
		}
		if y >= e.H {
			return e.H - 1
		}
		return y
	}

	get := func(x, y int) [3]float32 {
		x = wrap(x)
		y = clampY(y)
		idx := (y*e.W + x) * e.Channels
		var out [3]float32
		out[0] = e.Pixels[idx]
		out[1] = e.Pixels[idx+1]
		out[2] = e.Pixels[idx+2]
		return out
	}

	c00, c10 := get(x0, y0), get(x0+1, y0)
	c01, c11 := get(x0, y0+1), get(x0+1, y0+1)
	var out [3]float32
	for i := 0; i < 3; i++ {
		top := c00[i]*(1-tx) + c10[i]*tx
		bot := c01[i]*(1-tx) + c11[i]*tx
		out[i] = top*(1-ty) + bot*ty
	}
	return out
}

// equirectToCubemap converts src into a base-level (mip 0) cubemap of
// the given size, following the per-face direction convention of
// cubeFaceDirection.
func equirectToCubemap(src *equirect, size uint32) *CubemapCpuImage {
	cube := NewCubemapCpuImage(size, 1)
	parallelRows(int(size), func(y int) {
		for face := uint32(0); face < 6; face++ {
			for x := 0; x < int(size); x++ {
				u := (float32(x)+0.5)/float32(size)*2 - 1
				v := (float32(y)+0.5)/float32(size)*2 - 1
				dir := cubeFaceDirection(face, u, v)
				eu, ev := directionToEquirectUV(dir)
				rgb := src.sample(eu, ev)
				cube.SetTexel(0, face, uint32(x), uint32(y), [4]float32{rgb[0], rgb[1], rgb[2], 1})
			}
		}
	})
	return cube
}

// proceduralGradientCubemap is the HdrLoadFailed fallback: a simple
// sky-to-ground gradient so downstream consumers still have a usable
// (if visually plain) environment.
func proceduralGradientCubemap(size uint32) *CubemapCpuImage {
	cube := NewCubemapCpuImage(size, 1)
	top := [3]float32{0.5, 0.7, 1.0}
	bottom := [3]float32{0.3, 0.3, 0.35}
	for face := uint32(0); face < 6; face++ {
		for y := uint32(0); y < size; y++ {
			for x := uint32(0); x < size; x++ {
				u := (float32(x)+0.5)/float32(size)*2 - 1
				v := (float32(y)+0.5)/float32(size)*2 - 1
				dir := cubeFaceDirection(face, u, v)
				t := clamp32(dir.Y()*0.5+0.5, 0, 1)
				var rgb [3]float32
				for i := 0; i < 3; i++ {
					rgb[i] = bottom[i] + (top[i]-bottom[i])*t
				}
				cube.SetTexel(0, face, x, y, [4]float32{rgb[0], rgb[1], rgb[2], 1})
			}
		}
	}
	return cube
}

// parallelRows runs fn(y) for y in [0,rows) across a worker pool
// sized to the host's CPU count. The convolution inner loops are
// embarrassingly parallel over output texels, so rows are the unit of
// work handed to each worker.
func parallelRows(rows int, fn func(y int)) {
	workers := runtime.NumCPU()
	if workers > rows {
		workers = rows
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for y := range jobs {
				fn(y)
			}
		}()
	}
	for y := 0; y < rows; y++ {
		jobs <- y
	}
	close(jobs)
	wg.Wait()
}

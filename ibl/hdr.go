package ibl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/realge/vkrender-core/gpuerr"
)

// loadHDR decodes a Radiance .hdr (RGBE) equirectangular file into a
// float RGB equirect. No third-party RGBE decoder is available in
// this module's dependency set (golang.org/x/image ships no
// Radiance/RGBE support), so this is a small hand-rolled reader of
// the well-known format -- see DESIGN.md for the per-dependency
// justification this represents.
func loadHDR(path string) (*equirect, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hdr %s: %w", path, gpuerr.ErrHdrLoadFailed)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	// Header: a magic/comment line, key=value lines, blank line, then
	// the resolution line "-Y H +X W".
	width, height, err := readHDRHeader(r)
	if err != nil {
		return nil, err
	}

	pixels := make([]float32, width*height*3)
	for y := 0; y < height; y++ {
		scan, err := readHDRScanline(r, width)
		if err != nil {
			return nil, fmt.Errorf("decode hdr scanline %d of %s: %w", y, path, gpuerr.ErrHdrLoadFailed)
		}
		copy(pixels[y*width*3:(y+1)*width*3], scan)
	}

	return &equirect{W: width, H: height, Channels: 3, Pixels: pixels}, nil
}

func readHDRHeader(r *bufio.Reader) (int, int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, 0, fmt.Errorf("read hdr magic: %w", gpuerr.ErrHdrLoadFailed)
	}
	if !strings.HasPrefix(line, "#?") {
		return 0, 0, fmt.Errorf("not a radiance hdr file: %w", gpuerr.ErrHdrLoadFailed)
	}

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			return 0, 0, fmt.Errorf("read hdr header: %w", gpuerr.ErrHdrLoadFailed)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	resLine, err := r.ReadString('\n')
	if err != nil {
		return 0, 0, fmt.Errorf("read hdr resolution line: %w", gpuerr.ErrHdrLoadFailed)
	}
	fields := strings.Fields(resLine)
	if len(fields) != 4 {
		return 0, 0, fmt.Errorf("malformed hdr resolution line %q: %w", resLine, gpuerr.ErrHdrLoadFailed)
	}
	height, err1 := strconv.Atoi(fields[1])
	width, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("malformed hdr resolution values %q: %w", resLine, gpuerr.ErrHdrLoadFailed)
	}
	return width, height, nil
}

// readHDRScanline decodes one scanline of RGBE texels (either new-RLE
// or flat, whichever the file uses) into linear float RGB.
func readHDRScanline(r *bufio.Reader, width int) ([]float32, error) {
	if width < 8 || width > 0x7fff {
		return readHDRFlatScanline(r, width)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if header[0] != 2 || header[1] != 2 || (int(header[2])<<8|int(header[3])) != width {
		// Old-style or flat scanline: header bytes are actually the
		// first pixel's RGBE; push back by decoding it as pixel 0 of
		// a flat scanline.
		rest, err := readHDRFlatScanlineWithFirst(r, width, [4]byte{header[0], header[1], header[2], header[3]})
		return rest, err
	}

	rgbe := make([][4]byte, width)
	for channel := 0; channel < 4; channel++ {
		x := 0
		for x < width {
			count, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if count > 128 {
				// run of (count-128) identical bytes
				n := int(count) - 128
				v, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				for i := 0; i < n; i++ {
					rgbe[x][channel] = v
					x++
				}
			} else {
				// literal run of `count` bytes
				n := int(count)
				for i := 0; i < n; i++ {
					v, err := r.ReadByte()
					if err != nil {
						return nil, err
					}
					rgbe[x][channel] = v
					x++
				}
			}
		}
	}

	out := make([]float32, width*3)
	for x := 0; x < width; x++ {
		r, g, b := rgbeToFloat(rgbe[x])
		out[x*3], out[x*3+1], out[x*3+2] = r, g, b
	}
	return out, nil
}

func readHDRFlatScanline(r *bufio.Reader, width int) ([]float32, error) {
	out := make([]float32, width*3)
	var px [4]byte
	for x := 0; x < width; x++ {
		if _, err := io.ReadFull(r, px[:]); err != nil {
			return nil, err
		}
		rf, gf, bf := rgbeToFloat(px)
		out[x*3], out[x*3+1], out[x*3+2] = rf, gf, bf
	}
	return out, nil
}

func readHDRFlatScanlineWithFirst(r *bufio.Reader, width int, first [4]byte) ([]float32, error) {
	out := make([]float32, width*3)
	rf, gf, bf := rgbeToFloat(first)
	out[0], out[1], out[2] = rf, gf, bf
	if width == 1 {
		return out, nil
	}
	rest, err := readHDRFlatScanline(r, width-1)
	if err != nil {
		return nil, err
	}
	copy(out[3:], rest)
	return out, nil
}

// rgbeToFloat converts one Radiance RGBE texel to linear float RGB:
// mantissa bytes scaled by 2^(exponent-128-8).
func rgbeToFloat(px [4]byte) (float32, float32, float32) {
	if px[3] == 0 {
		return 0, 0, 0
	}
	scale := ldexp(1, int(px[3])-128-8)
	return float32(px[0]) * scale, float32(px[1]) * scale, float32(px[2]) * scale
}

func ldexp(f float32, exp int) float32 {
	for exp > 0 {
		f *= 2
		exp--
	}
	for exp < 0 {
		f /= 2
		exp++
	}
	return f
}

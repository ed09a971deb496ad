package ibl

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/realge/vkrender-core/gpuerr"
)

// cacheHeaderSize is the fixed 24-byte header: 4x uint32 + 1x uint64.
const cacheHeaderSize = 4*4 + 8

// cacheHeader is the on-disk header preceding every cache payload.
// Byte order is host little-endian; the format is explicitly not
// portable across endianness.
type cacheHeader struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	FaceCount uint32
	DataSize  uint64
}

// hashKey produces the 64-bit non-cryptographic FNV-1a hash of key,
// formatted as the hex string used in cache filenames.
func hashKey(key string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("%016x", h.Sum64())
}

// cachePath builds cache/<hash(key)>_<suffix>.bin under dir.
func cachePath(dir, key, suffix string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.bin", hashKey(key), suffix))
}

// saveCache writes a header + payload in one file.
func saveCache(dir, key, suffix string, width, height, mipLevels, faceCount uint32, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, gpuerr.ErrCacheInvalid)
	}
	path := cachePath(dir, key, suffix)

	buf := make([]byte, cacheHeaderSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], width)
	binary.LittleEndian.PutUint32(buf[4:8], height)
	binary.LittleEndian.PutUint32(buf[8:12], mipLevels)
	binary.LittleEndian.PutUint32(buf[12:16], faceCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(data)))
	copy(buf[cacheHeaderSize:], data)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", path, gpuerr.ErrCacheInvalid)
	}
	// Rename is atomic on the same filesystem: a crash mid-write leaves
	// only the .tmp file, never a half-written .bin that would pass
	// the header check below.
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cache %s: %w", path, gpuerr.ErrCacheInvalid)
	}
	return nil
}

// loadCache reads and validates a cache file. A header with
// width==0 or dataSize==0, a short read, or a length mismatch between
// header.DataSize and the actual payload all count as ErrCacheInvalid
// so the caller regenerates rather than uploading corrupt bytes.
func loadCache(dir, key, suffix string) (cacheHeader, []byte, error) {
	path := cachePath(dir, key, suffix)
	raw, err := os.ReadFile(path)
	if err != nil {
		return cacheHeader{}, nil, fmt.Errorf("read cache %s: %w", path, gpuerr.ErrCacheInvalid)
	}
	if len(raw) < cacheHeaderSize {
		return cacheHeader{}, nil, fmt.Errorf("cache %s shorter than header: %w", path, gpuerr.ErrCacheInvalid)
	}
	hdr := cacheHeader{
		Width:     binary.LittleEndian.Uint32(raw[0:4]),
		Height:    binary.LittleEndian.Uint32(raw[4:8]),
		MipLevels: binary.LittleEndian.Uint32(raw[8:12]),
		FaceCount: binary.LittleEndian.Uint32(raw[12:16]),
		DataSize:  binary.LittleEndian.Uint64(raw[16:24]),
	}
	if hdr.Width == 0 || hdr.DataSize == 0 {
		return cacheHeader{}, nil, fmt.Errorf("cache %s has invalid header: %w", path, gpuerr.ErrCacheInvalid)
	}
	if uint64(len(raw)-cacheHeaderSize) != hdr.DataSize {
		return cacheHeader{}, nil, fmt.Errorf("cache %s payload size mismatch: %w", path, gpuerr.ErrCacheInvalid)
	}
	data := raw[cacheHeaderSize : cacheHeaderSize+int(hdr.DataSize)]
	return hdr, data, nil
}

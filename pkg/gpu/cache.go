package gpu

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// cacheFormatVersion guards the on-disk layout. Per spec §4.3's open
// question, the cache format is not considered stable across releases;
// a version mismatch is treated as a miss rather than fed to the driver.
const cacheFormatVersion uint32 = 1

var cacheMagic = [4]byte{'g', 'p', 'u', 'c'}

const cacheHeaderSize = len(cacheMagic) + 4 // magic + version

// binaryCache is the content-addressed on-disk map described in spec
// §4.3: <cacheRoot>/opencog/opencl/<deviceFP>/<sourceFP>.bin.
type binaryCache struct {
	root    string
	enabled bool
	log     *logrus.Entry
}

func newBinaryCache(root string, enabled bool, log *logrus.Entry) *binaryCache {
	return &binaryCache{root: root, enabled: enabled, log: log}
}

// resolveCacheRoot applies the fallback rule from spec §4.3: user home,
// else /tmp.
func resolveCacheRoot(override string) string {
	if override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "/tmp"
	}
	return home
}

// deviceFingerprint hex-encodes an xxhash64 of the device identity
// triple.
func deviceFingerprint(platformName, deviceName, driverVersion string) string {
	h := xxhash.New()
	_, _ = h.Write([]byte(platformName))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(deviceName))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(driverVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// sourceFingerprint hex-encodes an xxhash64 of the exact source bytes.
func sourceFingerprint(source []byte) string {
	sum := xxhash.Sum64(source)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * i))
	}
	return hex.EncodeToString(buf)
}

func (c *binaryCache) path(deviceFP, sourceFP string) string {
	return filepath.Join(c.root, "opencog", "opencl", deviceFP, sourceFP+".bin")
}

// load returns the cached binary for (deviceFP, sourceFP), or (nil,
// false) on any miss — including a format-version mismatch or I/O
// error, both logged and never fatal (spec §4.3, §7).
func (c *binaryCache) load(deviceFP, sourceFP string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	path := c.path(deviceFP, sourceFP)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.WithError(fmt.Errorf("%w: %v", errCacheIO, err)).WithField("path", path).Warn("gpu: cache read failed")
		}
		return nil, false
	}
	body, ok := c.stripHeader(raw)
	if !ok {
		c.log.WithField("path", path).Warn("gpu: cache file has incompatible format version, ignoring")
		return nil, false
	}
	return body, true
}

// store writes a compiled binary to the cache, atomically (temp file +
// rename). Failures are logged and otherwise ignored: cache operations
// never fail the program build.
func (c *binaryCache) store(deviceFP, sourceFP string, binary []byte) {
	if !c.enabled {
		return
	}
	path := c.path(deviceFP, sourceFP)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.log.WithError(fmt.Errorf("%w: %v", errCacheIO, err)).WithField("dir", dir).Warn("gpu: cache mkdir failed")
		return
	}

	tmp, err := os.CreateTemp(dir, "*.bin.tmp")
	if err != nil {
		c.log.WithError(fmt.Errorf("%w: %v", errCacheIO, err)).Warn("gpu: cache tempfile create failed")
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(c.withHeader(binary)); err != nil {
		tmp.Close()
		c.log.WithError(fmt.Errorf("%w: %v", errCacheIO, err)).Warn("gpu: cache write failed")
		return
	}
	if err := tmp.Close(); err != nil {
		c.log.WithError(fmt.Errorf("%w: %v", errCacheIO, err)).Warn("gpu: cache close failed")
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		c.log.WithError(fmt.Errorf("%w: %v", errCacheIO, err)).WithField("path", path).Warn("gpu: cache rename failed")
	}
}

func (c *binaryCache) withHeader(binary []byte) []byte {
	out := make([]byte, 0, cacheHeaderSize+len(binary))
	out = append(out, cacheMagic[:]...)
	out = append(out, byte(cacheFormatVersion), byte(cacheFormatVersion>>8), byte(cacheFormatVersion>>16), byte(cacheFormatVersion>>24))
	out = append(out, binary...)
	return out
}

func (c *binaryCache) stripHeader(raw []byte) ([]byte, bool) {
	if len(raw) < cacheHeaderSize {
		return nil, false
	}
	for i, b := range cacheMagic {
		if raw[i] != b {
			return nil, false
		}
	}
	version := uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16 | uint32(raw[7])<<24
	if version != cacheFormatVersion {
		return nil, false
	}
	return raw[cacheHeaderSize:], true
}

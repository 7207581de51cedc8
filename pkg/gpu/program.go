package gpu

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// loadProgram builds or loads the program named by locator.ProgramPath
// against ctx, consulting (and on a source build, filling) the binary
// cache. Per spec §4.4:
//   - source: read, cache lookup, compile on miss, store on success
//   - binary (.spv): read, construct directly, no cache involvement
func loadProgram(ctx oclContext, bound *boundDevice, locator DeviceLocator, cache *binaryCache, log *logrus.Entry) (oclProgram, bool, error) {
	raw, err := os.ReadFile(locator.ProgramPath)
	if err != nil {
		if locator.Kind == KindBinary {
			return nil, false, fmt.Errorf("%w: read %s: %v", ErrBinaryLoad, locator.ProgramPath, err)
		}
		return nil, false, fmt.Errorf("%w: read %s: %v", ErrProgramBuild, locator.ProgramPath, err)
	}

	if locator.Kind == KindBinary {
		program, err := ctx.CreateProgramWithBinary(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrBinaryLoad, err)
		}
		return program, false, nil
	}

	deviceFP := deviceFingerprint(bound.platformName, bound.deviceName, bound.driverVersion)
	sourceFP := sourceFingerprint(raw)

	if cached, ok := cache.load(deviceFP, sourceFP); ok {
		program, err := ctx.CreateProgramWithBinary(cached)
		if err == nil {
			log.WithFields(logrus.Fields{"device_fp": deviceFP, "source_fp": sourceFP}).Debug("gpu: cache hit, loaded binary")
			return program, true, nil
		}
		// The driver reports the cached binary is unusable for this
		// device (stale cache, format drift): discard it and fall back
		// to a fresh source compile.
		log.WithError(err).Warn("gpu: cached binary rejected by driver, recompiling from source")
	}

	program, err := ctx.CreateProgramWithSource(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrProgramBuild, err)
	}

	if binary, err := program.Binary(); err != nil {
		log.WithError(err).Warn("gpu: failed to extract compiled binary, skipping cache store")
	} else {
		cache.store(deviceFP, sourceFP, binary)
	}

	return program, false, nil
}

package gpu

import (
	"fmt"
	"path"
	"strings"
)

// ProgramKind distinguishes a kernel source file from a pre-compiled
// SPIR-V binary, decided purely from the locator's final extension.
type ProgramKind int

const (
	KindSource ProgramKind = iota
	KindBinary
)

func (k ProgramKind) String() string {
	if k == KindBinary {
		return "binary"
	}
	return "source"
}

// DeviceLocator is the parsed form of a "gpu://<platform>:<device>/<path>"
// locator URL. PlatformMatch and DeviceMatch are substring selectors;
// an empty selector matches any platform/device.
type DeviceLocator struct {
	PlatformMatch string
	DeviceMatch   string
	ProgramPath   string
	Kind          ProgramKind
}

const locatorScheme = "gpu://"

// ParseLocator decodes a "gpu://<platform>:<device>/<path>" locator.
// <platform> and <device> may be empty. The program kind is binary iff
// the path's final extension is ".spv", else source.
func ParseLocator(raw string) (DeviceLocator, error) {
	if !strings.HasPrefix(raw, locatorScheme) {
		return DeviceLocator{}, fmt.Errorf("%w: missing %q scheme: %s", ErrMalformedLocator, locatorScheme, raw)
	}
	rest := raw[len(locatorScheme):]

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return DeviceLocator{}, fmt.Errorf("%w: missing path separator: %s", ErrMalformedLocator, raw)
	}
	authority, programPath := rest[:slash], rest[slash+1:]
	if programPath == "" {
		return DeviceLocator{}, fmt.Errorf("%w: empty program path: %s", ErrMalformedLocator, raw)
	}

	colon := strings.IndexByte(authority, ':')
	if colon < 0 {
		return DeviceLocator{}, fmt.Errorf("%w: missing ':' separator: %s", ErrMalformedLocator, raw)
	}
	platformMatch, deviceMatch := authority[:colon], authority[colon+1:]

	ext := path.Ext(programPath)
	if ext == "" {
		return DeviceLocator{}, fmt.Errorf("%w: program path has no extension: %s", ErrMalformedLocator, raw)
	}

	kind := KindSource
	if strings.EqualFold(ext, ".spv") {
		kind = KindBinary
	}

	return DeviceLocator{
		PlatformMatch: platformMatch,
		DeviceMatch:   deviceMatch,
		ProgramPath:   programPath,
		Kind:          kind,
	}, nil
}

// String re-serializes the locator to the canonical "gpu://" form. For
// any DeviceLocator produced by ParseLocator, ParseLocator(l.String())
// yields an equal value (the round-trip law from spec §8).
func (l DeviceLocator) String() string {
	return fmt.Sprintf("%s%s:%s/%s", locatorScheme, l.PlatformMatch, l.DeviceMatch, l.ProgramPath)
}

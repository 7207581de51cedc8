package gpu

import (
	"fmt"
	"strings"
)

// boundDevice is the outcome of the Device Binder: a device matched
// against the locator's selectors, plus the freshly created context.
type boundDevice struct {
	platformName  string
	deviceName    string
	driverVersion string
	ctx           oclContext
}

// bindDevice enumerates all platforms and devices via driver, matching
// the locator's platform/device selectors by substring (empty = any),
// and returns the first match. Per spec §4.2, this runs exactly once
// per Engine lifetime — callers (Engine.Open) enforce that.
func bindDevice(driver oclDriver, locator DeviceLocator) (*boundDevice, error) {
	platforms, err := driver.Platforms()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate platforms: %v", ErrDevice, err)
	}

	for _, p := range platforms {
		if !strings.Contains(p.Name(), locator.PlatformMatch) {
			continue
		}
		devices, err := p.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: enumerate devices on platform %q: %v", ErrDevice, p.Name(), err)
		}
		for _, d := range devices {
			if !strings.Contains(d.Name(), locator.DeviceMatch) {
				continue
			}
			ctx, err := d.CreateContext()
			if err != nil {
				return nil, fmt.Errorf("%w: create context: %v", ErrDevice, err)
			}
			return &boundDevice{
				platformName:  p.Name(),
				deviceName:    d.Name(),
				driverVersion: d.DriverVersion(),
				ctx:           ctx,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: platform=%q device=%q", ErrNoMatchingDevice, locator.PlatformMatch, locator.DeviceMatch)
}

// DeviceDescriptor is a pure enumeration record — no binding, no
// context — useful for diagnostics without committing to a device.
type DeviceDescriptor struct {
	Platform string
	Device   string
}

// EnumerateDevices enumerates every platform/device pair visible to the
// real OpenCL driver, independent of any locator. It never binds a
// context — useful for diagnostics before committing to Engine.Open.
func EnumerateDevices() ([]DeviceDescriptor, error) {
	return listDevices(realDriver{})
}

// listDevices is the driver-seam-testable core of EnumerateDevices.
func listDevices(driver oclDriver) ([]DeviceDescriptor, error) {
	platforms, err := driver.Platforms()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate platforms: %v", ErrDevice, err)
	}
	var out []DeviceDescriptor
	for _, p := range platforms {
		devices, err := p.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: enumerate devices on platform %q: %v", ErrDevice, p.Name(), err)
		}
		for _, d := range devices {
			out = append(out, DeviceDescriptor{Platform: p.Name(), Device: d.Name()})
		}
	}
	return out, nil
}

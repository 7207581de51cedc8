package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoDeviceFakeDriver() *fakeDriver {
	return &fakeDriver{platforms: []oclPlatform{
		&fakePlatform{
			name: "NVIDIA CUDA",
			devices: []oclDevice{
				&fakeDevice{name: "GeForce RTX 4090", driverVersion: "535.104"},
				&fakeDevice{name: "NVIDIA CPU", driverVersion: "535.104"},
			},
		},
		&fakePlatform{
			name: "Intel OpenCL",
			devices: []oclDevice{
				&fakeDevice{name: "Intel Iris Xe", driverVersion: "1.0"},
			},
		},
	}}
}

func TestBindDeviceWildcardMatchesFirst(t *testing.T) {
	driver := twoDeviceFakeDriver()
	bound, err := bindDevice(driver, DeviceLocator{})
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA CUDA", bound.platformName)
	assert.Equal(t, "GeForce RTX 4090", bound.deviceName)
}

func TestBindDeviceSubstringMatch(t *testing.T) {
	driver := twoDeviceFakeDriver()
	bound, err := bindDevice(driver, DeviceLocator{PlatformMatch: "Intel", DeviceMatch: "Iris"})
	require.NoError(t, err)
	assert.Equal(t, "Intel OpenCL", bound.platformName)
	assert.Equal(t, "Intel Iris Xe", bound.deviceName)
}

func TestBindDeviceNoMatch(t *testing.T) {
	driver := twoDeviceFakeDriver()
	_, err := bindDevice(driver, DeviceLocator{DeviceMatch: "Quantum"})
	assert.True(t, errors.Is(err, ErrNoMatchingDevice))
}

func TestListDevices(t *testing.T) {
	driver := twoDeviceFakeDriver()
	descriptors, err := listDevices(driver)
	require.NoError(t, err)
	assert.Len(t, descriptors, 3)
}

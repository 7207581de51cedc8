package gpu

// This file defines the narrow seam between the engine's orchestration
// logic and the OpenCL driver. Production code runs against realDriver,
// a thin wrapper over github.com/jgillich/go-opencl/cl. Tests run
// against an in-memory fakeDriver (fake_ocl_test.go) that executes
// registered kernels in plain Go, so the argument normalization,
// signature checking, caching, and dispatcher-ordering logic can be
// exercised without a GPU — mirroring the stub/bridge split
// orneryd/nornicdb uses for its own GPU backends.

// oclPlatform describes one OpenCL platform.
type oclPlatform interface {
	Name() string
	Devices() ([]oclDevice, error)
}

// oclDevice describes one OpenCL device and can create a context bound
// to itself.
type oclDevice interface {
	Name() string
	DriverVersion() string
	CreateContext() (oclContext, error)
}

// oclContext is a bound OpenCL context: compiles programs and allocates
// buffers for its device.
type oclContext interface {
	CreateCommandQueue() (oclQueue, error)
	CreateProgramWithSource(src []byte) (oclProgram, error)
	CreateProgramWithBinary(bin []byte) (oclProgram, error)
	CreateBuffer(size int) (oclBuffer, error)
	Release()
}

// oclProgram is a compiled (or loaded) program, able to mint kernels and
// to report its compiled binary for cache storage.
type oclProgram interface {
	CreateKernel(name string) (oclKernel, error)
	Binary() ([]byte, error)
}

// oclKernel is a named entry point; SetArg binds one positional
// argument, either an oclBuffer (device pointer) or an int32 scalar.
type oclKernel interface {
	SetArg(index int, value interface{}) error
}

// oclQueue is an ordered submission channel to a device.
type oclQueue interface {
	EnqueueWrite(buf oclBuffer, data []byte) error
	EnqueueRead(buf oclBuffer, data []byte) error
	EnqueueNDRangeKernel(k oclKernel, global int) error
	Finish() error
	Release()
}

// oclBuffer is a device-resident memory region.
type oclBuffer interface {
	Size() int
	Release()
}

// oclDriver enumerates platforms. A production Engine uses realDriver;
// tests use fakeDriver.
type oclDriver interface {
	Platforms() ([]oclPlatform, error)
}

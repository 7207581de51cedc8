package gpu

import "fmt"

// fakeDriver is an in-memory stand-in for OpenCL, used only by tests so
// the engine's orchestration (length determination, normalization,
// signature checking, dispatcher ordering, cache round-trips) can be
// exercised deterministically without a GPU.

// fakeKernelImpl computes a kernel's output vector from its input
// buffers (in declared order, with scalars and the last buffer argument,
// which receives the result, stripped) and chosen length N.
type fakeKernelImpl func(args [][]float64, n int) []float64

// fakeKernelImpls maps kernel name to its simulated behavior, for every
// kernel the tests dispatch.
var fakeKernelImpls = map[string]fakeKernelImpl{
	"vec_mult": func(args [][]float64, n int) []float64 {
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = args[0][i] * args[1][i]
		}
		return out
	},
	"vec_add": func(args [][]float64, n int) []float64 {
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = args[0][i] + args[1][i]
		}
		return out
	},
	"noop": func(args [][]float64, n int) []float64 { return nil },
}

type fakePlatform struct {
	name          string
	driverVersion string
	devices       []oclDevice
}

func (p *fakePlatform) Name() string               { return p.name }
func (p *fakePlatform) Devices() ([]oclDevice, error) { return p.devices, nil }

type fakeDevice struct {
	name          string
	driverVersion string
	buildCount    *int
}

func (d *fakeDevice) Name() string          { return d.name }
func (d *fakeDevice) DriverVersion() string  { return d.driverVersion }
func (d *fakeDevice) CreateContext() (oclContext, error) {
	return &fakeContext{device: d}, nil
}

type fakeContext struct {
	device *fakeDevice
}

func (c *fakeContext) CreateCommandQueue() (oclQueue, error) {
	return &fakeQueue{}, nil
}

func (c *fakeContext) CreateProgramWithSource(src []byte) (oclProgram, error) {
	if c.device.buildCount != nil {
		*c.device.buildCount++
	}
	ifaces, err := extractKernelInterfaces(src)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(ifaces))
	for _, i := range ifaces {
		names[i.Name] = true
	}
	return &fakeProgram{kernelNames: names, binary: append([]byte(nil), src...)}, nil
}

func (c *fakeContext) CreateProgramWithBinary(bin []byte) (oclProgram, error) {
	// The fake encodes its "binary" as the original source bytes, so
	// loading from cache behaves identically to a fresh compile.
	ifaces, err := extractKernelInterfaces(bin)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(ifaces))
	for _, i := range ifaces {
		names[i.Name] = true
	}
	return &fakeProgram{kernelNames: names, binary: bin}, nil
}

func (c *fakeContext) CreateBuffer(size int) (oclBuffer, error) {
	return &fakeBuffer{data: make([]byte, size)}, nil
}

func (c *fakeContext) Release() {}

type fakeProgram struct {
	kernelNames map[string]bool
	binary      []byte
}

func (p *fakeProgram) CreateKernel(name string) (oclKernel, error) {
	if !p.kernelNames[name] {
		return nil, fmt.Errorf("fake: unknown kernel %q", name)
	}
	impl, ok := fakeKernelImpls[name]
	if !ok {
		return nil, fmt.Errorf("fake: no simulated implementation registered for kernel %q", name)
	}
	return &fakeKernel{name: name, impl: impl}, nil
}

func (p *fakeProgram) Binary() ([]byte, error) { return p.binary, nil }

type fakeKernel struct {
	name string
	impl fakeKernelImpl
	args []interface{}
}

func (k *fakeKernel) SetArg(index int, value interface{}) error {
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
	return nil
}

type fakeQueue struct{}

func (q *fakeQueue) EnqueueWrite(buf oclBuffer, data []byte) error {
	fb := buf.(*fakeBuffer)
	copy(fb.data, data)
	return nil
}

func (q *fakeQueue) EnqueueRead(buf oclBuffer, data []byte) error {
	fb := buf.(*fakeBuffer)
	copy(data, fb.data)
	return nil
}

func (q *fakeQueue) EnqueueNDRangeKernel(k oclKernel, global int) error {
	fk := k.(*fakeKernel)

	// Convention (matches every test kernel, and the dominant OpenCL
	// convention the pack's kernel sources follow: vec_mult(a, b, out,
	// n)): the last buffer-typed argument is the output.
	var bufArgIdx []int
	for i, a := range fk.args {
		if _, ok := a.(*fakeBuffer); ok {
			bufArgIdx = append(bufArgIdx, i)
		}
	}
	if len(bufArgIdx) == 0 {
		// A kernel with zero vector parameters (spec §8's boundary
		// behavior) has no buffer to write a simulated result into;
		// only run its impl, if any, for side effects.
		if fk.impl != nil {
			fk.impl(nil, global)
		}
		return nil
	}
	outIdx := bufArgIdx[len(bufArgIdx)-1]
	outBuf := fk.args[outIdx].(*fakeBuffer)

	var inputs [][]float64
	for _, i := range bufArgIdx[:len(bufArgIdx)-1] {
		inputs = append(inputs, fk.args[i].(*fakeBuffer).floats())
	}
	result := fk.impl(inputs, global)
	outBuf.setFloats(result)
	return nil
}

func (q *fakeQueue) Finish() error { return nil }

func (q *fakeQueue) Release() {}

type fakeBuffer struct {
	data []byte
}

func (b *fakeBuffer) Size() int  { return len(b.data) }
func (b *fakeBuffer) Release()   {}

func (b *fakeBuffer) floats() []float64 { return bytesToFloats(b.data) }

func (b *fakeBuffer) setFloats(vals []float64) { b.data = floatsToBytes(vals) }

type fakeDriver struct {
	platforms []oclPlatform
}

func (d *fakeDriver) Platforms() ([]oclPlatform, error) { return d.platforms, nil }

func newSingleDeviceFakeDriver(platformName, deviceName string) *fakeDriver {
	return &fakeDriver{platforms: []oclPlatform{
		&fakePlatform{
			name:          platformName,
			driverVersion: "fake-1.0",
			devices: []oclDevice{
				&fakeDevice{name: deviceName, driverVersion: "fake-driver-1.0"},
			},
		},
	}}
}

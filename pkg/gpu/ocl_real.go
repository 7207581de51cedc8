package gpu

import (
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

// realDriver is the production oclDriver, backed by the jgillich/go-opencl
// binding. Every call below follows the standard OpenCL host-API
// sequence: GetPlatforms, platform.GetDevices, CreateContext,
// CreateCommandQueue, CreateProgramWithSource, BuildProgram,
// CreateKernel, SetArgs, EnqueueNDRangeKernel,
// EnqueueReadBuffer/EnqueueWriteBuffer.
type realDriver struct{}

func (realDriver) Platforms() ([]oclPlatform, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, err
	}
	out := make([]oclPlatform, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, &realPlatform{p: p})
	}
	return out, nil
}

type realPlatform struct {
	p *cl.Platform
}

func (r *realPlatform) Name() string { return r.p.Name() }

func (r *realPlatform) Devices() ([]oclDevice, error) {
	devices, err := r.p.GetDevices(cl.DeviceTypeAll)
	if err != nil {
		return nil, err
	}
	out := make([]oclDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, &realDevice{d: d})
	}
	return out, nil
}

type realDevice struct {
	d *cl.Device
}

func (r *realDevice) Name() string { return r.d.Name() }

// DriverVersion reports the device's driver version string, used as
// part of the binary cache's device fingerprint.
func (r *realDevice) DriverVersion() string { return r.d.DriverVersion() }

func (r *realDevice) CreateContext() (oclContext, error) {
	ctx, err := cl.CreateContext([]*cl.Device{r.d})
	if err != nil {
		return nil, err
	}
	return &realContext{ctx: ctx, device: r.d}, nil
}

type realContext struct {
	ctx    *cl.Context
	device *cl.Device
}

func (r *realContext) CreateCommandQueue() (oclQueue, error) {
	q, err := r.ctx.CreateCommandQueue(r.device, 0)
	if err != nil {
		return nil, err
	}
	return &realQueue{q: q}, nil
}

func (r *realContext) CreateProgramWithSource(src []byte) (oclProgram, error) {
	program, err := r.ctx.CreateProgramWithSource([]string{string(src)})
	if err != nil {
		return nil, err
	}
	if err := program.BuildProgram([]*cl.Device{r.device}, ""); err != nil {
		return nil, err
	}
	return &realProgram{program: program, device: r.device}, nil
}

// CreateProgramWithBinary constructs a program from a device-native
// binary, either a pre-compiled ".spv" kernel or a cache hit.
func (r *realContext) CreateProgramWithBinary(bin []byte) (oclProgram, error) {
	program, err := r.ctx.CreateProgramWithBinary(r.device, bin)
	if err != nil {
		return nil, err
	}
	if err := program.BuildProgram([]*cl.Device{r.device}, ""); err != nil {
		return nil, err
	}
	return &realProgram{program: program, device: r.device}, nil
}

func (r *realContext) CreateBuffer(size int) (oclBuffer, error) {
	buf, err := r.ctx.CreateEmptyBuffer(cl.MemReadWrite, size)
	if err != nil {
		return nil, err
	}
	return &realBuffer{buf: buf, size: size}, nil
}

func (r *realContext) Release() { r.ctx.Release() }

type realProgram struct {
	program *cl.Program
	device  *cl.Device
}

func (r *realProgram) CreateKernel(name string) (oclKernel, error) {
	k, err := r.program.CreateKernel(name)
	if err != nil {
		return nil, err
	}
	return &realKernel{k: k}, nil
}

// Binary returns the compiled binary for this program's single device,
// for storage into the binary cache.
func (r *realProgram) Binary() ([]byte, error) {
	return r.program.GetBinary(r.device)
}

type realKernel struct {
	k *cl.Kernel
}

func (r *realKernel) SetArg(index int, value interface{}) error {
	switch v := value.(type) {
	case oclBuffer:
		return r.k.SetArgBuffer(index, v.(*realBuffer).buf)
	case int32:
		return r.k.SetArgUint32(index, uint32(v))
	default:
		return errDevice("unsupported kernel argument type")
	}
}

type realQueue struct {
	q *cl.CommandQueue
}

func (r *realQueue) EnqueueWrite(buf oclBuffer, data []byte) error {
	rb := buf.(*realBuffer)
	if len(data) == 0 {
		return nil
	}
	_, err := r.q.EnqueueWriteBuffer(rb.buf, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	return err
}

func (r *realQueue) EnqueueRead(buf oclBuffer, data []byte) error {
	rb := buf.(*realBuffer)
	if len(data) == 0 {
		return nil
	}
	_, err := r.q.EnqueueReadBuffer(rb.buf, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	return err
}

func (r *realQueue) EnqueueNDRangeKernel(k oclKernel, global int) error {
	_, err := r.q.EnqueueNDRangeKernel(k.(*realKernel).k, nil, []int{global}, nil, nil)
	return err
}

func (r *realQueue) Finish() error { return r.q.Finish() }

func (r *realQueue) Release() { r.q.Release() }

type realBuffer struct {
	buf  *cl.MemObject
	size int
}

func (r *realBuffer) Size() int { return r.size }

func (r *realBuffer) Release() { r.buf.Release() }

func errDevice(msg string) error {
	return &deviceError{msg: msg}
}

type deviceError struct{ msg string }

func (e *deviceError) Error() string { return e.msg }

func (e *deviceError) Unwrap() error { return ErrDevice }

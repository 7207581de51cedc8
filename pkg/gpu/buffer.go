package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float64Size = 8

func float64ToBytes(v float64) []byte {
	buf := make([]byte, float64Size)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func bytesToFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func floatsToBytes(vals []float64) []byte {
	buf := make([]byte, len(vals)*float64Size)
	for i, v := range vals {
		copy(buf[i*float64Size:(i+1)*float64Size], float64ToBytes(v))
	}
	return buf
}

func bytesToFloats(buf []byte) []float64 {
	n := len(buf) / float64Size
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = bytesToFloat64(buf[i*float64Size : (i+1)*float64Size])
	}
	return out
}

// deviceBinding is the GPU-resident companion of a BufferValue, broken
// out as a separate struct held by pointer (composition) instead of the
// source's diamond-inheritance pattern (design notes §9). The Engine
// reference is non-owning: the Engine's lifetime contract guarantees it
// outlives every BufferValue it bound.
type deviceBinding struct {
	engine    *Engine
	buffer    oclBuffer
	readQueue oclQueue
}

// BufferValue is a float vector, optionally mirrored on a device. It
// implements Argument so it can be reused directly in a later
// invocation (e.g. the accumulator-loop scenario in spec §8).
type BufferValue struct {
	values  []float64
	binding *deviceBinding
	jobErr  error
}

func (*BufferValue) isArgument() {}

// NewBufferValue wraps a host float vector, unbound.
func NewBufferValue(values []float64) *BufferValue {
	cp := make([]float64, len(values))
	copy(cp, values)
	return &BufferValue{values: cp}
}

// Values returns the current host-resident contents.
func (b *BufferValue) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// Size is the vector's element count (the capability interface from
// design notes §9: size / data-pointer / byte-count, expressed here as
// plain methods since Go has no pointer arithmetic to hide).
func (b *BufferValue) Size() int { return len(b.values) }

// ByteCount is the host representation's size in bytes.
func (b *BufferValue) ByteCount() int { return len(b.values) * float64Size }

// IsBound reports whether bind has already been called.
func (b *BufferValue) IsBound() bool { return b.binding != nil }

// resize pads with zeros or truncates to exactly n elements, per the
// boundary behavior in spec §8.
func (b *BufferValue) resize(n int) {
	if len(b.values) == n {
		return
	}
	resized := make([]float64, n)
	copy(resized, b.values)
	b.values = resized
}

// bind allocates a device buffer sized to the current vector length and
// a private read queue, the first time it is called; subsequent calls
// with the same engine are a no-op (idempotence law, spec §8), and a
// call with a different engine fails with ErrDevice.
func (b *BufferValue) bind(e *Engine) error {
	if b.binding != nil {
		if b.binding.engine != e {
			return fmt.Errorf("%w: buffer already bound to a different engine", ErrDevice)
		}
		return nil
	}
	buf, err := e.ctx.CreateBuffer(len(b.values) * float64Size)
	if err != nil {
		return fmt.Errorf("%w: allocate buffer: %v", ErrDevice, err)
	}
	readQueue, err := e.ctx.CreateCommandQueue()
	if err != nil {
		return fmt.Errorf("%w: create read queue: %v", ErrDevice, err)
	}
	b.binding = &deviceBinding{engine: e, buffer: buf, readQueue: readQueue}
	return nil
}

// upload performs a blocking write of the host vector to the device
// buffer, serialized on the engine's shared default queue.
func (b *BufferValue) upload() error {
	if b.binding == nil {
		return ErrNotBound
	}
	if err := b.binding.engine.queue.EnqueueWrite(b.binding.buffer, floatsToBytes(b.values)); err != nil {
		return fmt.Errorf("%w: upload: %v", ErrDevice, err)
	}
	return nil
}

// download performs a blocking read on the buffer's private read queue,
// a no-op if the buffer was never bound, so a result read is never
// blocked behind a long-running kernel launch on the shared queue.
func (b *BufferValue) download() error {
	if b.binding == nil {
		return nil
	}
	data := make([]byte, b.binding.buffer.Size())
	if err := b.binding.readQueue.EnqueueRead(b.binding.buffer, data); err != nil {
		return fmt.Errorf("%w: download: %v", ErrDevice, err)
	}
	b.values = bytesToFloats(data)
	return nil
}

// asArgument returns the device buffer handle for binding to a kernel
// argument slot.
func (b *BufferValue) asArgument() (oclBuffer, error) {
	if b.binding == nil {
		return nil, ErrNotBound
	}
	return b.binding.buffer, nil
}

// Err returns the driver error carried by a result-queue sentinel value
// (spec §4.7: a failed job's output is replaced with an ErrorValue
// rather than blocking or crashing the dispatcher). Ordinary
// BufferValues always return nil.
func (b *BufferValue) Err() error { return b.jobErr }

// newErrorBufferValue constructs the sentinel pushed to the result
// queue in place of a job's output when the dispatcher hits a driver
// error.
func newErrorBufferValue(err error) *BufferValue {
	return &BufferValue{jobErr: err}
}

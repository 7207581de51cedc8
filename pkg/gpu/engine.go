package gpu

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type engineState int32

const (
	stateUnopened engineState = iota
	stateOpen
	stateClosed
)

// Stats is a point-in-time snapshot of an Engine's activity, guarded by
// a mutex in the style of orneryd/nornicdb's AcceleratorStats.
type Stats struct {
	JobsSubmitted   uint64
	JobsCompleted   uint64
	JobsFailed      uint64
	CacheHits       uint64
	CacheMisses     uint64
	BytesUploaded   uint64
	BytesDownloaded uint64
}

// Engine is the bound (device, context, program, interfaces) plus its
// dispatcher thread and result queue. The zero value is an unopened
// Engine, the same value NewEngine returns.
//
// Exactly two goroutines touch an Engine's OpenCL state: the caller
// goroutine (Open, Submit, Read, Close) and the single dispatcher
// goroutine spawned by Open.
type Engine struct {
	mu    sync.Mutex
	state engineState

	driver  oclDriver
	bound   *boundDevice
	ctx     oclContext
	queue   oclQueue // shared default queue: uploads + kernel launches
	program oclProgram

	interfaces map[string]KernelInterface
	cache      *binaryCache
	log        *logrus.Entry

	submitCh chan *job
	results  *resultQueue
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewEngine constructs an unopened Engine.
func NewEngine() *Engine {
	return &Engine{state: stateUnopened}
}

// Open parses locator, binds a device, builds or loads the program, and
// starts the dispatcher. It transitions unopened -> open.
func (e *Engine) Open(locator string, opts Options) error {
	return e.open(realDriver{}, locator, opts)
}

func (e *Engine) open(driver oclDriver, locatorRaw string, opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateUnopened {
		return ErrAlreadyOpen
	}

	loc, err := ParseLocator(locatorRaw)
	if err != nil {
		return err
	}

	log := opts.logger()

	bound, err := bindDevice(driver, loc)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"platform": bound.platformName, "device": bound.deviceName}).Info("gpu: device bound")

	cacheRoot := resolveCacheRoot(opts.CacheRoot)
	cache := newBinaryCache(cacheRoot, opts.CacheEnabled, log)

	program, cacheHit, err := loadProgram(bound.ctx, bound, loc, cache, log)
	if err != nil {
		return err
	}
	if loc.Kind == KindSource {
		e.statsMu.Lock()
		if cacheHit {
			e.stats.CacheHits++
		} else {
			e.stats.CacheMisses++
		}
		e.statsMu.Unlock()
	}

	interfaces, err := loadKernelInterfaces(loc)
	if err != nil {
		log.WithError(err).Warn("gpu: kernel interface extraction failed, continuing with an empty interface map")
		interfaces = map[string]KernelInterface{}
	}

	queue, err := bound.ctx.CreateCommandQueue()
	if err != nil {
		return fmt.Errorf("%w: default command queue: %v", ErrDevice, err)
	}

	e.driver = driver
	e.bound = bound
	e.ctx = bound.ctx
	e.queue = queue
	e.program = program
	e.interfaces = interfaces
	e.cache = cache
	e.log = log
	e.submitCh = make(chan *job, opts.SubmitQueueCapacity)
	e.results = newResultQueue(opts.ResultQueueCapacity)
	e.state = stateOpen

	e.wg.Add(1)
	go e.dispatchLoop()

	return nil
}

// loadKernelInterfaces extracts the kernel interface map from source.
// For a source locator this lexically scans the program file itself
// (spec §4.5). For a pre-compiled binary locator there is no source to
// scan by definition; this implementation looks for a sibling source
// file sharing the binary's base name with a ".cl" extension and scans
// that instead. If no sibling source exists, the interface map is
// empty and any kernel name submitted against this Engine fails
// ErrUnknownKernel — a documented limitation, not a crash.
func loadKernelInterfaces(loc DeviceLocator) (map[string]KernelInterface, error) {
	path := loc.ProgramPath
	if loc.Kind == KindBinary {
		path = strings.TrimSuffix(path, ".spv") + ".cl"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if loc.Kind == KindBinary {
			return map[string]KernelInterface{}, nil
		}
		return nil, err
	}
	ifaces, err := extractKernelInterfaces(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]KernelInterface, len(ifaces))
	for _, k := range ifaces {
		out[k.Name] = k
	}
	return out, nil
}

// normalizedArg is one argument after §4.7's normalization pass: either
// a bound device buffer or a scalar integer.
type normalizedArg struct {
	buffer    *BufferValue
	isScalar  bool
	scalarVal int32
}

// determineLength implements the length-determination scan of spec
// §4.7: an explicit non-negative LengthMarker wins outright; a negative
// one is ignored (spec §8 boundary behavior) and length falls back to
// the minimum size among vector-like arguments.
func determineLength(args []Argument) (n int, explicit bool) {
	for _, a := range args {
		if lm, ok := a.(LengthMarker); ok && lm.N >= 0 {
			return lm.N, true
		}
	}
	min := -1
	for _, a := range args {
		var size int
		switch v := a.(type) {
		case HostFloats:
			size = len(v)
		case *BufferValue:
			// A freshly created, still-empty BufferValue (the
			// conventional way to pass a not-yet-sized output slot,
			// e.g. NewBufferValue(nil)) carries no data yet and must
			// not drag the computed length down to zero; it is sized
			// by whichever other argument actually constrains N.
			if v.Size() == 0 {
				continue
			}
			size = v.Size()
		default:
			continue
		}
		if min == -1 || size < min {
			min = size
		}
	}
	if min == -1 {
		min = 0
	}
	return min, false
}

// normalizeArgs produces exactly one normalizedArg per invocation
// argument, per spec §4.7, binding and scheduling uploads as needed. If
// no explicit length marker was present, a synthetic trailing one is
// appended.
func (e *Engine) normalizeArgs(args []Argument, n int, explicitLength bool) ([]normalizedArg, error) {
	out := make([]normalizedArg, 0, len(args)+1)
	for i, a := range args {
		switch v := a.(type) {
		case *BufferValue:
			if v.IsBound() && v.Size() != n {
				return nil, newArgumentTypeError(i, "%w: position %d: buffer already bound at size %d, cannot reuse at size %d", ErrBadArgument, i, v.Size(), n)
			}
			v.resize(n)
			if err := v.bind(e); err != nil {
				return nil, err
			}
			out = append(out, normalizedArg{buffer: v})
		case LengthMarker:
			out = append(out, normalizedArg{isScalar: true, scalarVal: int32(n)})
		case HostFloats:
			bv := NewBufferValue(v)
			bv.resize(n)
			if err := bv.bind(e); err != nil {
				return nil, err
			}
			out = append(out, normalizedArg{buffer: bv})
		default:
			return nil, newArgumentTypeError(i, "%w: position %d: unsupported argument type %T", ErrBadArgument, i, a)
		}
	}
	if !explicitLength {
		out = append(out, normalizedArg{isScalar: true, scalarVal: int32(n)})
	}
	return out, nil
}

// checkSignature implements spec §4.7's signature check: arity must
// match exactly, and each position's kind must agree with the
// interface's declared direction (a scalar slot accepts only a scalar
// length marker; an input/output slot accepts only a buffer).
func checkSignature(iface KernelInterface, args []normalizedArg) error {
	if len(args) != len(iface.Args) {
		return fmt.Errorf("%w: kernel %q expects %d arguments, got %d", ErrArityMismatch, iface.Name, len(iface.Args), len(args))
	}
	for i, dir := range iface.Args {
		a := args[i]
		if dir == ArgScalar && !a.isScalar {
			return newArgumentTypeError(i, "%w: position %d: kernel %q expects a scalar, got a buffer", ErrArgumentType, i, iface.Name)
		}
		if dir != ArgScalar && a.isScalar {
			return newArgumentTypeError(i, "%w: position %d: kernel %q expects a float buffer, got a scalar", ErrArgumentType, i, iface.Name)
		}
	}
	return nil
}

// designatedOutput picks the job's output BufferValue: by convention the
// first interface-declared output argument, falling back to the first
// buffer argument if the interface declares none (spec §4.7).
func designatedOutput(iface KernelInterface, args []normalizedArg) *BufferValue {
	for i, dir := range iface.Args {
		if dir == ArgOutput && !args[i].isScalar {
			return args[i].buffer
		}
	}
	for _, a := range args {
		if !a.isScalar {
			return a.buffer
		}
	}
	return nil
}

// Submit constructs a Job from a symbolic Invocation and enqueues it
// onto the dispatcher, returning immediately. All pre-submit checks are
// synchronous; any failure here is the caller's bug, never delivered
// through the result queue (spec §7).
func (e *Engine) Submit(inv Invocation) error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state != stateOpen {
		return ErrNotConnected
	}

	name, err := resolveKernelName(inv.Kernel)
	if err != nil {
		return err
	}

	iface, ok := e.interfaces[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKernel, name)
	}

	n, explicit := determineLength(inv.Args)

	normArgs, err := e.normalizeArgs(inv.Args, n, explicit)
	if err != nil {
		return err
	}

	if err := checkSignature(iface, normArgs); err != nil {
		return err
	}

	j, err := e.buildJob(name, iface, normArgs, n)
	if err != nil {
		return err
	}

	e.statsMu.Lock()
	e.stats.JobsSubmitted++
	e.statsMu.Unlock()

	e.submitCh <- j
	return nil
}

func (e *Engine) buildJob(name string, iface KernelInterface, args []normalizedArg, n int) (*job, error) {
	kernel, err := e.program.CreateKernel(name)
	if err != nil {
		return nil, fmt.Errorf("%w: create kernel %q: %v", ErrDevice, name, err)
	}

	jobArgs := make([]jobArg, len(args))
	for i, a := range args {
		if a.isScalar {
			if err := kernel.SetArg(i, a.scalarVal); err != nil {
				return nil, fmt.Errorf("%w: bind scalar argument %d: %v", ErrDevice, i, err)
			}
			jobArgs[i] = jobArg{scalar: a.scalarVal}
			continue
		}
		handle, err := a.buffer.asArgument()
		if err != nil {
			return nil, err
		}
		if err := kernel.SetArg(i, handle); err != nil {
			return nil, fmt.Errorf("%w: bind buffer argument %d: %v", ErrDevice, i, err)
		}
		jobArgs[i] = jobArg{buffer: a.buffer}
	}

	// designatedOutput is nil for a kernel with zero vector parameters
	// (spec §8's boundary behavior: "a kernel with zero vector
	// parameters accepts an invocation with only a length marker").
	// runJob treats a nil output as a no-download job and pushes a
	// zero-length sentinel result instead.
	output := designatedOutput(iface, args)

	return &job{kernel: kernel, n: n, args: jobArgs, output: output}, nil
}

// dispatchLoop is the single dispatcher thread started by Open. It owns
// the engine's default command queue exclusively; no other goroutine
// ever calls into it.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for j := range e.submitCh {
		e.runJob(j)
	}
}

func (e *Engine) runJob(j *job) {
	// Every bound buffer argument is (re-)uploaded before launch: the
	// engine has no cheap way to know whether a caller mutated a
	// BufferValue's host-side contents since the last dispatch, and a
	// redundant upload of an unmodified buffer is harmless. The output
	// buffer's upload is likewise harmless since the kernel overwrites it.
	for _, a := range j.args {
		if a.buffer != nil {
			if err := a.buffer.upload(); err != nil {
				e.failJob(err)
				return
			}
			e.statsMu.Lock()
			e.stats.BytesUploaded += uint64(a.buffer.ByteCount())
			e.statsMu.Unlock()
		}
	}

	if err := e.queue.EnqueueNDRangeKernel(j.kernel, j.n); err != nil {
		e.failJob(fmt.Errorf("%w: enqueue kernel: %v", ErrDevice, err))
		return
	}
	if err := e.queue.Finish(); err != nil {
		e.failJob(fmt.Errorf("%w: wait for kernel completion: %v", ErrDevice, err))
		return
	}

	// A kernel with zero vector parameters has no output buffer to
	// download (spec §8): push a zero-length sentinel result instead of
	// dereferencing a nil output.
	output := j.output
	if output == nil {
		output = NewBufferValue(nil)
	} else if err := output.download(); err != nil {
		e.failJob(err)
		return
	}

	e.statsMu.Lock()
	e.stats.JobsCompleted++
	e.stats.BytesDownloaded += uint64(output.ByteCount())
	e.statsMu.Unlock()

	e.results.push(output)
}

func (e *Engine) failJob(err error) {
	e.log.WithError(err).Error("gpu: job failed in dispatcher")
	e.statsMu.Lock()
	e.stats.JobsFailed++
	e.statsMu.Unlock()
	e.results.push(newErrorBufferValue(err))
}

// Read blocks until a result is available, the context is done, or the
// engine is closed and the result queue drains — at which point it
// returns the terminator (nil, false).
func (e *Engine) Read(ctx context.Context) (*BufferValue, bool) {
	type popResult struct {
		v  *BufferValue
		ok bool
	}
	done := make(chan popResult, 1)
	go func() {
		v, ok := e.results.pop()
		done <- popResult{v, ok}
	}()

	select {
	case r := <-done:
		return r.v, r.ok
	case <-ctx.Done():
		return nil, false
	}
}

// Close stops the dispatcher from accepting new jobs, waits for any
// in-flight job to finish, closes the result queue (waking any blocked
// reader with the terminator), and releases GPU resources. closed is
// terminal.
func (e *Engine) Close() error {
	e.mu.Lock()
	switch e.state {
	case stateClosed:
		e.mu.Unlock()
		return nil
	case stateUnopened:
		e.mu.Unlock()
		return ErrNotConnected
	}
	e.state = stateClosed
	close(e.submitCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.results.close()

	e.queue.Release()
	e.ctx.Release()
	return nil
}

// Stats returns a snapshot of the engine's activity counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Package gpu bridges a symbolic hypergraph runtime to OpenCL compute
// devices. A caller names a kernel and a list of argument vectors; the
// engine compiles (or reuses a cached binary of) the kernel program,
// marshals the arguments into device buffers, enqueues the kernel on a
// dedicated dispatch thread, and delivers the output vector through a
// bounded result queue.
//
// The package does not know anything about the hypergraph runtime's own
// node or value types — see symbolic.go for the narrow Argument contract
// a caller adapts its own types to before calling Engine.Submit.
package gpu

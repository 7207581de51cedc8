package gpu

// jobArg is one bound argument slot: either a device buffer or a scalar
// integer (the length convention from spec §4.7).
type jobArg struct {
	buffer *BufferValue // nil for a scalar
	scalar int32
}

// job is an immutable description of one dispatch, constructed only by
// Engine.Submit and consumed only by the dispatcher thread.
type job struct {
	kernel oclKernel
	n      int
	args   []jobArg
	output *BufferValue
}

package gpu

import "github.com/sirupsen/logrus"

// Options configures an Engine. The zero value is invalid; construct
// with DefaultOptions and override fields as needed, in the manner of
// orneryd/nornicdb's gpu.Config/DefaultConfig.
type Options struct {
	// CacheEnabled gates the on-disk binary cache (spec §4.3's open
	// question: caching is a configurable option, default on).
	CacheEnabled bool
	// CacheRoot overrides the cache root directory; empty means
	// resolve via the user home / "/tmp" fallback rule.
	CacheRoot string
	// SubmitQueueCapacity bounds the caller-to-dispatcher submission
	// channel.
	SubmitQueueCapacity int
	// ResultQueueCapacity bounds the result FIFO the dispatcher pushes
	// onto.
	ResultQueueCapacity int
	// Logger receives all of this package's log output. Defaults to
	// logrus's standard logger, at whatever level it is set to, if nil.
	Logger *logrus.Logger
}

// DefaultOptions returns the engine's default configuration.
func DefaultOptions() Options {
	return Options{
		CacheEnabled:        true,
		SubmitQueueCapacity: 8,
		ResultQueueCapacity: 8,
	}
}

func (o Options) logger() *logrus.Entry {
	l := o.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithField("component", "gpu")
}

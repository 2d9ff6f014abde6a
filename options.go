package asyncarray

type options struct {
	runtime *Runtime
}

// Option configures buffer construction.
type Option func(*options)

// WithRuntime places the buffer on rt instead of the process-wide runtime.
//
// If nil is passed, Default() is used.
func WithRuntime(rt *Runtime) Option {
	return func(o *options) {
		o.runtime = rt
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.runtime == nil {
		o.runtime = Default()
	}
	return o
}

package device

// Completer runs host code after all work enqueued on a stream so far.
type Completer interface {
	// EnqueueCompletion registers fn to run exactly once, strictly after
	// every operation enqueued on the stream before this call. An error
	// means fn will never run.
	EnqueueCompletion(fn func()) error
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(fn func()) error

// EnqueueCompletion implements Completer.
func (f CompleterFunc) EnqueueCompletion(fn func()) error { return f(fn) }

// HostFuncLauncher is implemented by streams that can launch a host function
// in stream order.
type HostFuncLauncher interface {
	LaunchHostFunc(fn func()) error
}

// StatusCallbackAdder is implemented by streams whose callbacks receive the
// stream status (nil when all prior work succeeded).
type StatusCallbackAdder interface {
	AddCallback(fn func(status error)) error
}

// HostTaskSubmitter is implemented by queues that accept host tasks ordered
// after previously submitted work.
type HostTaskSubmitter interface {
	SubmitHostTask(task func()) error
}

// CompleterFor returns the asynchronous completion hook of s, if it has one.
//
// Preference order: Completer, HostFuncLauncher, StatusCallbackAdder,
// HostTaskSubmitter. ok is false when s offers none of them.
func CompleterFor(s Stream) (c Completer, ok bool) {
	switch v := s.(type) {
	case nil:
		return nil, false
	case Completer:
		return v, true
	case HostFuncLauncher:
		return CompleterFunc(v.LaunchHostFunc), true
	case StatusCallbackAdder:
		return CompleterFunc(func(fn func()) error {
			// A failed stream still retires its work; the callback runs anyway.
			return v.AddCallback(func(error) { fn() })
		}), true
	case HostTaskSubmitter:
		return CompleterFunc(v.SubmitHostTask), true
	default:
		return nil, false
	}
}

package sim

import "github.com/hupe1980/asyncarray/device"

type hostFuncStream struct{ *Stream }

func (s hostFuncStream) LaunchHostFunc(fn func()) error {
	return s.enqueueHost("host_func", fn)
}

type callbackStream struct{ *Stream }

func (s callbackStream) AddCallback(fn func(status error)) error {
	return s.enqueueHost("stream_callback", func() { fn(s.Err()) })
}

type hostTaskStream struct{ *Stream }

func (s hostTaskStream) SubmitHostTask(task func()) error {
	return s.enqueueHost("host_task", task)
}

var (
	_ device.HostFuncLauncher    = hostFuncStream{}
	_ device.StatusCallbackAdder = callbackStream{}
	_ device.HostTaskSubmitter   = hostTaskStream{}
	_ device.Stream              = (*Stream)(nil)
)

func wrap(s *Stream, f Flavor) device.Stream {
	switch f {
	case FlavorHostFunc:
		return hostFuncStream{s}
	case FlavorStreamCallback:
		return callbackStream{s}
	case FlavorHostTask:
		return hostTaskStream{s}
	default:
		return s
	}
}

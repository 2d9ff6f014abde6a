// Package sim implements a simulated accelerator.
//
// The simulated device behaves like a real one as far as ordering and
// lifetime are concerned:
//
//   - device memory lives in an off-heap arena and is only reachable through
//     device pointers,
//   - every stream is a goroutine draining its own FIFO, so operations on one
//     stream run strictly in submission order and asynchronously to the
//     submitting goroutine,
//   - copies are serviced by a bounded set of copy engines and can be
//     throttled to a configured bandwidth,
//   - freed device memory can be poisoned, which turns a premature free into
//     visibly wrong data instead of silently correct data.
//
// # Flavors
//
// Real accelerator APIs disagree on how to run host code after queued work.
// Config.Flavor selects which capability the streams expose through
// Device.Stream:
//
//	FlavorHostFunc        device.HostFuncLauncher
//	FlavorStreamCallback  device.StatusCallbackAdder
//	FlavorHostTask        device.HostTaskSubmitter
//	FlavorBlocking        none (callers must Synchronize)
//
// # Usage
//
//	dev, err := sim.New(sim.Config{Flavor: sim.FlavorHostFunc})
//	if err != nil { ... }
//	defer dev.Close()
//
//	s := dev.Current()
//	release := s.Hold()            // stall the stream
//	s.Launch("scale", kernel)      // queued behind the hold
//	release()
//	_ = s.Synchronize()
//
//	for _, ev := range dev.Trace() {
//	    fmt.Println(ev.Stream, ev.Kind, ev.Name)
//	}
package sim

package compile

// AsyncTimerBlocker brackets the backend's Context.Compile call (spec
// §5): the host embedding this compiler may need to suspend its own
// async-timer-driven preemption for the duration of a backend compile,
// since the codegen backend is out of this module's control and may not
// be reentrant with respect to the host's signal handling. Production
// implementations are supplied by the embedding host; noopAsyncTimers is
// the default NewDriver installs in Driver.Async (used e.g. in tests
// against backendtest.Recorder). Function calls Driver.Async directly, so
// it must not be nil.
type AsyncTimerBlocker interface {
	BlockAsyncTimers()
	UnblockAsyncTimers()
}

type noopAsyncTimers struct{}

func (noopAsyncTimers) BlockAsyncTimers()   {}
func (noopAsyncTimers) UnblockAsyncTimers() {}

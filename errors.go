package tlspump

import "fmt"

// EngineFailure wraps an error returned by the engine's Wrap, Unwrap, or a
// delegated task. It is always fatal.
type EngineFailure struct {
	Op    string
	Cause error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("tlspump: engine failure during %s: %v", e.Op, e.Cause)
}

func (e *EngineFailure) Unwrap() error { return e.Cause }

// DownstreamFailure wraps an error returned while emitting a frame to one of
// the downstream subscribers, or reported when the read buffer exceeds its
// safety cap. It is always fatal.
type DownstreamFailure struct {
	Side  string
	Cause error
}

func (e *DownstreamFailure) Error() string {
	return fmt.Sprintf("tlspump: downstream failure on %s side: %v", e.Side, e.Cause)
}

func (e *DownstreamFailure) Unwrap() error { return e.Cause }

// UpstreamFailure wraps an error signaled by an upstream subscription (or by
// cancellation of the pump's lifecycle context). It is always fatal.
type UpstreamFailure struct {
	Side  string
	Cause error
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("tlspump: upstream failure on %s side: %v", e.Side, e.Cause)
}

func (e *UpstreamFailure) Unwrap() error { return e.Cause }

// ProtocolViolation reports an engine status outside the set this pump
// understands. It is always fatal and indicates either an engine bug or an
// unsupported engine extension.
type ProtocolViolation struct {
	Detail string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("tlspump: protocol violation: %s", e.Detail)
}

func protocolViolationf(format string, args ...interface{}) error {
	return &ProtocolViolation{Detail: fmt.Sprintf(format, args...)}
}

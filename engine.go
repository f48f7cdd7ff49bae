package tlspump

import "fmt"

// Status is the per-call outcome of a Wrap or Unwrap operation, mirroring the
// small set of statuses a TLS engine can report for a single record.
type Status int

const (
	// StatusOK means the engine consumed and/or produced bytes normally.
	StatusOK Status = iota
	// StatusClosed means the engine has closed (or is closing) this side of
	// the connection; no further application bytes will be produced.
	StatusClosed
	// StatusBufferUnderflow means the engine needs more input bytes before
	// it can make progress.
	StatusBufferUnderflow
	// StatusBufferOverflow means the destination buffer was too small for
	// the engine's output; the caller must grow it and retry.
	StatusBufferOverflow
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusClosed:
		return "CLOSED"
	case StatusBufferUnderflow:
		return "BUFFER_UNDERFLOW"
	case StatusBufferOverflow:
		return "BUFFER_OVERFLOW"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// HandshakeStatus is the engine's report of what it needs in order to make
// further handshake progress.
type HandshakeStatus int

const (
	// HandshakeNotHandshaking means the engine is not currently negotiating.
	HandshakeNotHandshaking HandshakeStatus = iota
	// HandshakeFinished means the engine just completed a handshake.
	HandshakeFinished
	// HandshakeNeedWrap means the engine has bytes it wants to send; the
	// caller must invoke Wrap.
	HandshakeNeedWrap
	// HandshakeNeedUnwrap means the engine needs more peer bytes before it
	// can proceed; the caller must invoke Unwrap once more are available.
	HandshakeNeedUnwrap
	// HandshakeNeedUnwrapAgain means the engine has enough buffered input to
	// make progress on another Unwrap call without new network bytes.
	HandshakeNeedUnwrapAgain
	// HandshakeNeedTask means the engine has delegated tasks that must be
	// run (on any goroutine) before it can proceed.
	HandshakeNeedTask
)

func (h HandshakeStatus) String() string {
	switch h {
	case HandshakeNotHandshaking:
		return "NOT_HANDSHAKING"
	case HandshakeFinished:
		return "FINISHED"
	case HandshakeNeedWrap:
		return "NEED_WRAP"
	case HandshakeNeedUnwrap:
		return "NEED_UNWRAP"
	case HandshakeNeedUnwrapAgain:
		return "NEED_UNWRAP_AGAIN"
	case HandshakeNeedTask:
		return "NEED_TASK"
	default:
		return fmt.Sprintf("HandshakeStatus(%d)", int(h))
	}
}

// EngineResult is the value returned from a single Wrap or Unwrap call.
type EngineResult struct {
	Status          Status
	Handshake       HandshakeStatus
	BytesConsumed   int
	BytesProduced   int
	// Dest is sliced to exactly BytesProduced bytes of produced output. It
	// is only meaningful when BytesProduced > 0.
	Dest []byte
}

// Handshaking reports whether this result represents an in-progress
// handshake step: the handshake status is neither terminal
// (NotHandshaking/Finished) nor is the engine closed.
func (r EngineResult) Handshaking() bool {
	return r.Handshake != HandshakeNotHandshaking &&
		r.Handshake != HandshakeFinished &&
		r.Status != StatusClosed
}

// DelegatedTask is an opaque, side-effecting unit of work that the engine
// yields while its HandshakeStatus is HandshakeNeedTask. Running it (on any
// goroutine) advances the engine's internal handshake state machine.
type DelegatedTask func() error

// Engine is the contract the pump requires from an opaque TLS engine. It is
// treated as a sealed state machine: the pump never re-implements TLS
// cryptography, it only drives this interface.
//
// Engine is not required to be safe for concurrent Wrap+Unwrap calls from
// different goroutines at the same time; the pump guarantees that Wrap is
// only ever called from the write pipeline's serialized task, and Unwrap is
// only ever called while the read pipeline holds its buffer mutex.
type Engine interface {
	// Wrap encrypts (or otherwise processes) srcBuffers into dst, producing
	// ciphertext (or handshake) bytes.
	Wrap(srcBuffers [][]byte, dst []byte) (EngineResult, error)

	// Unwrap decrypts (or otherwise processes) src into dst, producing
	// plaintext (or handshake) bytes.
	Unwrap(src []byte, dst []byte) (EngineResult, error)

	// DelegatedTasks drains and returns the engine's currently pending
	// delegated tasks, if any. After a batch has run it is called again only
	// while HandshakeStatus still reports HandshakeNeedTask, and draining
	// stops at the first empty slice.
	DelegatedTasks() []DelegatedTask

	// HandshakeStatus reports the engine's current handshake status without
	// performing a Wrap or Unwrap.
	HandshakeStatus() HandshakeStatus

	// PacketBufferSize is the recommended destination buffer size for Wrap.
	PacketBufferSize() int

	// ApplicationBufferSize is the recommended destination buffer size for
	// Unwrap.
	ApplicationBufferSize() int

	// IsInboundDone reports whether the engine has finished processing
	// inbound (peer-to-us) closure.
	IsInboundDone() bool

	// IsOutboundDone reports whether the engine has finished processing
	// outbound (us-to-peer) closure.
	IsOutboundDone() bool

	// ApplicationProtocol returns the negotiated application protocol
	// (ALPN) identifier, or "" if none was negotiated. It is only
	// meaningful after the handshake completes.
	ApplicationProtocol() string
}

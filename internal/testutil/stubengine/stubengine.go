// Package stubengine provides deterministic, hand-rolled fakes of the
// tlspump.Engine contract for use in package tests, rather than a
// generated mock.
package stubengine

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cobalt-tunnel/tlspump"
)

// closeMarker is the reserved 2-byte length value this stub uses to signal
// a simulated close_notify record; it is not a real TLS wire value, purely
// an artifact of this fake's length-framing.
const closeMarker = 0xFFFF

// LengthFramed is a minimal tlspump.Engine that frames each record with a
// 2-byte big-endian length prefix and performs no actual cryptographic
// transformation — "ciphertext" is plaintext with a length header, exactly
// matching the wire format the package's round-trip tests assert against
// (`[00 05 'h' 'e' 'l' 'l' 'o']`).
//
// A LengthFramed may optionally be given a handshake script: a sequence of
// HandshakeStatus values to report, in order. HandshakeStatus never advances
// the script; DelegatedTasks advances past a NEED_TASK step when it hands
// out that step's tasks, and Wrap advances past a NEED_WRAP step. This lets a
// test exercise NEED_TASK/NEED_WRAP/FINISHED sequencing without a real TLS
// stack.
type LengthFramed struct {
	mu sync.Mutex

	script      []tlspump.HandshakeStatus
	scriptIdx   int
	alpn        string
	tasksPerGen int // number of DelegatedTasks returned for each NEED_TASK step
	taskErr     error
	unwrapErr   error

	inboundDone  bool
	outboundDone bool
}

// NewLengthFramed creates an engine with no handshake (HandshakeNotHandshaking
// throughout), suitable for S1/S2/S5/S6.
func NewLengthFramed() *LengthFramed {
	return &LengthFramed{script: []tlspump.HandshakeStatus{tlspump.HandshakeNotHandshaking}}
}

// NewScriptedHandshake creates an engine that reports NEED_TASK twice, then
// NEED_WRAP, then FINISHED with the given ALPN, matching scenario S3. Each
// NEED_TASK step yields one delegated task.
func NewScriptedHandshake(alpn string) *LengthFramed {
	return &LengthFramed{
		script: []tlspump.HandshakeStatus{
			tlspump.HandshakeNeedTask,
			tlspump.HandshakeNeedTask,
			tlspump.HandshakeNeedWrap,
			tlspump.HandshakeFinished,
			tlspump.HandshakeNotHandshaking,
		},
		alpn:        alpn,
		tasksPerGen: 1,
	}
}

// WithTaskError makes every subsequent delegated task return err instead of
// succeeding, for fatal-path tests (the analogue of S5 on the task side).
func (e *LengthFramed) WithTaskError(err error) *LengthFramed {
	e.mu.Lock()
	e.taskErr = err
	e.mu.Unlock()
	return e
}

// WithUnwrapError makes every subsequent Unwrap call fail with err, for the
// fatal-engine-error path (scenario S5).
func (e *LengthFramed) WithUnwrapError(err error) *LengthFramed {
	e.mu.Lock()
	e.unwrapErr = err
	e.mu.Unlock()
	return e
}

// PacketBufferSize implements tlspump.Engine.
func (e *LengthFramed) PacketBufferSize() int { return 4096 }

// ApplicationBufferSize implements tlspump.Engine.
func (e *LengthFramed) ApplicationBufferSize() int { return 4096 }

// ApplicationProtocol implements tlspump.Engine.
func (e *LengthFramed) ApplicationProtocol() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alpn
}

// IsInboundDone implements tlspump.Engine.
func (e *LengthFramed) IsInboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inboundDone
}

// IsOutboundDone implements tlspump.Engine.
func (e *LengthFramed) IsOutboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outboundDone
}

// HandshakeStatus implements tlspump.Engine: reports the current step of
// the script without advancing it.
func (e *LengthFramed) HandshakeStatus() tlspump.HandshakeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentScriptStatus()
}

func (e *LengthFramed) currentScriptStatus() tlspump.HandshakeStatus {
	if len(e.script) == 0 {
		return tlspump.HandshakeNotHandshaking
	}
	if e.scriptIdx >= len(e.script) {
		return e.script[len(e.script)-1]
	}
	return e.script[e.scriptIdx]
}

// advanceScript moves to the next step, if any.
func (e *LengthFramed) advanceScript() {
	if e.scriptIdx < len(e.script)-1 {
		e.scriptIdx++
	}
}

// DelegatedTasks implements tlspump.Engine: yields tasksPerGen tasks while
// the current script step is NEED_TASK and advances the script to the next
// step in the same call, before the caller has run them. Outside a
// NEED_TASK step it returns nil.
func (e *LengthFramed) DelegatedTasks() []tlspump.DelegatedTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentScriptStatus() != tlspump.HandshakeNeedTask {
		return nil
	}

	n := e.tasksPerGen
	if n <= 0 {
		n = 1
	}
	tasks := make([]tlspump.DelegatedTask, n)
	for i := range tasks {
		tasks[i] = e.makeTask()
	}
	e.advanceScript()
	return tasks
}

func (e *LengthFramed) makeTask() tlspump.DelegatedTask {
	return func() error {
		e.mu.Lock()
		err := e.taskErr
		e.mu.Unlock()
		return err
	}
}

// Wrap implements tlspump.Engine.
func (e *LengthFramed) Wrap(srcBuffers [][]byte, dst []byte) (tlspump.EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := e.currentScriptStatus()

	if status == tlspump.HandshakeNeedWrap {
		e.advanceScript()
		if len(dst) < 2 {
			return tlspump.EngineResult{Status: tlspump.StatusBufferOverflow}, nil
		}
		binary.BigEndian.PutUint16(dst, 0)
		return tlspump.EngineResult{
			Status:        tlspump.StatusOK,
			Handshake:     e.currentScriptStatus(),
			BytesProduced: 2,
			Dest:          dst[:2],
		}, nil
	}

	if e.inboundDone && !e.outboundDone {
		if len(dst) < 2 {
			return tlspump.EngineResult{Status: tlspump.StatusBufferOverflow}, nil
		}
		binary.BigEndian.PutUint16(dst, closeMarker)
		e.outboundDone = true
		return tlspump.EngineResult{
			Status:        tlspump.StatusClosed,
			Handshake:     tlspump.HandshakeNotHandshaking,
			BytesProduced: 2,
			Dest:          dst[:2],
		}, nil
	}

	total := 0
	for _, b := range srcBuffers {
		total += len(b)
	}
	if total == 0 {
		// no application bytes and no handshake/closure need: a
		// handshake-trigger-only wrap call with nothing to say.
		return tlspump.EngineResult{Status: tlspump.StatusOK, Handshake: status}, nil
	}

	needed := 2 + total
	if len(dst) < needed {
		return tlspump.EngineResult{Status: tlspump.StatusBufferOverflow}, nil
	}
	if total > 0xFFFE {
		return tlspump.EngineResult{}, fmt.Errorf("stubengine: record of %d bytes exceeds 2-byte length framing", total)
	}

	binary.BigEndian.PutUint16(dst, uint16(total))
	off := 2
	consumed := 0
	for _, b := range srcBuffers {
		copy(dst[off:], b)
		off += len(b)
		consumed += len(b)
	}

	return tlspump.EngineResult{
		Status:        tlspump.StatusOK,
		Handshake:     status,
		BytesConsumed: consumed,
		BytesProduced: needed,
		Dest:          dst[:needed],
	}, nil
}

// Unwrap implements tlspump.Engine.
func (e *LengthFramed) Unwrap(src []byte, dst []byte) (tlspump.EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unwrapErr != nil {
		return tlspump.EngineResult{}, e.unwrapErr
	}

	if len(src) < 2 {
		return tlspump.EngineResult{Status: tlspump.StatusBufferUnderflow}, nil
	}
	length := binary.BigEndian.Uint16(src)

	if length == closeMarker {
		e.inboundDone = true
		return tlspump.EngineResult{
			Status:        tlspump.StatusClosed,
			Handshake:     tlspump.HandshakeNeedWrap,
			BytesConsumed: 2,
		}, nil
	}

	if len(src) < 2+int(length) {
		return tlspump.EngineResult{Status: tlspump.StatusBufferUnderflow}, nil
	}
	if len(dst) < int(length) {
		return tlspump.EngineResult{Status: tlspump.StatusBufferOverflow}, nil
	}

	copy(dst, src[2:2+int(length)])
	status := e.currentScriptStatus()
	return tlspump.EngineResult{
		Status:        tlspump.StatusOK,
		Handshake:     status,
		BytesConsumed: 2 + int(length),
		BytesProduced: int(length),
		Dest:          dst[:length],
	}, nil
}

// SignalPeerClose marks the inbound side done directly, as if Unwrap had
// already observed a close_notify, so a test can drive the writer's
// close-ack path without also wiring a reader side.
func (e *LengthFramed) SignalPeerClose() {
	e.mu.Lock()
	e.inboundDone = true
	e.mu.Unlock()
}

package tlspump

import (
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// handshakeMode is the coarse handshake phase, packed alongside the
// doingTasks bit into a single atomically-updated uint32.
type handshakeMode uint32

const (
	modeNotHandshaking handshakeMode = 0
	modeHandshaking    handshakeMode = 1
)

func (m handshakeMode) String() string {
	if m == modeHandshaking {
		return "Handshaking"
	}
	return "NotHandshaking"
}

const doingTasksBit uint32 = 1 << 8

// handshakeState is the shared composite state: an orthogonal (mode,
// doingTasks) pair updated only via atomic read-modify-write, packed into
// a single sync/atomic.Uint32 with explicit CAS loops rather than bit
// tricks spread across call sites.
type handshakeState struct {
	v atomic.Uint32
}

func (s *handshakeState) snapshot() (handshakeMode, bool) {
	raw := s.v.Load()
	return handshakeMode(raw &^ doingTasksBit), raw&doingTasksBit != 0
}

// String reports the composite state as "<mode>" or "<mode>+DoingTasks",
// used by Pump.Snapshot for diagnostics.
func (s *handshakeState) String() string {
	mode, doingTasks := s.snapshot()
	if doingTasks {
		return mode.String() + "+DoingTasks"
	}
	return mode.String()
}

// setHandshaking unconditionally sets the mode to Handshaking, preserving
// whatever the doingTasks bit currently is.
func (s *handshakeState) setHandshaking() {
	for {
		old := s.v.Load()
		next := (old & doingTasksBit) | uint32(modeHandshaking)
		if s.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// clearHandshaking atomically resets the mode to NotHandshaking, preserving
// doingTasks, and reports the mode that was in effect beforehand.
func (s *handshakeState) clearHandshaking() handshakeMode {
	for {
		old := s.v.Load()
		prevMode := handshakeMode(old &^ doingTasksBit)
		next := old & doingTasksBit
		if s.v.CompareAndSwap(old, next) {
			return prevMode
		}
	}
}

// trySetDoingTasks atomically sets the doingTasks bit and reports whether it
// was already set (in which case the caller must not proceed: another
// goroutine is already draining delegated tasks).
func (s *handshakeState) trySetDoingTasks() (alreadySet bool) {
	for {
		old := s.v.Load()
		if old&doingTasksBit != 0 {
			return true
		}
		if s.v.CompareAndSwap(old, old|doingTasksBit) {
			return false
		}
	}
}

// clearDoingTasks atomically clears the doingTasks bit.
func (s *handshakeState) clearDoingTasks() {
	for {
		old := s.v.Load()
		next := old &^ doingTasksBit
		if s.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// handshakeCaller identifies which pipeline invoked DoHandshake, purely for
// dispatch of the NEED_WRAP case.
type handshakeCaller int

const (
	callerReader handshakeCaller = iota
	callerWriter
)

func (c handshakeCaller) String() string {
	if c == callerReader {
		return "reader"
	}
	return "writer"
}

// handshakeCoordinator arbitrates delegated-task execution and cross-side
// wakeups between the ReadPipeline and the WritePipeline. It never blocks
// holding a lock: it only ever enqueues an element on the writer's queue or
// hands work to the executor.
type handshakeCoordinator struct {
	state    handshakeState
	engine   Engine
	executor Executor
	writer   *WritePipeline
	resume   func() // resumeActivity: reschedules both pipelines
	onFatal  func(error)
	log      hclog.Logger
}

// doHandshake dispatches on the engine's current handshake status. It
// returns true if the caller may continue its own processData loop
// normally (no task deferral, no cross-wake needed).
func (c *handshakeCoordinator) doHandshake(result EngineResult, caller handshakeCaller) bool {
	c.state.setHandshaking()

	switch result.Handshake {
	case HandshakeNeedTask:
		if c.state.trySetDoingTasks() {
			// someone else is already draining tasks
			return false
		}
		c.runDelegatedTasks()
		return false // runDelegatedTasks resumes activity when done

	case HandshakeNeedWrap:
		if caller == callerReader {
			c.writer.AddData(handshakeTriggerElement())
			return false
		}
		// caller == writer: its own loop will satisfy the need directly.
		return true

	case HandshakeNeedUnwrap, HandshakeNeedUnwrapAgain:
		// Nothing to do: peer bytes flowing into the reader will resolve
		// this.
		return true

	default:
		c.onFatal(protocolViolationf("unexpected handshake status %v from %s", result.Handshake, caller))
		return false
	}
}

// runDelegatedTasks drains and runs the engine's delegated tasks on the
// configured Executor, re-draining as long as the engine keeps reporting
// HandshakeNeedTask, then clears doingTasks and resumes both pipelines.
func (c *handshakeCoordinator) runDelegatedTasks() {
	tasks := c.engine.DelegatedTasks()
	if len(tasks) == 0 {
		c.state.clearDoingTasks()
		return
	}

	c.executor.Submit(func() {
		next := tasks
		for {
			for _, t := range next {
				if err := t(); err != nil {
					c.state.clearDoingTasks()
					c.onFatal(&EngineFailure{Op: "delegated task", Cause: err})
					return
				}
			}
			if c.engine.HandshakeStatus() != HandshakeNeedTask {
				break
			}
			next = c.engine.DelegatedTasks()
			if len(next) == 0 {
				break
			}
		}
		c.state.clearDoingTasks()
		c.resume()
	})
}

// doClosure acknowledges a peer close_notify by ensuring the writer
// produces the matching close_notify frame.
func (c *handshakeCoordinator) doClosure(result EngineResult, closeNotifyReceived *atomic.Bool) {
	if result.Handshake == HandshakeNeedWrap && c.engine.IsInboundDone() && !c.engine.IsOutboundDone() {
		closeNotifyReceived.Store(true)
		c.doHandshake(result, callerReader)
	}
}

package tlspump

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// readBackpressureTarget is the readable-byte threshold above which the
// ReadPipeline withholds new upstream credit.
const readBackpressureTarget = 16 * 1024

// ReadPipeline decrypts upstream ciphertext into downstream plaintext. It
// owns the ReadBuffer and is driven by its own SequentialScheduler so that
// processData never runs concurrently with itself, while the WritePipeline
// runs independently on its own scheduler.
type ReadPipeline struct {
	subscriberWrapper

	id int

	engine Engine
	hs     *handshakeCoordinator
	stats  *pumpStats
	log    hclog.Logger

	bufMu sync.Mutex
	buf   *readBuffer

	completing atomic.Bool

	scheduler *SequentialScheduler

	resumeActivity      func()
	surfaceALPN         func()
	fatal               func(error)
	complete            func(error)
	closeNotifyReceived *atomic.Bool
}

func newReadPipeline(id int, engine Engine, hs *handshakeCoordinator, stats *pumpStats, log hclog.Logger, readBufferCap int, closeNotifyReceived *atomic.Bool, resumeActivity, surfaceALPN func(), fatal, complete func(error)) *ReadPipeline {
	rp := &ReadPipeline{
		id:                  id,
		engine:              engine,
		hs:                  hs,
		stats:               stats,
		log:                 log.Named("reader"),
		buf:                 newReadBuffer(readBufferCap),
		closeNotifyReceived: closeNotifyReceived,
		resumeActivity:      resumeActivity,
		surfaceALPN:         surfaceALPN,
		fatal:               fatal,
		complete:            complete,
	}
	rp.subscriberWrapper.upstreamWindowUpdate = rp.upstreamWindowUpdate
	rp.scheduler = NewSequentialScheduler(rp.processData)
	return rp
}

func (rp *ReadPipeline) String() string {
	return fmt.Sprintf("ReadPipeline(%d)", rp.id)
}

// OnSubscribe implements Subscriber: records the upstream subscription used
// to request more ciphertext credit.
func (rp *ReadPipeline) OnSubscribe(sub Subscription) {
	rp.setUpstreamSubscription(sub)
}

// OnNext implements Subscriber: delivers ciphertext frames from upstream.
func (rp *ReadPipeline) OnNext(frame Frame, final bool) error {
	rp.Incoming(frame, final)
	return nil
}

// OnError implements Subscriber: an upstream failure is always fatal, and is
// propagated to this pipeline's own downstream subscriber since no further
// plaintext will follow.
func (rp *ReadPipeline) OnError(err error) {
	wrapped := &UpstreamFailure{Side: "read", Cause: err}
	rp.fail(wrapped)
	rp.fatal(wrapped)
}

// Incoming appends each buffer's bytes to the ReadBuffer and schedules
// processing. It never blocks.
func (rp *ReadPipeline) Incoming(buffers Frame, complete bool) {
	rp.bufMu.Lock()
	var growErr error
	for _, b := range buffers {
		if growErr == nil {
			growErr = rp.buf.append(b)
		}
	}
	if complete {
		rp.completing.Store(true)
	}
	rp.bufMu.Unlock()

	if growErr != nil {
		rp.fatal(growErr)
		return
	}

	rp.scheduler.RunOrSchedule()
}

// upstreamWindowUpdate withholds new upstream credit once the ReadBuffer
// holds more than readBackpressureTarget unconsumed bytes.
func (rp *ReadPipeline) upstreamWindowUpdate(current, _ int64) int64 {
	rp.bufMu.Lock()
	remaining := rp.buf.remaining()
	rp.bufMu.Unlock()
	if remaining > readBackpressureTarget {
		return 0
	}
	if current > 0 {
		return 0
	}
	return 1
}

// Stop stops the ReadPipeline's scheduler. Idempotent.
func (rp *ReadPipeline) Stop() {
	rp.scheduler.Stop()
}

// Resume forces another processData run to be scheduled, used by the
// coordinator to wake the reader after a cross-side state change.
func (rp *ReadPipeline) Resume() {
	rp.scheduler.RunOrSchedule()
}

// ResetDemand resets the outstanding upstream credit counter to zero,
// exposed to collaborators via Pump.ResetReaderDemand.
func (rp *ReadPipeline) ResetDemand() {
	rp.mu.Lock()
	rp.outstandingWin = 0
	rp.mu.Unlock()
}

// bufferOccupancy reports the number of unconsumed ciphertext bytes
// currently held in the ReadBuffer, for Pump.Snapshot.
func (rp *ReadPipeline) bufferOccupancy() int {
	rp.bufMu.Lock()
	defer rp.bufMu.Unlock()
	return rp.buf.remaining()
}

// unwrapOnce drives a single Engine.Unwrap call to completion, retrying
// with a larger destination on BUFFER_OVERFLOW and preserving already
// produced bytes across retries.
func (rp *ReadPipeline) unwrapOnce(src []byte) (EngineResult, error) {
	dst := make([]byte, rp.engine.ApplicationBufferSize())
	produced := 0
	consumedTotal := 0
	remaining := src

	for {
		result, err := rp.engine.Unwrap(remaining, dst[produced:])
		if err != nil {
			return EngineResult{}, err
		}
		consumedTotal += result.BytesConsumed
		produced += result.BytesProduced
		remaining = remaining[result.BytesConsumed:]

		if result.Status == StatusBufferOverflow {
			grown := make([]byte, rp.engine.ApplicationBufferSize()+produced)
			copy(grown, dst[:produced])
			dst = grown
			continue
		}

		final := EngineResult{
			Status:        result.Status,
			Handshake:     result.Handshake,
			BytesConsumed: consumedTotal,
			BytesProduced: produced,
			Dest:          dst[:produced],
		}
		return final, nil
	}
}

// processData is the ReadPipeline's serialized work function.
func (rp *ReadPipeline) processData() {
	complete := false

	for {
		rp.bufMu.Lock()
		length := rp.buf.remaining()
		if length == 0 {
			rp.bufMu.Unlock()
			break
		}
		complete = rp.completing.Load()
		result, err := rp.unwrapOnce(rp.buf.bytes())
		if err != nil {
			rp.bufMu.Unlock()
			wrapped := &EngineFailure{Op: "unwrap", Cause: err}
			rp.fail(wrapped)
			rp.fatal(wrapped)
			return
		}
		rp.buf.consume(result.BytesConsumed)
		rp.bufMu.Unlock()

		if result.Status == StatusClosed {
			rp.hs.doClosure(result, rp.closeNotifyReceived)
		}

		if result.BytesProduced > 0 {
			rp.stats.addPlaintextIn(result.BytesProduced)
			if err := rp.outgoing(Frame{result.Dest}, false); err != nil {
				rp.fatal(&DownstreamFailure{Side: "read", Cause: err})
				return
			}
		}

		if result.Status == StatusBufferUnderflow {
			rp.requestMore(int64(length))
			rp.bufMu.Lock()
			grew := rp.buf.remaining() > length
			rp.bufMu.Unlock()
			if grew {
				continue
			}
			return
		}

		if complete && result.Status == StatusClosed {
			if err := rp.outgoing(nil, true); err != nil {
				rp.fatal(&DownstreamFailure{Side: "read", Cause: err})
				return
			}
			rp.scheduler.Stop() // no re-run may emit a second final frame
			rp.complete(nil)
			return
		}

		handshaking := false
		if result.Handshaking() && !complete {
			if rp.hs.doHandshake(result, callerReader) {
				rp.resumeActivity()
			}
			handshaking = true
		} else if prevMode := rp.hs.state.clearHandshaking(); prevMode == modeHandshaking {
			rp.surfaceALPN()
			rp.resumeActivity()
		}

		if handshaking && !complete {
			return
		}
	}

	if !complete {
		rp.bufMu.Lock()
		complete = rp.completing.Load() && rp.buf.remaining() == 0
		rp.bufMu.Unlock()
	}
	if complete {
		rp.surfaceALPN()
		if err := rp.outgoing(nil, true); err != nil {
			rp.fatal(&DownstreamFailure{Side: "read", Cause: err})
			return
		}
		rp.scheduler.Stop()
		rp.complete(nil)
	}
}

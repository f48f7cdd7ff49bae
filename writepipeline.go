package tlspump

import (
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// writeBackpressureCount is the queued-element threshold above which the
// WritePipeline withholds new upstream credit.
const writeBackpressureCount = 10

// WritePipeline encrypts downstream-bound plaintext into ciphertext and
// also drives the handshake's NEED_WRAP side: every queued element (data,
// handshake trigger, or completion sentinel) flows through the same
// Engine.Wrap loop. It owns the write queue and is driven by its own
// SequentialScheduler, independent of the ReadPipeline's.
type WritePipeline struct {
	subscriberWrapper

	id int

	engine Engine
	hs     *handshakeCoordinator
	stats  *pumpStats
	log    hclog.Logger

	queue *writeQueue

	closing atomic.Bool

	scheduler *SequentialScheduler

	resumeActivity func()
	surfaceALPN    func()
	fatal          func(error)
	complete       func(error)

	closeNotifyReceived *atomic.Bool

	backpressureCount int
}

func newWritePipeline(id int, engine Engine, hs *handshakeCoordinator, stats *pumpStats, log hclog.Logger, closeNotifyReceived *atomic.Bool, backpressureCount int, resumeActivity, surfaceALPN func(), fatal, complete func(error)) *WritePipeline {
	if backpressureCount <= 0 {
		backpressureCount = writeBackpressureCount
	}
	wp := &WritePipeline{
		id:                  id,
		engine:              engine,
		hs:                  hs,
		stats:               stats,
		log:                 log.Named("writer"),
		queue:               newWriteQueue(),
		closeNotifyReceived: closeNotifyReceived,
		backpressureCount:   backpressureCount,
		resumeActivity:      resumeActivity,
		surfaceALPN:         surfaceALPN,
		fatal:               fatal,
		complete:            complete,
	}
	wp.subscriberWrapper.upstreamWindowUpdate = wp.upstreamWindowUpdate
	wp.scheduler = NewSequentialScheduler(wp.processData)
	return wp
}

func (wp *WritePipeline) String() string {
	return fmt.Sprintf("WritePipeline(%d)", wp.id)
}

// OnSubscribe implements Subscriber: records the upstream subscription and
// immediately enqueues a handshake-trigger element so that, for a client
// engine, the initial ClientHello gets produced even before any application
// data arrives.
func (wp *WritePipeline) OnSubscribe(sub Subscription) {
	wp.setUpstreamSubscription(sub)
	wp.queue.addElement(handshakeTriggerElement())
	wp.scheduler.RunOrSchedule()
}

// OnNext implements Subscriber: delivers plaintext frames from upstream.
func (wp *WritePipeline) OnNext(frame Frame, final bool) error {
	wp.Incoming(frame, final)
	return nil
}

// OnError implements Subscriber: an upstream failure is always fatal, and is
// propagated to this pipeline's own downstream subscriber since no further
// ciphertext will follow.
func (wp *WritePipeline) OnError(err error) {
	wrapped := &UpstreamFailure{Side: "write", Cause: err}
	wp.fail(wrapped)
	wp.fatal(wrapped)
}

// Incoming enqueues plaintext buffers for encryption and schedules
// processing. It never blocks.
func (wp *WritePipeline) Incoming(buffers Frame, final bool) {
	if len(buffers) > 0 {
		wp.queue.addData(buffers)
	}
	if final {
		wp.queue.addElement(completionElement())
		wp.closing.Store(true)
	}
	wp.scheduler.RunOrSchedule()
}

// AddData enqueues a single element directly, used by the
// handshakeCoordinator to push a handshake-trigger element onto this
// pipeline's queue from the read side.
func (wp *WritePipeline) AddData(e writeElement) {
	wp.queue.addElement(e)
	wp.scheduler.RunOrSchedule()
}

// Closing reports whether the peer's close_notify has been observed, so a
// downstream collaborator knows no further writes are meaningful.
func (wp *WritePipeline) Closing() bool {
	return wp.closeNotifyReceived.Load()
}

// upstreamWindowUpdate withholds new upstream credit once the queue holds
// more than backpressureCount (default writeBackpressureCount) pending
// elements, sentinels included.
func (wp *WritePipeline) upstreamWindowUpdate(current, _ int64) int64 {
	if wp.queueLen() > wp.backpressureCount {
		return 0
	}
	if current > 0 {
		return 0
	}
	return 1
}

func (wp *WritePipeline) queueLen() int {
	wp.queue.mu.Lock()
	defer wp.queue.mu.Unlock()
	return len(wp.queue.elems)
}

// Stop stops the WritePipeline's scheduler. Idempotent.
func (wp *WritePipeline) Stop() {
	wp.scheduler.Stop()
}

// Resume forces another processData run to be scheduled.
func (wp *WritePipeline) Resume() {
	wp.scheduler.RunOrSchedule()
}

// wrapOnce drives a single Engine.Wrap call to completion, retrying with a
// larger destination on BUFFER_OVERFLOW.
func (wp *WritePipeline) wrapOnce(src [][]byte) (EngineResult, error) {
	dst := make([]byte, wp.engine.PacketBufferSize())
	produced := 0

	for {
		result, err := wp.engine.Wrap(src, dst[produced:])
		if err != nil {
			return EngineResult{}, err
		}
		produced += result.BytesProduced

		if result.Status == StatusBufferOverflow {
			grown := make([]byte, wp.engine.PacketBufferSize()+produced)
			copy(grown, dst[:produced])
			dst = grown
			continue
		}

		final := EngineResult{
			Status:        result.Status,
			Handshake:     result.Handshake,
			BytesConsumed: result.BytesConsumed,
			BytesProduced: produced,
			Dest:          dst[:produced],
		}
		return final, nil
	}
}

// processData is the WritePipeline's serialized work function.
func (wp *WritePipeline) processData() {
	needWrap := func() bool { return wp.engine.HandshakeStatus() == HandshakeNeedWrap }

	for wp.queue.remainingBytes() > 0 || wp.queue.hasHandshakeTrigger() || needWrap() {
		src := wp.queue.snapshotData()
		hasTrigger := wp.queue.hasHandshakeTrigger()

		result, err := wp.wrapOnce(src)
		if err != nil {
			wrapped := &EngineFailure{Op: "wrap", Cause: err}
			wp.fail(wrapped)
			wp.fatal(wrapped)
			return
		}

		if result.Status == StatusClosed {
			wp.cancelUpstream()
			if result.BytesProduced <= 0 {
				return
			}
			if !wp.closing.Load() {
				wp.closing.Store(true)
				wp.queue.addElement(completionElement())
			}
		}

		handshaking := false
		if result.Handshaking() {
			wp.hs.doHandshake(result, callerWriter)
			handshaking = true
		} else if prevMode := wp.hs.state.clearHandshaking(); prevMode == modeHandshaking {
			wp.surfaceALPN()
			wp.resumeActivity()
		}

		wp.queue.consume(result.BytesConsumed)
		wp.queue.clean()
		if hasTrigger && result.Handshake != HandshakeNeedWrap {
			wp.queue.removeFirst(kindHandshakeTrigger)
		}

		if result.BytesProduced > 0 {
			wp.stats.addCiphertextOut(result.BytesProduced)
			if err := wp.outgoing(Frame{result.Dest}, false); err != nil {
				wp.fatal(&DownstreamFailure{Side: "write", Cause: err})
				return
			}
		}

		if handshaking && !wp.closing.Load() {
			if needWrap() {
				continue
			}
			return
		}
	}

	if wp.closing.Load() && wp.queue.remainingBytes() == 0 && !wp.queue.hasHandshakeTrigger() {
		if wp.queue.removeFirst(kindCompletion) {
			wp.finishClosing()
		}
		return
	}

	if wp.queue.isEmpty() && needWrap() {
		wp.queue.addElement(handshakeTriggerElement())
	}
}

// finishClosing emits the terminal empty frame downstream once the queue
// has drained past its completion sentinel.
func (wp *WritePipeline) finishClosing() {
	if err := wp.outgoing(nil, true); err != nil {
		wp.fatal(&DownstreamFailure{Side: "write", Cause: err})
		return
	}
	wp.complete(nil)
}

package tlspump

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/jpillora/sizestr"
)

// pumpIDSeq assigns each Pump a small process-wide sequence number, used
// only for log and String disambiguation when a process runs more than one
// Pump concurrently.
var pumpIDSeq atomic.Int64

// PumpOptions configures a Pump. The zero value is valid: it yields a
// NullLogger, a worker-pool Executor sized off the host, a default read
// buffer cap, and no hard cancellation context.
type PumpOptions struct {
	logger                    hclog.Logger
	executor                  Executor
	readBufferCap             int
	writeBackpressureElements int
	ctx                       context.Context
}

// PumpOption mutates a PumpOptions under construction.
type PumpOption func(*PumpOptions)

// WithLogger sets the base logger the Pump and its pipelines log under.
func WithLogger(l hclog.Logger) PumpOption {
	return func(o *PumpOptions) { o.logger = l }
}

// WithExecutor overrides the default worker-pool Executor used to run
// delegated handshake tasks.
func WithExecutor(e Executor) PumpOption {
	return func(o *PumpOptions) { o.executor = e }
}

// WithReadBufferCap overrides the safety ceiling on ReadPipeline buffer
// growth, in bytes. A value <= 0 leaves the default in effect.
func WithReadBufferCap(n int) PumpOption {
	return func(o *PumpOptions) { o.readBufferCap = n }
}

// WithWriteBackpressureElements overrides the queued-element threshold
// above which the WritePipeline withholds new upstream credit. A value <= 0
// leaves the default (writeBackpressureCount) in effect.
func WithWriteBackpressureElements(n int) PumpOption {
	return func(o *PumpOptions) { o.writeBackpressureElements = n }
}

// WithContext attaches a context whose cancellation is treated as a fatal
// UpstreamFailure on both sides, for callers that want a hard external
// cancellation knob in addition to demand-based flow control.
func WithContext(ctx context.Context) PumpOption {
	return func(o *PumpOptions) { o.ctx = ctx }
}

func newPumpOptions(opts []PumpOption) *PumpOptions {
	o := &PumpOptions{}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = hclog.NewNullLogger()
	}
	if o.executor == nil {
		o.executor = NewWorkerPoolExecutor(0)
	}
	return o
}

// Pump mediates between a plaintext application side and an encrypted
// network side through a single opaque Engine, via two independently
// scheduled, demand-driven pipelines. It is the package's entry point,
// assembling the reader/writer pair and wiring their completion futures
// together.
type Pump struct {
	id     int64
	engine Engine
	log    hclog.Logger

	reader *ReadPipeline
	writer *WritePipeline
	hs     *handshakeCoordinator
	life   *lifecycle
	stats  *pumpStats

	closeNotifyReceived atomic.Bool

	cancelCtx context.CancelFunc
}

// NewPump creates a Pump around engine. appSink receives decrypted
// plaintext on the read side; netSink receives encrypted ciphertext on the
// write side. The caller wires its own upstream publishers to the sinks
// returned by UpstreamReader and UpstreamWriter once construction is done.
func NewPump(engine Engine, appSink Subscriber, netSink Subscriber, opts ...PumpOption) *Pump {
	o := newPumpOptions(opts)
	id := pumpIDSeq.Add(1)
	log := o.logger.Named(fmt.Sprintf("tlspump.%d", id))

	p := &Pump{
		id:     id,
		engine: engine,
		log:    log,
		stats:  &pumpStats{},
	}

	p.hs = &handshakeCoordinator{
		engine:  engine,
		executor: o.executor,
		onFatal: p.fatal,
		log:     log,
	}

	p.life = newLifecycle(func() { p.reader.Stop() }, func() { p.writer.Stop() })

	readBufferCap := o.readBufferCap
	p.reader = newReadPipeline(int(id), engine, p.hs, p.stats, log, readBufferCap, &p.closeNotifyReceived, p.resumeActivity, p.surfaceALPN, p.fatal, p.life.readerCF.Complete)
	p.writer = newWritePipeline(int(id), engine, p.hs, p.stats, log, &p.closeNotifyReceived, o.writeBackpressureElements, p.resumeActivity, p.surfaceALPN, p.fatal, p.life.writerCF.Complete)
	p.hs.writer = p.writer
	p.hs.resume = p.resumeActivity

	p.reader.init(appSink)
	p.writer.init(netSink)

	if o.ctx != nil {
		ctx, cancel := context.WithCancel(o.ctx)
		p.cancelCtx = cancel
		go p.watchContext(ctx)
	}

	return p
}

func (p *Pump) watchContext(ctx context.Context) {
	<-ctx.Done()
	if ctx.Err() != nil && !p.life.readerCF.IsDone() {
		p.fatal(&UpstreamFailure{Side: "context", Cause: ctx.Err()})
	}
}

// resumeActivity reschedules both pipelines, used after a cross-side
// handshake state transition (delegated tasks finishing, ALPN becoming
// available) to wake whichever side was blocked on it.
func (p *Pump) resumeActivity() {
	p.reader.Resume()
	p.writer.Resume()
}

// surfaceALPN publishes the negotiated protocol the first time either side
// observes the handshake leave Handshaking mode.
func (p *Pump) surfaceALPN() {
	if !p.life.alpnCF.IsDone() {
		p.life.alpnCF.Complete(p.engine.ApplicationProtocol())
	}
}

// fatal is the single entry point every pipeline and the handshake
// coordinator call on unrecoverable failure. It is idempotent: only the
// first cause wins.
func (p *Pump) fatal(err error) {
	p.log.Error("pump failed", "error", err)
	p.life.handleError(err)
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
}

// ReaderCompletion returns the future that resolves when the read side
// (decrypt-and-deliver-plaintext) has fully stopped, normally or not.
func (p *Pump) ReaderCompletion() *CompletionFuture { return p.life.readerCF }

// WriterCompletion returns the future that resolves when the write side
// (encrypt-and-deliver-ciphertext) has fully stopped, normally or not.
func (p *Pump) WriterCompletion() *CompletionFuture { return p.life.writerCF }

// Alpn returns the future that resolves to the negotiated application
// protocol once the handshake (if any) completes, or exceptionally if the
// pump fails before that point.
func (p *Pump) Alpn() *AlpnFuture { return p.life.alpnCF }

// UpstreamReader returns the Subscriber the caller's ciphertext publisher
// should subscribe, feeding upstream network bytes into the read (decrypt)
// side. It is already wired to the plaintext sink passed to NewPump.
func (p *Pump) UpstreamReader() Subscriber { return p.reader }

// UpstreamWriter returns the Subscriber the caller's plaintext publisher
// should subscribe, feeding upstream application bytes into the write
// (encrypt) side. It is already wired to the ciphertext sink passed to
// NewPump.
func (p *Pump) UpstreamWriter() Subscriber { return p.writer }

// CloseNotifyReceived reports whether the peer's close_notify has been
// observed on the read side.
func (p *Pump) CloseNotifyReceived() bool { return p.writer.Closing() }

// ResumeReader forces the read side's scheduler to run once more, for
// collaborators that know new ciphertext is available without having gone
// through Incoming (e.g. after externally satisfying a delegated task).
func (p *Pump) ResumeReader() { p.reader.Resume() }

// ResetReaderDemand resets the read side's outstanding upstream credit
// counter to zero, letting a collaborator that tracks its own flow control
// re-synchronize after an out-of-band reset.
func (p *Pump) ResetReaderDemand() { p.reader.ResetDemand() }

func (p *Pump) String() string {
	return fmt.Sprintf("Pump(%d)", p.id)
}

// PumpSnapshot is a point-in-time diagnostic view of a Pump, exposed as an
// on-demand accessor rather than a background poller.
type PumpSnapshot struct {
	PlaintextInBytes   int64
	CiphertextOutBytes int64

	HandshakeState    string
	HandshakeStatus   HandshakeStatus
	ReadBufferBytes   int
	WriteQueueElement int
}

func (s PumpSnapshot) String() string {
	return fmt.Sprintf("plaintext in %s, ciphertext out %s, handshake %s (%s), read buffer %d bytes, write queue %d elements",
		sizestr.ToString(s.PlaintextInBytes), sizestr.ToString(s.CiphertextOutBytes),
		s.HandshakeState, s.HandshakeStatus, s.ReadBufferBytes, s.WriteQueueElement)
}

// Snapshot returns the current cumulative byte counters plus a point-in-time
// view of handshake state and each pipeline's internal backlog.
func (p *Pump) Snapshot() PumpSnapshot {
	return PumpSnapshot{
		PlaintextInBytes:   p.stats.plaintextIn.Load(),
		CiphertextOutBytes: p.stats.ciphertextOut.Load(),
		HandshakeState:     p.hs.state.String(),
		HandshakeStatus:    p.engine.HandshakeStatus(),
		ReadBufferBytes:    p.reader.bufferOccupancy(),
		WriteQueueElement:  p.writer.queueLen(),
	}
}

package tlspump

import "sync"

// CompletionFuture is a single-assignment completion signal, completed
// exactly once either normally (err == nil) or exceptionally: a done
// channel closed once, with the error read only after it closes.
type CompletionFuture struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletionFuture creates an incomplete future.
func NewCompletionFuture() *CompletionFuture {
	return &CompletionFuture{done: make(chan struct{})}
}

// Complete resolves the future with err (nil for success). Only the first
// call has any effect; subsequent calls are no-ops.
func (f *CompletionFuture) Complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the future completes.
func (f *CompletionFuture) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *CompletionFuture) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes and returns its error (nil on
// success).
func (f *CompletionFuture) Wait() error {
	<-f.done
	return f.err
}

// AlpnFuture is the single-assignment slot for the negotiated application
// protocol identifier. It completes successfully with the (possibly empty)
// ALPN string on first observation of handshake completion or
// end-of-stream, or exceptionally on fatal error.
type AlpnFuture struct {
	once sync.Once
	done chan struct{}
	val  string
	err  error
}

// NewAlpnFuture creates an unset AlpnFuture.
func NewAlpnFuture() *AlpnFuture {
	return &AlpnFuture{done: make(chan struct{})}
}

// Complete sets the negotiated protocol. Only the first call has effect.
func (a *AlpnFuture) Complete(protocol string) {
	a.once.Do(func() {
		a.val = protocol
		close(a.done)
	})
}

// CompleteError resolves the future exceptionally. Only the first call
// (whether Complete or CompleteError) has effect.
func (a *AlpnFuture) CompleteError(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// IsDone reports whether the future has completed (successfully or not).
func (a *AlpnFuture) IsDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the ALPN is known and returns it, or returns the fatal
// error that prevented negotiation from completing.
func (a *AlpnFuture) Wait() (string, error) {
	<-a.done
	return a.val, a.err
}

// lifecycle owns the fused stop/error-propagation barrier shared by both
// pipelines: handleError (fatal, idempotent) and normalStop (idempotent,
// fires once both completion futures resolve), implemented as an explicit
// goroutine waiting on both CompletionFuture.Done channels.
type lifecycle struct {
	readerCF *CompletionFuture
	writerCF *CompletionFuture
	alpnCF   *AlpnFuture

	stopOnce sync.Once
	errOnce  sync.Once

	stopReader func()
	stopWriter func()
}

func newLifecycle(stopReader, stopWriter func()) *lifecycle {
	l := &lifecycle{
		readerCF:   NewCompletionFuture(),
		writerCF:   NewCompletionFuture(),
		alpnCF:     NewAlpnFuture(),
		stopReader: stopReader,
		stopWriter: stopWriter,
	}
	go l.awaitBothThenStop()
	return l
}

func (l *lifecycle) awaitBothThenStop() {
	<-l.readerCF.Done()
	<-l.writerCF.Done()
	l.normalStop()
}

// handleError completes both half-futures exceptionally with the same
// cause, completes the ALPN future exceptionally if still pending, and
// stops both pipelines. Idempotent: only the first call has any effect, so
// the first cause always wins.
func (l *lifecycle) handleError(err error) {
	l.errOnce.Do(func() {
		l.readerCF.Complete(err)
		l.writerCF.Complete(err)
		l.alpnCF.CompleteError(err)
		l.normalStop()
	})
}

// normalStop stops both pipelines exactly once.
func (l *lifecycle) normalStop() {
	l.stopOnce.Do(func() {
		l.stopReader()
		l.stopWriter()
	})
}

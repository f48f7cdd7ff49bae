package tlspump

import "sync"

// Frame is a single list of byte buffers delivered between the pump and a
// collaborator: ciphertext on the network side, plaintext on the
// application side.
type Frame = [][]byte

// Subscriber is the sink contract the pump requires of its downstream
// collaborators (the plaintext consumer on the read side, the ciphertext
// consumer on the write side). A Subscriber's Subscription lets it Cancel
// delivery at any time, which the pump always honors; Request is advisory
// only — this package's own backpressure is enforced upstream, by
// withholding credit once a pipeline's internal buffer or queue crosses
// its threshold, not by metering OnNext calls against Request counts.
// A final OnNext (final == true) and OnError are each terminal and mutually
// exclusive with any further OnNext calls.
type Subscriber interface {
	// OnSubscribe is called once, before any other method, with a
	// Subscription the subscriber can use to manage demand.
	OnSubscribe(sub Subscription)
	// OnNext delivers one frame. final is true only for the last frame of
	// the stream (which may be empty). An error return is a
	// DownstreamFailure and is always fatal to the pump.
	OnNext(frame Frame, final bool) error
	// OnError delivers a terminal failure. No further calls follow.
	OnError(err error)
}

// Subscription lets a Subscriber manage its own demand and cancel delivery.
type Subscription interface {
	// Request signals willingness to accept n additional frames. The
	// pipelines accept this call but do not meter delivery against it;
	// only Cancel changes pipeline behavior.
	Request(n int64)
	// Cancel indicates no further frames are wanted.
	Cancel()
}

// UpstreamSource is what the pump requires of its upstream collaborator: a
// publisher the pump subscribes to in order to receive frames via its own
// Incoming method (ReadPipeline and WritePipeline both implement the
// Subscriber side of this relationship towards their upstream source, while
// exposing Incoming as the entry point an upstream driver calls directly).
type UpstreamSource interface {
	Subscribe(sub Subscriber)
}

// subscriberWrapper is the shared demand-tracking shim embedded by both
// ReadPipeline and WritePipeline. It models upstream credit as an
// outstanding-demand counter and forwards produced frames downstream
// without metering them against the downstream Subscriber's Request
// calls. Composed into each
// pipeline rather than inherited from a common base, per Go's preference
// for composition.
type subscriberWrapper struct {
	mu sync.Mutex

	downstream     Subscriber
	downstreamSub  *pumpSubscription
	upstreamSub    Subscription
	outstandingWin int64 // credit granted to our upstream, not yet consumed
	cancelled      bool

	// upstreamWindowUpdate computes how much new credit to request from
	// upstream, given the current outstanding window and the size of
	// whatever backlog this pipeline is holding locally. Each pipeline
	// overrides this to implement its own backpressure threshold.
	upstreamWindowUpdate func(current, backlog int64) int64
}

func (w *subscriberWrapper) init(downstream Subscriber) {
	w.downstream = downstream
	w.downstreamSub = &pumpSubscription{owner: w}
	downstream.OnSubscribe(w.downstreamSub)
}

// setUpstreamSubscription records the subscription used to request more
// upstream credit or cancel upstream delivery entirely.
func (w *subscriberWrapper) setUpstreamSubscription(sub Subscription) {
	w.mu.Lock()
	w.upstreamSub = sub
	w.mu.Unlock()
}

// requestMore asks upstream for more credit, using upstreamWindowUpdate (if
// set) to decide how much, and withholding entirely if the result is <= 0.
func (w *subscriberWrapper) requestMore(backlog int64) {
	w.mu.Lock()
	sub := w.upstreamSub
	current := w.outstandingWin
	var n int64 = 1
	if w.upstreamWindowUpdate != nil {
		n = w.upstreamWindowUpdate(current, backlog)
	}
	if n > 0 {
		w.outstandingWin += n
	}
	w.mu.Unlock()

	if sub != nil && n > 0 {
		sub.Request(n)
	}
}

// cancelUpstream cancels the upstream subscription exactly once.
func (w *subscriberWrapper) cancelUpstream() {
	w.mu.Lock()
	if w.cancelled {
		w.mu.Unlock()
		return
	}
	w.cancelled = true
	sub := w.upstreamSub
	w.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// outgoing emits one frame downstream.
func (w *subscriberWrapper) outgoing(frame Frame, final bool) error {
	return w.downstream.OnNext(frame, final)
}

// fail propagates a terminal error downstream.
func (w *subscriberWrapper) fail(err error) {
	w.downstream.OnError(err)
}

// pumpSubscription is the Subscription handed to the downstream Subscriber
// so it can manage demand against this pipeline. It is intentionally
// minimal: this package's pipelines do not themselves throttle based on
// downstream demand counts beyond honoring Cancel, since frame production
// is already rate-limited by the upstream backpressure thresholds.
type pumpSubscription struct {
	owner *subscriberWrapper
}

func (s *pumpSubscription) Request(n int64) {}

func (s *pumpSubscription) Cancel() {
	s.owner.cancelUpstream()
}

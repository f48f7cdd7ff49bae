// Package testutil provides fakes shared by the package's own tests: a
// recording Subscriber stub and a publisher that feeds it. Hand-rolled
// rather than generated, in the style of this module's other test fakes.
package testutil

import (
	"sync"

	"github.com/cobalt-tunnel/tlspump"
)

// RecordingSubscriber is a tlspump.Subscriber that appends every frame it
// receives, in order, and records whether/how it was completed.
type RecordingSubscriber struct {
	mu sync.Mutex

	sub tlspump.Subscription

	Frames    [][]byte
	Completed bool
	Err       error

	// NextErr, if set, is returned by the next OnNext call and then
	// cleared, letting a test inject a single DownstreamFailure.
	NextErr error

	notify chan struct{}
}

// NewRecordingSubscriber creates an empty RecordingSubscriber.
func NewRecordingSubscriber() *RecordingSubscriber {
	return &RecordingSubscriber{notify: make(chan struct{}, 64)}
}

func (r *RecordingSubscriber) OnSubscribe(sub tlspump.Subscription) {
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
}

func (r *RecordingSubscriber) OnNext(frame tlspump.Frame, final bool) error {
	r.mu.Lock()
	if r.NextErr != nil {
		err := r.NextErr
		r.NextErr = nil
		r.mu.Unlock()
		return err
	}
	for _, b := range frame {
		cp := make([]byte, len(b))
		copy(cp, b)
		r.Frames = append(r.Frames, cp)
	}
	if final {
		r.Completed = true
	}
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *RecordingSubscriber) OnError(err error) {
	r.mu.Lock()
	r.Err = err
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel with one value pushed per OnNext/OnError call,
// for tests that want to wait for activity rather than polling.
func (r *RecordingSubscriber) Notify() <-chan struct{} { return r.notify }

// Snapshot returns a copy of the frames received so far, whether the stream
// completed, and any terminal error.
func (r *RecordingSubscriber) Snapshot() ([][]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.Frames))
	copy(out, r.Frames)
	return out, r.Completed, r.Err
}

// Joined concatenates every received frame's bytes into one slice.
func (r *RecordingSubscriber) Joined() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, b := range r.Frames {
		out = append(out, b...)
	}
	return out
}

// FeedSource is an UpstreamSource driven directly by the test: Push hands
// buffers to whatever Subscriber last called Subscribe, respecting no
// backpressure itself (the pump's own pipelines enforce their own demand
// via Subscription.Request, which FeedSource ignores, matching a
// deliberately generous upstream).
type FeedSource struct {
	mu  sync.Mutex
	sub tlspump.Subscriber
}

func NewFeedSource() *FeedSource { return &FeedSource{} }

func (f *FeedSource) Subscribe(sub tlspump.Subscriber) {
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()
	sub.OnSubscribe(&noopSubscription{})
}

// Push delivers one frame to the registered Subscriber, if any.
func (f *FeedSource) Push(data []byte, final bool) error {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub == nil {
		return nil
	}
	if data == nil {
		return sub.OnNext(nil, final)
	}
	return sub.OnNext(tlspump.Frame{data}, final)
}

// Fail signals an upstream error to the registered Subscriber.
func (f *FeedSource) Fail(err error) {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub != nil {
		sub.OnError(err)
	}
}

type noopSubscription struct{}

func (noopSubscription) Request(n int64) {}
func (noopSubscription) Cancel()         {}

package tlspump

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSubscription struct {
	requested []int64
	cancelled bool
}

func (s *recordingSubscription) Request(n int64) { s.requested = append(s.requested, n) }
func (s *recordingSubscription) Cancel()          { s.cancelled = true }

func TestSubscriberWrapperRequestMoreUsesWindowUpdate(t *testing.T) {
	var w subscriberWrapper
	sub := &recordingSubscription{}
	w.setUpstreamSubscription(sub)
	w.upstreamWindowUpdate = func(current, backlog int64) int64 { return 3 }

	w.requestMore(0)
	require.Equal(t, []int64{3}, sub.requested)
	require.Equal(t, int64(3), w.outstandingWin)
}

func TestSubscriberWrapperRequestMoreWithholdsOnNonPositive(t *testing.T) {
	var w subscriberWrapper
	sub := &recordingSubscription{}
	w.setUpstreamSubscription(sub)
	w.upstreamWindowUpdate = func(current, backlog int64) int64 { return 0 }

	w.requestMore(0)
	require.Empty(t, sub.requested)
	require.Equal(t, int64(0), w.outstandingWin)
}

func TestSubscriberWrapperCancelUpstreamIsIdempotent(t *testing.T) {
	var w subscriberWrapper
	sub := &recordingSubscription{}
	w.setUpstreamSubscription(sub)

	w.cancelUpstream()
	w.cancelUpstream()
	require.True(t, sub.cancelled)
}

func TestPumpSubscriptionCancelDelegatesToOwner(t *testing.T) {
	var w subscriberWrapper
	sub := &recordingSubscription{}
	w.setUpstreamSubscription(sub)

	ps := &pumpSubscription{owner: &w}
	ps.Cancel()
	require.True(t, sub.cancelled)
}

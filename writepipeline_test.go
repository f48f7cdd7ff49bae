package tlspump

import (
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func newTestWritePipeline(backpressure int) *WritePipeline {
	engine := newFakeLengthFramedEngine()
	hs := &handshakeCoordinator{engine: engine, resume: func() {}, log: hclog.NewNullLogger()}
	wp := newWritePipeline(0, engine, hs, &pumpStats{}, hclog.NewNullLogger(), new(atomic.Bool), backpressure,
		func() {}, func() {}, func(error) {}, func(error) {})
	wp.scheduler.Stop()
	return wp
}

// S6 (write side): credit is withheld once the queue holds more elements
// than the configured backpressure threshold, and granted again once it
// drains below it.
func TestWritePipelineUpstreamWindowUpdateWithholdsAboveThreshold(t *testing.T) {
	wp := newTestWritePipeline(2)

	require.Equal(t, int64(1), wp.upstreamWindowUpdate(0, 0))

	wp.queue.addData([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.Equal(t, int64(0), wp.upstreamWindowUpdate(0, 0))

	wp.queue.consume(3)
	wp.queue.clean()
	require.Equal(t, int64(1), wp.upstreamWindowUpdate(0, 0))
}

func TestWritePipelineUpstreamWindowUpdateWithholdsWhileCreditOutstanding(t *testing.T) {
	wp := newTestWritePipeline(2)
	require.Equal(t, int64(0), wp.upstreamWindowUpdate(1, 0))
}

func TestWritePipelineOnSubscribeQueuesInitialHandshakeTrigger(t *testing.T) {
	wp := newTestWritePipeline(0)
	wp.OnSubscribe(noopTestSubscription{})
	require.True(t, wp.queue.hasHandshakeTrigger())
}

type noopTestSubscription struct{}

func (noopTestSubscription) Request(n int64) {}
func (noopTestSubscription) Cancel()         {}

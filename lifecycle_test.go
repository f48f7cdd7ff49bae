package tlspump

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompletionFutureCompletesOnceOnly(t *testing.T) {
	f := NewCompletionFuture()
	require.False(t, f.IsDone())

	f.Complete(nil)
	f.Complete(errors.New("ignored"))

	require.True(t, f.IsDone())
	require.NoError(t, f.Wait())
}

func TestAlpnFutureCompleteAndCompleteErrorAreMutuallyExclusive(t *testing.T) {
	a := NewAlpnFuture()
	a.Complete("h2")
	a.CompleteError(errors.New("ignored"))

	proto, err := a.Wait()
	require.NoError(t, err)
	require.Equal(t, "h2", proto)
}

func TestLifecycleNormalStopFiresOnlyAfterBothFuturesComplete(t *testing.T) {
	var readerStopped, writerStopped int
	l := newLifecycle(func() { readerStopped++ }, func() { writerStopped++ })

	l.readerCF.Complete(nil)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 0, readerStopped, "must not stop until both sides complete")

	l.writerCF.Complete(nil)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, readerStopped)
	require.Equal(t, 1, writerStopped)
}

func TestLifecycleHandleErrorIsIdempotentAndFirstCauseWins(t *testing.T) {
	var stops int
	l := newLifecycle(func() { stops++ }, func() { stops++ })

	first := errors.New("first")
	second := errors.New("second")
	l.handleError(first)
	l.handleError(second)

	require.Equal(t, 2, stops)
	require.Equal(t, first, l.readerCF.Wait())
	require.Equal(t, first, l.writerCF.Wait())

	_, alpnErr := l.alpnCF.Wait()
	require.Equal(t, first, alpnErr)
}

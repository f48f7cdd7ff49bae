package tlspump

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteQueueConsumeAndClean(t *testing.T) {
	q := newWriteQueue()
	q.addElement(handshakeTriggerElement())
	q.addData([][]byte{[]byte("hello"), []byte("world")})

	require.True(t, q.hasHandshakeTrigger())
	require.Equal(t, 10, q.remainingBytes())

	src := q.snapshotData()
	require.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, src)

	q.consume(7)
	q.clean()
	require.Equal(t, 3, q.remainingBytes())

	require.True(t, q.removeFirst(kindHandshakeTrigger))
	require.False(t, q.hasHandshakeTrigger())
	require.False(t, q.removeFirst(kindHandshakeTrigger))
}

func TestWriteQueueConsumeLeavesSentinelsInPlace(t *testing.T) {
	q := newWriteQueue()
	q.addData([][]byte{[]byte("ab")})
	q.addElement(completionElement())
	q.addData([][]byte{[]byte("cd")})

	q.consume(2)
	q.clean()
	require.Equal(t, 2, q.remainingBytes(), "consume(2) must drain only the first element, leaving the completion sentinel and the data behind it")

	require.True(t, q.removeFirst(kindCompletion))
	require.False(t, q.isEmpty())
}

func TestWriteQueueIsEmpty(t *testing.T) {
	q := newWriteQueue()
	require.True(t, q.isEmpty())
	q.addElement(handshakeTriggerElement())
	require.False(t, q.isEmpty())
	q.clear()
	require.True(t, q.isEmpty())
}

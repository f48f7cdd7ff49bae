package tlspump

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequentialSchedulerCoalescesConcurrentTriggers(t *testing.T) {
	var running atomic.Int32
	var runs atomic.Int32
	var overlapped atomic.Bool

	block := make(chan struct{})
	started := make(chan struct{}, 1)

	var sched *SequentialScheduler
	sched = NewSequentialScheduler(func() {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		runs.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		running.Add(-1)
	})

	go sched.RunOrSchedule()
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.RunOrSchedule()
		}()
	}
	wg.Wait()

	close(block)
	time.Sleep(50 * time.Millisecond)

	require.False(t, overlapped.Load(), "task must never run concurrently with itself")
	require.LessOrEqual(t, runs.Load(), int32(2), "20 concurrent triggers must coalesce into at most one in-flight run plus one pending rerun")
}

func TestSequentialSchedulerStopIsIdempotentAndPreventsFurtherRuns(t *testing.T) {
	var runs atomic.Int32
	sched := NewSequentialScheduler(func() { runs.Add(1) })

	sched.RunOrSchedule()
	sched.Stop()
	sched.Stop() // idempotent

	sched.RunOrSchedule()
	require.Equal(t, int32(1), runs.Load())
}

func TestSequentialSchedulerEnterSchedulingReturn(t *testing.T) {
	var gate atomic.Bool
	var runs atomic.Int32
	sched := NewSequentialScheduler(func() { runs.Add(1) })
	sched.EnterScheduling = func() SchedulingAction {
		if gate.Load() {
			return ActionContinue
		}
		return ActionReturn
	}

	sched.RunOrSchedule()
	require.Equal(t, int32(0), runs.Load())

	gate.Store(true)
	sched.RunOrSchedule()
	require.Equal(t, int32(1), runs.Load())
}

package tlspump

import "sync"

// SchedulingAction is returned by a SequentialScheduler's EnterScheduling
// hook to decide what should happen before a run begins.
type SchedulingAction int

const (
	// ActionContinue proceeds with the run immediately.
	ActionContinue SchedulingAction = iota
	// ActionReschedule defers this run without executing the task. Unlike
	// ActionReturn it signals to the caller of EnterScheduling that the
	// condition causing the deferral is expected to resolve and a future
	// external RunOrSchedule call should be expected; the scheduler itself
	// does not retry automatically (retrying immediately would busy-spin).
	ActionReschedule
	// ActionReturn abandons this run without scheduling another.
	ActionReturn
)

// SequentialScheduler serializes execution of a single task function so
// that concurrent triggers coalesce into at most one in-flight run plus at
// most one pending re-run. It never runs the task concurrently with itself,
// never busy-spins, and supports idempotent, permanent stop.
//
// This is the one concurrency primitive every pipeline in this package is
// built on: ReadPipeline.processData and WritePipeline.processData are each
// driven by their own SequentialScheduler.
type SequentialScheduler struct {
	task func()

	// EnterScheduling is consulted immediately before each run begins. A
	// nil value behaves as always returning ActionContinue.
	EnterScheduling func() SchedulingAction

	mu      sync.Mutex
	running bool
	pending bool
	stopped bool
}

// NewSequentialScheduler creates a scheduler around task. task will never be
// invoked concurrently with itself.
func NewSequentialScheduler(task func()) *SequentialScheduler {
	return &SequentialScheduler{task: task}
}

// RunOrSchedule ensures task runs at least once after this call returns. If
// a run is already in progress, it arranges for exactly one more run to
// follow it; additional concurrent calls while that extra run is still
// pending have no further effect (they coalesce).
func (s *SequentialScheduler) RunOrSchedule() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.runLoop()
}

// Stop prevents any future runs from starting. A run already in progress is
// allowed to complete, but it will not trigger a pending re-run afterward.
// Stop is idempotent.
func (s *SequentialScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *SequentialScheduler) runLoop() {
	for {
		action := ActionContinue
		if s.EnterScheduling != nil {
			action = s.EnterScheduling()
		}

		if action == ActionContinue {
			s.task()
		}

		if !s.finishRun() {
			return
		}
	}
}

// finishRun clears the running flag and reports whether a pending call to
// RunOrSchedule arrived while the run was executing, in which case the
// caller should loop and run again rather than going idle.
func (s *SequentialScheduler) finishRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.pending {
		s.running = false
		s.pending = false
		return false
	}

	s.pending = false
	return true
}

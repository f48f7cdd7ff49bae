package tlspump

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Executor is the injection point for running delegated tasks: accept any
// "schedule this unit of work" abstraction. A *Pump never runs delegated
// tasks inline; it always hands them to the Executor so a slow or
// blocking task cannot stall either pipeline's scheduler.
type Executor interface {
	// Submit schedules fn to run, returning without waiting for it.
	Submit(fn func())
}

// workerPoolExecutor is the default Executor: a small fixed pool of
// goroutines draining a buffered task channel, with a fixed worker count
// sized off runtime.NumCPU(), rather than one goroutine per Submit call.
type workerPoolExecutor struct {
	tasks chan func()
	grp   *errgroup.Group
}

// NewWorkerPoolExecutor creates an Executor backed by workers goroutines. A
// workers value <= 0 defaults to 2x NumCPU, since delegated tasks are
// typically short, CPU-bound handshake steps (certificate verification, key
// derivation) rather than I/O-bound work.
func NewWorkerPoolExecutor(workers int) *workerPoolExecutor {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
		if workers < 2 {
			workers = 2
		}
	}

	e := &workerPoolExecutor{
		tasks: make(chan func(), 256),
		grp:   &errgroup.Group{},
	}
	for i := 0; i < workers; i++ {
		e.grp.Go(func() error {
			for fn := range e.tasks {
				fn()
			}
			return nil
		})
	}
	return e
}

// Submit enqueues fn to run on the next available worker.
func (e *workerPoolExecutor) Submit(fn func()) {
	e.tasks <- fn
}

// Close stops accepting new work and waits for in-flight workers to drain.
// It is safe to call at most once.
func (e *workerPoolExecutor) Close() {
	close(e.tasks)
	_ = e.grp.Wait()
}

// inlineExecutor runs each submission on its own goroutine, with no pooling
// or bound. It is a minimal Executor suitable for tests and for callers
// that already manage their own goroutine budget.
type inlineExecutor struct{}

// NewInlineExecutor returns an Executor that spawns one goroutine per
// Submit call.
func NewInlineExecutor() Executor { return inlineExecutor{} }

func (inlineExecutor) Submit(fn func()) { go fn() }

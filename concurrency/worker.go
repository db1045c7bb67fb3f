package concurrency

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// Worker runs a single long-lived goroutine that can be stopped exactly once. It backs the output
// publisher (spec §5): one thread, cancellable, joined on shutdown.
type Worker struct {
	mu         sync.Mutex
	cancelCtx  context.Context
	cancelFunc context.CancelFunc
	done       sync.WaitGroup
	stopped    bool
}

// NewWorker starts fn in a background goroutine. fn should observe ctx.Done() and return promptly
// when it fires.
func NewWorker(fn func(ctx context.Context)) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{cancelCtx: ctx, cancelFunc: cancel}
	w.done.Add(1)
	goutils.PanicCapturingGo(func() {
		defer w.done.Done()
		fn(ctx)
	})
	return w
}

// Stop cancels the worker's context and blocks until it has returned. Safe to call more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancelFunc()
	w.done.Wait()
}

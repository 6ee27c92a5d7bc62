package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// WorkerDispatcher runs best-effort side effects on a fixed pool. Submission
// never blocks: when the queue is full the task is dropped and logged.
type WorkerDispatcher struct {
	queue   chan task
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewWorkerDispatcher(workers, queue int, timeout time.Duration) *WorkerDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &WorkerDispatcher{
		queue:   make(chan task, queue),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *WorkerDispatcher) Go(name string, fn func(ctx context.Context) error) {
	select {
	case <-d.ctx.Done():
		log.Warn().Str("module", "app.dispatch").Str("task", name).Msg("dispatcher stopped, task dropped")
		return
	default:
	}
	select {
	case d.queue <- task{name: name, fn: fn}:
	default:
		log.Warn().Str("module", "app.dispatch").Str("task", name).Msg("queue full, task dropped")
	}
}

func (d *WorkerDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case t := <-d.queue:
			d.run(t)
		}
	}
}

func (d *WorkerDispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.dispatch").Str("task", t.name).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := t.fn(ctx); err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Str("task", t.name).Msg("side effect failed")
	}
}

// Stop drains what is already queued, then stops the workers.
func (d *WorkerDispatcher) Stop() {
	d.once.Do(func() {
		deadline := time.Now().Add(d.timeout)
		for len(d.queue) > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		d.cancel()
		d.wg.Wait()
	})
}

// InlineDispatcher runs the task on the caller's goroutine and only logs
// failures. Tests use it to observe side effects deterministically.
type InlineDispatcher struct{}

func (InlineDispatcher) Go(name string, fn func(ctx context.Context) error) {
	if err := fn(context.Background()); err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Str("task", name).Msg("side effect failed")
	}
}

package statement

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/eapache/queue"
)

// Runner executes one statement and waits for its result.
// Implementations reject concurrent calls; Executor is what serializes them.
type Runner interface {
	RunCodes(ctx context.Context, code string) (*Output, error)
}

// waiter is one caller queued for its turn.
type waiter struct {
	ready     chan struct{}
	granted   bool
	cancelled bool
}

// Executor runs statements on a Runner strictly one at a time, in the order the calls
// arrive. Each caller gets back exactly the output of its own statement.
type Executor struct {
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	busy    bool
	waiters *queue.Queue
}

// NewExecutor creates an Executor for runner. A nil logger discards output.
func NewExecutor(runner Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		runner:  runner,
		logger:  logger,
		waiters: queue.New(),
	}
}

// Run waits for its turn, then runs code and returns its output.
//
// Failed statements are not retried: a *FailureError or protocol error is returned
// as is. If ctx is done while waiting for a turn, the call leaves the queue without
// affecting the order of the others.
func (e *Executor) Run(ctx context.Context, code string) (*Output, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	e.logger.Debug("running statement", "code_len", len(code))
	return e.runner.RunCodes(ctx, code)
}

// Pending returns the number of callers waiting for a turn.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := 0; i < e.waiters.Length(); i++ {
		if !e.waiters.Get(i).(*waiter).cancelled {
			n++
		}
	}
	return n
}

func (e *Executor) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.busy && e.waiters.Length() == 0 {
		e.busy = true
		e.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	e.waiters.Add(w)
	e.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		if w.granted {
			// The turn arrived together with cancellation; hand it on.
			e.mu.Unlock()
			e.release()
			return ctx.Err()
		}
		w.cancelled = true
		e.mu.Unlock()
		return ctx.Err()
	}
}

func (e *Executor) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.waiters.Length() > 0 {
		w := e.waiters.Remove().(*waiter)
		if w.cancelled {
			continue
		}
		w.granted = true
		close(w.ready)
		return
	}
	e.busy = false
}

// Package engine orchestrates the two fleet operations: plan and apply.
// It coordinates between discovery, the vcs adapter, snapshot sources, and
// the forge pull request lookup.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/vcs"
)

// DefaultTimeout bounds the git work done for a single repository.
const DefaultTimeout = 60 * time.Second

// ProgressFunc is invoked on the coordinating goroutine before work for the
// index-th (1-based) of total repositories starts. It must not block.
type ProgressFunc func(index, total int, label string)

// Engine is the core orchestrator for RepoFleet operations.
type Engine struct {
	adapter vcs.Adapter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an Engine. A nil adapter defaults to the git CLI, a nil logger
// discards output.
func New(adapter vcs.Adapter, logger *zap.Logger) *Engine {
	if adapter == nil {
		adapter = vcs.NewGitAdapter(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{adapter: adapter, logger: logger, now: time.Now}
}

// Adapter returns the engine VCS adapter.
func (e *Engine) Adapter() vcs.Adapter { return e.adapter }

// runBounded calls work for indexes [0,total) with at most concurrency calls
// in flight. Each index runs on exactly one goroutine, so all git calls for a
// repository stay serialized. Cancellation is observed only between
// repositories; the returned error is ctx.Err() when the loop stopped early.
func runBounded(ctx context.Context, total, concurrency int, label func(int) string, onStart ProgressFunc, work func(ctx context.Context, i int)) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var stopErr error

loop:
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			stopErr = ctx.Err()
			break loop
		}
		if onStart != nil {
			onStart(i+1, total, label(i))
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			work(ctx, i)
		}(i)
	}
	wg.Wait()
	return stopErr
}

// repoContext detaches per-repository work from caller cancellation so a
// started repository is never interrupted halfway; only the timeout applies.
func repoContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Pool manages a set of concurrent dispatch goroutines that claim ready
// tasks and execute them through the Executor.
type Pool struct {
	queue        *queue.Service
	executor     *Executor
	hooks        *hook.Registry
	concurrency  int
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Claim governor (optional). Shared across all dispatch goroutines,
	// it caps how often the pool asks the store for a ready task.
	claimLimiter *rate.Limiter

	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	activeTasks map[string]context.CancelFunc
	activeMu    sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent dispatch goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long a dispatch goroutine sleeps when no
// task is ready to claim.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithClaimRate installs a claim governor: at most perSecond claim
// attempts per second across the whole pool, with the given burst.
// A zero or negative perSecond disables the governor.
func WithClaimRate(perSecond float64, burst int) PoolOption {
	return func(p *Pool) {
		if perSecond <= 0 {
			p.claimLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.claimLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewPool creates a dispatch pool.
func NewPool(
	queue *queue.Service,
	executor *Executor,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		queue:        queue,
		executor:     executor,
		hooks:        hooks,
		concurrency:  4,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeTasks:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the dispatch goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("dispatch pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dispatchLoop()
	}

	return nil
}

// Stop signals all dispatch goroutines to stop and waits for them to finish.
// If the context has a deadline, active tasks are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("dispatch pool stopping", slog.String("worker_id", p.workerID.String()))

	// Signal all dispatch goroutines to stop.
	close(p.stopCh)

	// Wait for completion or context deadline.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("dispatch pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("dispatch pool shutdown timed out, cancelling active tasks")
		p.cancelActiveTasks()
		p.wg.Wait()
	}

	return nil
}

// dispatchLoop is run by each dispatch goroutine.
func (p *Pool) dispatchLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.claimLimiter != nil && !p.claimLimiter.Allow() {
			p.sleep()
			continue
		}

		t, err := p.queue.NextReady(context.Background(), p.workerID)
		if err != nil {
			p.logger.Error("claim error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if t == nil {
			p.sleep()
			continue
		}

		p.runTask(t)
	}
}

// runTask executes one claimed task with panic isolation: whatever
// happens inside, the dispatch loop keeps going.
func (p *Pool) runTask(t *task.Task) {
	ctx, cancel := context.WithCancel(context.Background())
	p.trackTask(t.ID.String(), cancel)

	defer func() {
		p.untrackTask(t.ID.String())
		cancel()
		// The Recover middleware catches work unit panics; this is the
		// last resort for panics in the execution plumbing itself.
		if r := recover(); r != nil {
			p.logger.Error("panic escaped task execution",
				slog.String("task_id", t.ID.String()),
				slog.String("kind", t.Kind),
				slog.Any("panic", r),
			)
		}
	}()

	p.hooks.EmitTaskStarted(ctx, t)

	if execErr := p.executor.Execute(ctx, t); execErr != nil {
		p.logger.Debug("task execution finished with error",
			slog.String("task_id", t.ID.String()),
			slog.String("kind", t.Kind),
			slog.String("error", execErr.Error()),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackTask(taskID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeTasks[taskID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackTask(taskID string) {
	p.activeMu.Lock()
	delete(p.activeTasks, taskID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveTasks() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for taskID, cancel := range p.activeTasks {
		p.logger.Warn("cancelling active task", slog.String("task_id", taskID))
		cancel()
	}
}

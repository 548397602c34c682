package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/ledger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/logger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"golang.org/x/sync/semaphore"
)

// Handler processes one claimed job. A nil return completes the job; an error
// routes it through the retry machinery by error class. Handlers must be
// idempotent per subject: a reclaimed-then-retried job runs the same work
// again.
type Handler func(ctx context.Context, job *domain.JobRecord) error

// Dispatcher polls every registered queue and runs handlers under a global
// concurrency bound. Each claimed job gets exactly one Complete or Fail
// report, even when the handler panics.
type Dispatcher struct {
	registry *queue.Registry
	ledger   *ledger.Ledger
	handlers map[string]Handler
	sem      *semaphore.Weighted
	cfg      config.WorkerConfig
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
// Parameters:
//   - cfg: polling and concurrency tuning.
//   - registry: domain queues to poll.
//   - led: ledger receiving progress for operation-tracked jobs.
// Returns:
//   - *Dispatcher: dispatcher with no handlers registered yet.
func NewDispatcher(cfg config.WorkerConfig, registry *queue.Registry, led *ledger.Ledger) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		registry: registry,
		ledger:   led,
		handlers: make(map[string]Handler),
		sem:      semaphore.NewWeighted(int64(concurrency)),
		cfg:      cfg,
	}
}

// Register binds a handler to a queue name. Queues without a handler are not
// polled.
func (d *Dispatcher) Register(queueName string, h Handler) {
	d.handlers[queueName] = h
}

// Run polls until ctx is cancelled, then waits for in-flight handlers to
// finish.
// Parameters:
//   - ctx: run context; cancellation starts a graceful drain.
// Returns:
//   - error: ctx.Err() after the drain completes.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.CtxInfo(ctx, "Dispatcher started with concurrency %d", d.cfg.Concurrency)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Dispatcher draining")
			d.wg.Wait()
			logger.CtxInfo(ctx, "Dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Dispatcher) pollOnce(ctx context.Context) {
	for _, q := range d.registry.All() {
		handler, ok := d.handlers[q.Name()]
		if !ok {
			continue
		}

		claimed, err := q.ClaimNext(ctx, d.cfg.BatchSize)
		if err != nil {
			logger.CtxError(ctx, "Failed to claim jobs on %s: %v", q.Name(), err)
			continue
		}

		for i := range claimed {
			job := claimed[i]
			if err := d.sem.Acquire(ctx, 1); err != nil {
				// Shutting down mid-batch: the claimed job stays processing
				// and zombie reclamation returns it to the pool.
				return
			}
			d.wg.Add(1)
			go func(q *queue.Queue, job domain.JobRecord) {
				defer d.wg.Done()
				defer d.sem.Release(1)
				d.execute(ctx, q, handler, &job)
			}(q, job)
		}
	}
}

// execute runs one handler and issues the job's single outcome report.
func (d *Dispatcher) execute(ctx context.Context, q *queue.Queue, handler Handler, job *domain.JobRecord) {
	jobCtx := logger.SetQueue(ctx, q.Name())
	jobCtx = logger.SetJobID(jobCtx, job.ID)
	if job.OperationID != nil {
		jobCtx = logger.SetOperationID(jobCtx, *job.OperationID)
	}

	start := time.Now()
	err := d.runHandler(jobCtx, handler, job)
	elapsed := time.Since(start).Milliseconds()

	if err == nil {
		if cerr := q.Complete(jobCtx, job.ID); cerr != nil {
			if errors.Is(cerr, queue.ErrNotProcessing) {
				// Reclaimed while we worked. The sweep already reported the
				// outcome; reporting success now would double count.
				logger.CtxWarn(jobCtx, "Job finished after being reclaimed, result dropped")
				return
			}
			logger.CtxError(jobCtx, "Failed to complete job: %v", cerr)
			return
		}
		logger.With(logger.Fields{
			logger.FieldDurationMs: elapsed,
			logger.FieldStatus:     domain.JobStatusCompleted.String(),
		}).Info(jobCtx, "Job completed")
		d.reportProgress(jobCtx, job, 1, 0, nil)
		return
	}

	status, ferr := q.Fail(jobCtx, job.ID, job.Attempts, err)
	if ferr != nil {
		if errors.Is(ferr, queue.ErrNotProcessing) {
			logger.CtxWarn(jobCtx, "Job failed after being reclaimed, result dropped: %v", err)
			return
		}
		logger.CtxError(jobCtx, "Failed to record job failure: %v", ferr)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed,
		logger.FieldStatus:     status.String(),
		logger.FieldAttempts:   job.Attempts,
	}).Warn(jobCtx, "Job handler failed: %v", err)

	// Only a terminal failure counts against the operation; retries and
	// rate-limit parking report nothing so the item is counted once.
	if status == domain.JobStatusFailed {
		d.reportProgress(jobCtx, job, 0, 1, err)
	}
}

// runHandler converts a handler panic into a permanent error so the job
// still gets its one outcome report.
func (d *Dispatcher) runHandler(ctx context.Context, handler Handler, job *domain.JobRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Permanent("handler", fmt.Errorf("panic: %v", r))
			logger.CtxError(ctx, "Handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (d *Dispatcher) reportProgress(ctx context.Context, job *domain.JobRecord, completed, failed int, jobErr error) {
	if job.OperationID == nil {
		return
	}
	opID := *job.OperationID

	if jobErr != nil {
		msg := fmt.Sprintf("%s/%s: %v", job.Queue, job.SubjectKey, jobErr)
		if err := d.ledger.ReportError(ctx, opID, msg); err != nil {
			logger.CtxError(ctx, "Failed to report item error: %v", err)
		}
	}
	if _, err := d.ledger.Progress(ctx, opID, completed, failed); err != nil {
		logger.CtxError(ctx, "Failed to report progress: %v", err)
	}
}

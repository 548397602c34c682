package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/ledger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/logger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"github.com/robfig/cron/v3"
)

// Sweeper runs the periodic housekeeping jobs: zombie reclamation across
// every domain queue and a fallback admission pass for the ledger. Both jobs
// are idempotent, so overlapping runs across replicas are safe.
type Sweeper struct {
	registry *queue.Registry
	ledger   *ledger.Ledger
	cron     *cron.Cron
}

// New creates a Sweeper and registers its cron entries.
// Parameters:
//   - cfg: cron specs for the reclaim and admission passes.
//   - registry: domain queue registry swept for zombies.
//   - led: ledger driven by the fallback admission pass.
// Returns:
//   - *Sweeper: sweeper ready to Start.
//   - error: non-nil when a cron spec does not parse.
func New(cfg *config.SweeperConfig, registry *queue.Registry, led *ledger.Ledger) (*Sweeper, error) {
	s := &Sweeper{
		registry: registry,
		ledger:   led,
		cron:     cron.New(),
	}

	if _, err := s.cron.AddFunc(cfg.ReclaimSpec, s.reclaimAll); err != nil {
		return nil, fmt.Errorf("invalid reclaim cron spec %q: %w", cfg.ReclaimSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.AdmitSpec, s.admit); err != nil {
		return nil, fmt.Errorf("invalid admit cron spec %q: %w", cfg.AdmitSpec, err)
	}
	return s, nil
}

// Start begins scheduling in a background goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	logger.Info("Sweeper started")
}

// Stop halts scheduling and waits for in-flight sweeps to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Sweeper stopped")
}

// ReclaimAll sweeps every domain queue once and reports the total number of
// reclaimed records. Operation-tracked zombies feed the ledger as failed
// items, so a run whose worker died still reaches its terminal status.
// Exposed for the on-demand API path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: total reclaimed records across all queues.
//   - error: the first sweep failure, after attempting every queue.
func (s *Sweeper) ReclaimAll(ctx context.Context) (int64, error) {
	var total int64
	var firstErr error
	for _, q := range s.registry.All() {
		n, err := s.ReclaimQueue(ctx, q)
		total += n
		if err != nil {
			logger.CtxError(ctx, "Zombie sweep failed on queue %s: %v", q.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return total, firstErr
}

// ReclaimQueue sweeps one queue and feeds the operation ledger for every
// operation-tracked record this sweep reclaimed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - q: the queue to sweep.
// Returns:
//   - int64: number of reclaimed records.
//   - error: non-nil if the sweep fails; ledger reporting errors are logged.
func (s *Sweeper) ReclaimQueue(ctx context.Context, q *queue.Queue) (int64, error) {
	reclaimed, err := q.Reclaim(ctx, time.Now())

	for _, job := range reclaimed {
		if job.OperationID == nil {
			continue
		}
		opID := *job.OperationID
		timedOut := &domain.TimedOutError{After: q.ZombieTimeout()}
		if rerr := s.ledger.ReportError(ctx, opID, fmt.Sprintf("%s/%s: %s", q.Name(), job.SubjectKey, timedOut.Error())); rerr != nil {
			logger.CtxError(ctx, "Failed to report reclaim error for operation %s: %v", opID, rerr)
		}
		if _, perr := s.ledger.Progress(ctx, opID, 0, 1); perr != nil {
			logger.CtxError(ctx, "Failed to report reclaim progress for operation %s: %v", opID, perr)
		}
	}
	return int64(len(reclaimed)), err
}

func (s *Sweeper) reclaimAll() {
	ctx := logger.SetComponent(context.Background(), "sweeper")
	if _, err := s.ReclaimAll(ctx); err != nil {
		logger.CtxError(ctx, "Zombie sweep pass finished with errors: %v", err)
	}
}

func (s *Sweeper) admit() {
	ctx := logger.SetComponent(context.Background(), "sweeper")
	if _, err := s.ledger.TryAdmit(ctx); err != nil {
		logger.CtxError(ctx, "Fallback admission pass failed: %v", err)
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/logger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyActive is returned by Enqueue when the subject already has a
	// pending, processing, or rate_limited record.
	ErrAlreadyActive = errors.New("subject already has an active job")

	// ErrNotProcessing is returned by Complete and Fail when the record is no
	// longer processing, typically because zombie reclamation took it back.
	ErrNotProcessing = errors.New("job is not processing")
)

// Queue is one domain queue over the shared job_records table. Every instance
// carries its own retry budget, backoff curve, and zombie timeout; the state
// transitions themselves are conditional updates in the repository, so a Queue
// holds no mutable state and is safe for concurrent use.
type Queue struct {
	name string
	cfg  config.QueueConfig
	jobs *repository.JobRepository
}

// New creates a Queue bound to a domain queue name.
// Parameters:
//   - name: domain queue name, used as the queue column value.
//   - cfg: retry, backoff, and zombie-timeout tuning.
//   - jobs: job record repository.
// Returns:
//   - *Queue: queue instance.
func New(name string, cfg config.QueueConfig, jobs *repository.JobRepository) *Queue {
	return &Queue{name: name, cfg: cfg, jobs: jobs}
}

// Name returns the domain queue name.
func (q *Queue) Name() string {
	return q.name
}

// ZombieTimeout returns the configured abandonment timeout.
func (q *Queue) ZombieTimeout() time.Duration {
	return q.cfg.ZombieTimeout
}

// Enqueue adds work for a subject, keeping at most one record per subject.
// A terminal record for the subject is revived in place with the new payload
// and a fresh retry budget; an active record makes the call fail with
// ErrAlreadyActive.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - subjectKey: identity of the thing being worked on.
//   - payload: handler input for this run.
//   - operationID: optional ledger operation this job reports progress to.
// Returns:
//   - *domain.JobRecord: the pending record (revived or newly inserted).
//   - error: ErrAlreadyActive when the subject is already in flight.
func (q *Queue) Enqueue(ctx context.Context, subjectKey string, payload domain.JobPayload, operationID *string) (*domain.JobRecord, error) {
	id, revived, err := q.jobs.ReviveTerminal(ctx, q.name, subjectKey, payload, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s/%s: %w", q.name, subjectKey, err)
	}
	if revived {
		logger.CtxDebug(ctx, "Revived terminal job %s for subject %s on queue %s", id, subjectKey, q.name)
		return q.jobs.GetByID(ctx, id)
	}

	job := &domain.JobRecord{
		Queue:       q.name,
		SubjectKey:  subjectKey,
		Payload:     payload,
		Status:      domain.JobStatusPending,
		OperationID: operationID,
	}
	if err := q.jobs.Insert(ctx, job); err != nil {
		// The unique (queue, subject_key) index fires when the subject has an
		// active record; everything else is a real storage failure.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%s/%s: %w", q.name, subjectKey, ErrAlreadyActive)
		}
		return nil, fmt.Errorf("failed to enqueue %s/%s: %w", q.name, subjectKey, err)
	}
	return job, nil
}

// ClaimNext claims up to limit pending jobs for processing. Rate-limited
// records whose reset time has passed are promoted back to pending first, so
// a single poll loop drives both paths. Each claim is a conditional update;
// records grabbed by a concurrent claimer are simply skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of jobs to claim.
// Returns:
//   - []domain.JobRecord: the claimed records, already marked processing.
//   - error: non-nil if listing or claiming fails.
func (q *Queue) ClaimNext(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	now := time.Now()

	promoted, err := q.jobs.PromoteDueRateLimited(ctx, q.name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to promote rate-limited jobs on %s: %w", q.name, err)
	}
	if promoted > 0 {
		logger.With(logger.Fields{logger.FieldCount: promoted, logger.FieldQueue: q.name}).
			Debug(ctx, "Promoted rate-limited jobs back to pending")
	}

	candidates, err := q.jobs.ListPending(ctx, q.name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs on %s: %w", q.name, err)
	}

	claimed := make([]domain.JobRecord, 0, len(candidates))
	for _, job := range candidates {
		ok, err := q.jobs.Claim(ctx, job.ID, now)
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		if !ok {
			continue
		}
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &now
		job.Attempts++
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// Complete marks a processing job as completed.
// Returns ErrNotProcessing when the worker no longer owns the record.
func (q *Queue) Complete(ctx context.Context, id string) error {
	ok, err := q.jobs.CompleteFromProcessing(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("complete job %s: %w", id, ErrNotProcessing)
	}
	return nil
}

// Fail records a handler failure and routes the job by error class:
// permanent errors fail the record outright, rate-limited errors park it
// until the reset time, and other transient errors send it back to pending
// while retry budget remains.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job record ID.
//   - attempts: attempt count observed at claim time, used for backoff.
//   - jobErr: the handler error being recorded.
// Returns:
//   - domain.JobStatus: the status the record moved to.
//   - error: ErrNotProcessing when the worker no longer owns the record.
func (q *Queue) Fail(ctx context.Context, id string, attempts int, jobErr error) (domain.JobStatus, error) {
	now := time.Now()
	msg := jobErr.Error()

	if domain.IsPermanent(jobErr) {
		ok, err := q.jobs.FailFromProcessing(ctx, id, msg, now)
		if err != nil {
			return "", fmt.Errorf("failed to fail job %s: %w", id, err)
		}
		if !ok {
			return "", fmt.Errorf("fail job %s: %w", id, ErrNotProcessing)
		}
		return domain.JobStatusFailed, nil
	}

	if retryAfter, limited := domain.IsRateLimited(jobErr); limited {
		// A provider that sends no Retry-After gets the exponential curve.
		if retryAfter <= 0 {
			retryAfter = q.Backoff(attempts)
		}
		ok, err := q.jobs.RateLimitFromProcessing(ctx, id, msg, now.Add(retryAfter))
		if err != nil {
			return "", fmt.Errorf("failed to rate-limit job %s: %w", id, err)
		}
		if !ok {
			return "", fmt.Errorf("rate-limit job %s: %w", id, ErrNotProcessing)
		}
		return domain.JobStatusRateLimited, nil
	}

	ok, err := q.jobs.RetryFromProcessing(ctx, id, msg, q.cfg.MaxAttempts)
	if err != nil {
		return "", fmt.Errorf("failed to retry job %s: %w", id, err)
	}
	if ok {
		return domain.JobStatusPending, nil
	}

	// Retry refused: either the budget is spent or the record is no longer
	// processing. The terminal fail below disambiguates via its own guard.
	ok, err = q.jobs.FailFromProcessing(ctx, id, msg, now)
	if err != nil {
		return "", fmt.Errorf("failed to fail job %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("fail job %s: %w", id, ErrNotProcessing)
	}
	return domain.JobStatusFailed, nil
}

// Reclaim force-fails processing records claimed longer ago than the zombie
// timeout and returns the records this sweep won. Safe to run repeatedly and
// from multiple processes: each record is reclaimed by exactly one sweep, so
// callers can report ledger progress for their winners without double
// counting.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - now: current time the cutoff is derived from.
// Returns:
//   - []domain.JobRecord: records this sweep reclaimed, already marked failed.
//   - error: non-nil if the sweep fails.
func (q *Queue) Reclaim(ctx context.Context, now time.Time) ([]domain.JobRecord, error) {
	cutoff := now.Add(-q.cfg.ZombieTimeout)
	timedOut := &domain.TimedOutError{After: q.cfg.ZombieTimeout}

	candidates, err := q.jobs.ListZombies(ctx, q.name, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list zombies on %s: %w", q.name, err)
	}

	reclaimed := make([]domain.JobRecord, 0, len(candidates))
	for _, job := range candidates {
		ok, err := q.jobs.ReclaimZombie(ctx, job.ID, cutoff, timedOut.Error())
		if err != nil {
			return reclaimed, fmt.Errorf("failed to reclaim job %s: %w", job.ID, err)
		}
		if !ok {
			continue
		}
		job.Status = domain.JobStatusFailed
		reclaimed = append(reclaimed, job)
	}
	if len(reclaimed) > 0 {
		logger.With(logger.Fields{logger.FieldCount: len(reclaimed), logger.FieldQueue: q.name}).
			Warn(ctx, "Reclaimed abandoned processing jobs")
	}
	return reclaimed, nil
}

// Stats returns per-status record counts for the queue.
func (q *Queue) Stats(ctx context.Context) (map[domain.JobStatus]int64, error) {
	return q.jobs.CountByStatus(ctx, q.name)
}

// Backoff computes the exponential delay for the given attempt count, capped
// at the configured maximum.
func (q *Queue) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := q.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	if d > q.cfg.MaxBackoff {
		return q.cfg.MaxBackoff
	}
	return d
}

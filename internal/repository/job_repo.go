package repository

import (
	"context"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobRepository handles job record persistence for every domain queue.
// All state transitions are single conditional UPDATE statements guarded by
// RowsAffected, so concurrent callers race safely through the database.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// ReviveTerminal resets a terminal (completed/failed) record for the subject
// back to pending with a fresh payload and zeroed attempts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - queue: domain queue name.
//   - subjectKey: subject key to revive.
//   - payload: replacement payload for the new run.
//   - operationID: optional ledger operation the job reports progress to.
// Returns:
//   - string: ID of the revived record, empty if none matched.
//   - bool: true if a terminal record was revived.
//   - error: non-nil if the update fails.
func (r *JobRepository) ReviveTerminal(ctx context.Context, queue, subjectKey string, payload domain.JobPayload, operationID *string) (string, bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("queue = ? AND subject_key = ? AND status IN ?", queue, subjectKey,
			[]domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(map[string]interface{}{
			"status":              domain.JobStatusPending,
			"attempts":            0,
			"payload":             payload,
			"operation_id":        operationID,
			"queued_at":           now,
			"started_at":          nil,
			"completed_at":        nil,
			"last_error":          nil,
			"rate_limit_reset_at": nil,
		})
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected == 0 {
		return "", false, nil
	}

	var job domain.JobRecord
	if err := r.db.WithContext(ctx).
		Select("id").
		First(&job, "queue = ? AND subject_key = ?", queue, subjectKey).Error; err != nil {
		return "", false, err
	}
	return job.ID, true, nil
}

// Insert creates a fresh pending record for the subject. The unique
// (queue, subject_key) index rejects the insert when any record for the
// subject already exists; callers translate that into AlreadyActive.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: record to persist; ID is assigned when empty.
// Returns:
//   - error: gorm.ErrDuplicatedKey when the subject already has a record.
func (r *JobRepository) Insert(ctx context.Context, job *domain.JobRecord) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// PromoteDueRateLimited moves rate_limited records whose reset time has passed
// back to pending so claimers can pick them up.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - queue: domain queue name.
//   - now: current time used as the gate.
// Returns:
//   - int64: number of promoted records.
//   - error: non-nil if the update fails.
func (r *JobRepository) PromoteDueRateLimited(ctx context.Context, queue string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("queue = ? AND status = ? AND rate_limit_reset_at IS NOT NULL AND rate_limit_reset_at <= ?",
			queue, domain.JobStatusRateLimited, now).
		Updates(map[string]interface{}{
			"status":              domain.JobStatusPending,
			"rate_limit_reset_at": nil,
		})
	return res.RowsAffected, res.Error
}

// ListPending retrieves up to limit pending records in enqueue order.
func (r *JobRepository) ListPending(ctx context.Context, queue string, limit int) ([]domain.JobRecord, error) {
	var jobs []domain.JobRecord
	if err := r.db.WithContext(ctx).
		Where("queue = ? AND status = ?", queue, domain.JobStatusPending).
		Order("queued_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim transitions one pending record to processing and bumps attempts.
// Exactly one concurrent caller wins; everyone else sees false.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job record ID.
//   - now: timestamp recorded as started_at.
// Returns:
//   - bool: true if this caller claimed the record.
//   - error: non-nil if the update fails.
func (r *JobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

// CompleteFromProcessing transitions processing -> completed.
// Returns false when the record is not processing anymore, which means the
// reporting worker lost ownership (for example to zombie reclamation).
func (r *JobRepository) CompleteFromProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"completed_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// RetryFromProcessing transitions processing -> pending when the record still
// has retry budget left (attempts < maxAttempts).
func (r *JobRepository) RetryFromProcessing(ctx context.Context, id, errMsg string, maxAttempts int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("id = ? AND status = ? AND attempts < ?", id, domain.JobStatusProcessing, maxAttempts).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusPending,
			"started_at": nil,
			"last_error": errMsg,
		})
	return res.RowsAffected > 0, res.Error
}

// FailFromProcessing transitions processing -> failed terminal.
func (r *JobRepository) FailFromProcessing(ctx context.Context, id, errMsg string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"completed_at": now,
			"last_error":   errMsg,
		})
	return res.RowsAffected > 0, res.Error
}

// RateLimitFromProcessing transitions processing -> rate_limited with the time
// the record becomes claimable again.
func (r *JobRepository) RateLimitFromProcessing(ctx context.Context, id, errMsg string, resetAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":              domain.JobStatusRateLimited,
			"started_at":          nil,
			"last_error":          errMsg,
			"rate_limit_reset_at": resetAt,
		})
	return res.RowsAffected > 0, res.Error
}

// ListZombies retrieves processing records claimed before the cutoff.
// Candidates only: each must still win its ReclaimZombie update before it
// counts as reclaimed.
func (r *JobRepository) ListZombies(ctx context.Context, queue string, cutoff time.Time) ([]domain.JobRecord, error) {
	var jobs []domain.JobRecord
	if err := r.db.WithContext(ctx).
		Where("queue = ? AND status = ? AND started_at < ?", queue, domain.JobStatusProcessing, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReclaimZombie force-fails one abandoned processing record. The WHERE clause
// repeats the zombie condition, so concurrent sweeps and a worker report
// racing the sweep resolve to exactly one winner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job record ID.
//   - cutoff: the record must still have started_at before this.
//   - errMsg: synthetic timeout message recorded as last_error.
// Returns:
//   - bool: true if this caller reclaimed the record.
//   - error: non-nil if the update fails.
func (r *JobRepository) ReclaimZombie(ctx context.Context, id string, cutoff time.Time, errMsg string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("id = ? AND status = ? AND started_at < ?", id, domain.JobStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"completed_at": time.Now(),
			"last_error":   errMsg,
		})
	return res.RowsAffected > 0, res.Error
}

// GetByID retrieves a job record by ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	var job domain.JobRecord
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetBySubject retrieves the record for a subject key in a queue, if any.
func (r *JobRepository) GetBySubject(ctx context.Context, queue, subjectKey string) (*domain.JobRecord, error) {
	var job domain.JobRecord
	if err := r.db.WithContext(ctx).First(&job, "queue = ? AND subject_key = ?", queue, subjectKey).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByQueue retrieves job records for a queue with pagination, newest first.
func (r *JobRepository) ListByQueue(ctx context.Context, queue string, status domain.JobStatus, limit, offset int) ([]domain.JobRecord, error) {
	query := r.db.WithContext(ctx).Where("queue = ?", queue)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []domain.JobRecord
	if err := query.
		Order("queued_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountByStatus returns the number of records per status for a queue.
func (r *JobRepository) CountByStatus(ctx context.Context, queue string) (map[domain.JobStatus]int64, error) {
	type row struct {
		Status domain.JobStatus
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Select("status, COUNT(*) AS n").
		Where("queue = ?", queue).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

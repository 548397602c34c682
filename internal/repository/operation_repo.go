package repository

import (
	"context"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperationRepository handles the global operation ledger. The single-running-
// major invariant lives entirely in AdmitMajor's WHERE clause, so it holds
// across processes without any in-memory lock.
type OperationRepository struct {
	db *gorm.DB
}

// NewOperationRepository creates a new OperationRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *OperationRepository: repository instance bound to db.
func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Insert persists a new queued operation. Majors draw their queue position
// from a max+1 subselect inside the INSERT itself, keeping assignment a
// single statement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - op: operation to persist; ID and timestamps are assigned when empty.
// Returns:
//   - error: non-nil if the insert fails.
func (r *OperationRepository) Insert(ctx context.Context, op *domain.Operation) error {
	now := time.Now()
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.Status == "" {
		op.Status = domain.OperationQueued
	}
	if op.OnItemError == "" {
		op.OnItemError = domain.OnItemErrorContinue
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = now
	}

	if op.Classification != domain.ClassMajor {
		return r.db.WithContext(ctx).Create(op).Error
	}

	ctxValue, err := op.Context.Value()
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO global_operations (
			id, type, classification, status, description, context, on_item_error,
			total_items, completed_items, failed_items, queue_position,
			started_by, queued_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0,
			(SELECT COALESCE(MAX(queue_position), 0) + 1 FROM global_operations WHERE classification = ?),
			?, ?, ?, ?)`,
		op.ID, op.Type, op.Classification, op.Status, op.Description, ctxValue,
		op.OnItemError, op.TotalItems, domain.ClassMajor,
		op.StartedBy, op.QueuedAt, now, now,
	).Error
}

// AdmitMinor transitions a queued minor to running. Minors never wait.
func (r *OperationRepository) AdmitMinor(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ? AND classification = ?", id, domain.OperationQueued, domain.ClassMinor).
		Updates(map[string]interface{}{
			"status":     domain.OperationRunning,
			"started_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// AdmitMajor transitions a queued major to running only when no other major
// is running. The existence check and the write are one UPDATE statement,
// which is what makes the invariant hold under concurrent admission passes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: operation ID to admit.
//   - now: timestamp recorded as started_at.
// Returns:
//   - bool: true if the operation was admitted.
//   - error: non-nil if the update fails.
func (r *OperationRepository) AdmitMajor(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE global_operations
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND classification = ?
		  AND NOT EXISTS (
			SELECT 1 FROM global_operations other
			WHERE other.classification = ? AND other.status = ? AND other.id <> global_operations.id
		  )`,
		domain.OperationRunning, now, now,
		id, domain.OperationQueued, domain.ClassMajor,
		domain.ClassMajor, domain.OperationRunning,
	)
	return res.RowsAffected > 0, res.Error
}

// NextQueuedMajor returns the queued major next in line, ordered by queue
// position with queued_at and id as tie-breakers so the order stays total.
// Returns nil when no major is queued.
func (r *OperationRepository) NextQueuedMajor(ctx context.Context) (*domain.Operation, error) {
	var op domain.Operation
	err := r.db.WithContext(ctx).
		Where("classification = ? AND status = ?", domain.ClassMajor, domain.OperationQueued).
		Order("queue_position ASC, queued_at ASC, id ASC").
		First(&op).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

// ListQueuedMinors returns every queued minor operation.
func (r *OperationRepository) ListQueuedMinors(ctx context.Context) ([]domain.Operation, error) {
	var ops []domain.Operation
	if err := r.db.WithContext(ctx).
		Where("classification = ? AND status = ?", domain.ClassMinor, domain.OperationQueued).
		Order("queued_at ASC").
		Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

// AddProgress atomically adds to the progress counters of a running
// operation. The guard keeps completed+failed from ever exceeding
// total_items; a delta that would overshoot is rejected wholesale.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: operation ID.
//   - completedDelta, failedDelta: non-negative increments.
// Returns:
//   - bool: true if the counters were updated.
//   - error: non-nil if the update fails.
func (r *OperationRepository) AddProgress(ctx context.Context, id string, completedDelta, failedDelta int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ? AND completed_items + failed_items + ? <= total_items",
			id, domain.OperationRunning, completedDelta+failedDelta).
		Updates(map[string]interface{}{
			"completed_items": gorm.Expr("completed_items + ?", completedDelta),
			"failed_items":    gorm.Expr("failed_items + ?", failedDelta),
		})
	return res.RowsAffected > 0, res.Error
}

// CompleteIfDone transitions a running operation whose counters have reached
// total_items to completed. Only one of any number of concurrent callers
// observes true, which is what makes completion exact-once.
func (r *OperationRepository) CompleteIfDone(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ? AND completed_items + failed_items >= total_items",
			id, domain.OperationRunning).
		Updates(map[string]interface{}{
			"status":       domain.OperationCompleted,
			"completed_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// Pause transitions running -> paused.
func (r *OperationRepository) Pause(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ?", id, domain.OperationRunning).
		Update("status", domain.OperationPaused)
	return res.RowsAffected > 0, res.Error
}

// ResumeToQueued transitions paused -> queued. The operation keeps its
// original queue position and re-enters admission from there.
func (r *OperationRepository) ResumeToQueued(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ?", id, domain.OperationPaused).
		Updates(map[string]interface{}{
			"status":     domain.OperationQueued,
			"started_at": nil,
		})
	return res.RowsAffected > 0, res.Error
}

// Cancel transitions a queued, running, or paused operation to cancelled.
func (r *OperationRepository) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status IN ?", id,
			[]domain.OperationStatus{domain.OperationQueued, domain.OperationRunning, domain.OperationPaused}).
		Updates(map[string]interface{}{
			"status":       domain.OperationCancelled,
			"completed_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// AbortToFailed transitions a non-terminal operation to failed.
func (r *OperationRepository) AbortToFailed(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status IN ?", id,
			[]domain.OperationStatus{domain.OperationQueued, domain.OperationRunning, domain.OperationPaused}).
		Updates(map[string]interface{}{
			"status":       domain.OperationFailed,
			"completed_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// AppendError appends one entry to the operation's error log and prunes the
// oldest rows past limit. The insert is the atomic append primitive; pruning
// is best-effort housekeeping.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - operationID: operation the error belongs to.
//   - message: error text.
//   - limit: maximum retained entries for the operation.
// Returns:
//   - error: non-nil if the insert fails.
func (r *OperationRepository) AppendError(ctx context.Context, operationID, message string, limit int) error {
	entry := &domain.OperationError{
		OperationID: operationID,
		Message:     message,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	if limit <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(`
		DELETE FROM operation_errors
		WHERE operation_id = ? AND id NOT IN (
			SELECT id FROM operation_errors
			WHERE operation_id = ?
			ORDER BY id DESC
			LIMIT ?
		)`, operationID, operationID, limit).Error
}

// ListErrors returns the most recent error-log entries, oldest first.
func (r *OperationRepository) ListErrors(ctx context.Context, operationID string, limit int) ([]domain.OperationError, error) {
	var entries []domain.OperationError
	if err := r.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetByID retrieves an operation by ID.
func (r *OperationRepository) GetByID(ctx context.Context, id string) (*domain.Operation, error) {
	var op domain.Operation
	if err := r.db.WithContext(ctx).First(&op, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// List retrieves operations for the live feed with optional filters, newest
// first.
func (r *OperationRepository) List(ctx context.Context, status domain.OperationStatus, class domain.OperationClass, limit, offset int) ([]domain.Operation, error) {
	query := r.db.WithContext(ctx).Model(&domain.Operation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if class != "" {
		query = query.Where("classification = ?", class)
	}
	var ops []domain.Operation
	if err := query.
		Order("queued_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

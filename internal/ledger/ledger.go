package ledger

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
	// ErrNotFound is returned when no operation exists for the given ID.
	ErrNotFound = errors.New("operation not found")

	// ErrInvalidTransition is returned when pause, resume, or cancel is asked
	// of an operation whose current status does not permit it.
	ErrInvalidTransition = errors.New("operation status does not permit this transition")
)

// Classify maps an operation type to its admission class. Bulk enrichment and
// scoring runs are majors and serialize system-wide; extraction and guide
// generation are minors and run freely.
func Classify(t domain.OperationType) domain.OperationClass {
	switch t {
	case domain.OperationDealEnrichment, domain.OperationBuyerEnrichment, domain.OperationFitScoring:
		return domain.ClassMajor
	default:
		return domain.ClassMinor
	}
}

// SubmitRequest carries everything needed to create a queued operation.
type SubmitRequest struct {
	Type        domain.OperationType
	Description string
	Context     domain.OperationContext
	OnItemError domain.OnItemError
	TotalItems  int
	StartedBy   string
}

// Ledger is the global operation ledger and admission controller. It owns
// every operation status transition; workers only feed it progress and
// errors. All decisions are conditional updates in the repository, so a
// single Ledger value serves any number of goroutines and processes.
type Ledger struct {
	ops           *repository.OperationRepository
	errorLogLimit int
}

// New creates a Ledger.
// Parameters:
//   - ops: operation repository.
//   - cfg: ledger tuning, currently the error-log bound.
// Returns:
//   - *Ledger: ledger instance.
func New(ops *repository.OperationRepository, cfg *config.LedgerConfig) *Ledger {
	return &Ledger{ops: ops, errorLogLimit: cfg.ErrorLogLimit}
}

// Submit validates and persists a new queued operation, then immediately runs
// an admission pass so an unblocked operation starts without waiting for the
// sweeper.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: operation parameters.
// Returns:
//   - *domain.Operation: the persisted operation, possibly already running.
//   - error: non-nil on validation or storage failure.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (*domain.Operation, error) {
	if err := req.Context.Validate(req.Type); err != nil {
		return nil, fmt.Errorf("invalid operation context: %w", err)
	}
	if req.TotalItems < 0 {
		return nil, fmt.Errorf("total_items must not be negative, got %d", req.TotalItems)
	}
	onItemError := req.OnItemError
	if onItemError == "" {
		onItemError = domain.OnItemErrorContinue
	}
	if onItemError != domain.OnItemErrorContinue && onItemError != domain.OnItemErrorAbort {
		return nil, fmt.Errorf("unknown on_item_error policy %q", onItemError)
	}

	op := &domain.Operation{
		Type:           req.Type,
		Classification: Classify(req.Type),
		Status:         domain.OperationQueued,
		Description:    req.Description,
		Context:        req.Context,
		OnItemError:    onItemError,
		TotalItems:     req.TotalItems,
		StartedBy:      req.StartedBy,
	}
	if err := l.ops.Insert(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to submit operation: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldOperationID: op.ID,
		logger.FieldStatus:      op.Status.String(),
	}).Info(ctx, "Submitted %s %s operation", op.Classification, op.Type)

	if _, err := l.TryAdmit(ctx); err != nil {
		// The operation is safely queued; the sweeper retries admission.
		logger.CtxWarn(ctx, "Admission pass after submit failed: %v", err)
	}
	return l.Get(ctx, op.ID)
}

// TryAdmit runs one admission pass: every queued minor starts, and the
// front-of-line major starts when no other major is running. Concurrent
// passes are harmless because each admission is its own guarded update.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of operations admitted in this pass.
//   - error: non-nil if a ledger read or update fails.
func (l *Ledger) TryAdmit(ctx context.Context) (int, error) {
	now := time.Now()
	admitted := 0

	minors, err := l.ops.ListQueuedMinors(ctx)
	if err != nil {
		return admitted, fmt.Errorf("failed to list queued minors: %w", err)
	}
	for _, op := range minors {
		ok, err := l.ops.AdmitMinor(ctx, op.ID, now)
		if err != nil {
			return admitted, fmt.Errorf("failed to admit minor %s: %w", op.ID, err)
		}
		if ok {
			admitted++
			logger.With(logger.Fields{logger.FieldOperationID: op.ID}).
				Info(ctx, "Admitted minor %s operation", op.Type)
		}
	}

	next, err := l.ops.NextQueuedMajor(ctx)
	if err != nil {
		return admitted, fmt.Errorf("failed to find next queued major: %w", err)
	}
	if next != nil {
		ok, err := l.ops.AdmitMajor(ctx, next.ID, now)
		if err != nil {
			return admitted, fmt.Errorf("failed to admit major %s: %w", next.ID, err)
		}
		if ok {
			admitted++
			logger.With(logger.Fields{logger.FieldOperationID: next.ID}).
				Info(ctx, "Admitted major %s operation at queue position %d", next.Type, next.QueuePosition)
		}
	}
	return admitted, nil
}

// Progress adds item outcomes to a running operation and completes it when
// the counters reach total_items. Completion frees the major slot, so a
// successful completion triggers another admission pass.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: operation ID.
//   - completedDelta, failedDelta: non-negative outcome increments.
// Returns:
//   - bool: true when this call completed the operation.
//   - error: non-nil on invalid deltas or storage failure.
func (l *Ledger) Progress(ctx context.Context, id string, completedDelta, failedDelta int) (bool, error) {
	if completedDelta < 0 || failedDelta < 0 {
		return false, fmt.Errorf("progress deltas must not be negative: completed=%d failed=%d", completedDelta, failedDelta)
	}
	if completedDelta == 0 && failedDelta == 0 {
		return false, nil
	}

	ok, err := l.ops.AddProgress(ctx, id, completedDelta, failedDelta)
	if err != nil {
		return false, fmt.Errorf("failed to record progress for %s: %w", id, err)
	}
	if !ok {
		// Not running anymore (paused, cancelled) or the delta would push the
		// counters past total_items. Either way the report is dropped.
		logger.With(logger.Fields{logger.FieldOperationID: id}).
			Warn(ctx, "Dropped progress report (+%d completed, +%d failed)", completedDelta, failedDelta)
		return false, nil
	}

	done, err := l.ops.CompleteIfDone(ctx, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to finalize %s: %w", id, err)
	}
	if done {
		logger.With(logger.Fields{logger.FieldOperationID: id}).
			Info(ctx, "Operation completed")
		if _, err := l.TryAdmit(ctx); err != nil {
			logger.CtxWarn(ctx, "Admission pass after completion failed: %v", err)
		}
	}
	return done, nil
}

// ReportError appends a message to the operation's bounded error log. When
// the operation's policy is abort, the run is moved to failed and the major
// slot is released.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: operation ID.
//   - message: error text from the failing item.
// Returns:
//   - error: non-nil on storage failure.
func (l *Ledger) ReportError(ctx context.Context, id, message string) error {
	if err := l.ops.AppendError(ctx, id, message, l.errorLogLimit); err != nil {
		return fmt.Errorf("failed to append error for %s: %w", id, err)
	}

	op, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if op.OnItemError != domain.OnItemErrorAbort {
		return nil
	}

	aborted, err := l.ops.AbortToFailed(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to abort %s: %w", id, err)
	}
	if aborted {
		logger.With(logger.Fields{logger.FieldOperationID: id}).
			Warn(ctx, "Operation aborted on first item error")
		if _, err := l.TryAdmit(ctx); err != nil {
			logger.CtxWarn(ctx, "Admission pass after abort failed: %v", err)
		}
	}
	return nil
}

// Pause moves a running operation to paused. Pausing a major releases the
// major slot, so the next queued major may start immediately.
func (l *Ledger) Pause(ctx context.Context, id string) error {
	ok, err := l.ops.Pause(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to pause %s: %w", id, err)
	}
	if !ok {
		return l.transitionRefused(ctx, id)
	}
	logger.With(logger.Fields{logger.FieldOperationID: id}).Info(ctx, "Operation paused")
	if _, err := l.TryAdmit(ctx); err != nil {
		logger.CtxWarn(ctx, "Admission pass after pause failed: %v", err)
	}
	return nil
}

// Resume moves a paused operation back to queued at its original queue
// position and runs an admission pass. A resumed major does not preempt a
// running one; it waits its turn like any other queued major.
func (l *Ledger) Resume(ctx context.Context, id string) error {
	ok, err := l.ops.ResumeToQueued(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to resume %s: %w", id, err)
	}
	if !ok {
		return l.transitionRefused(ctx, id)
	}
	logger.With(logger.Fields{logger.FieldOperationID: id}).Info(ctx, "Operation resumed to queue")
	if _, err := l.TryAdmit(ctx); err != nil {
		logger.CtxWarn(ctx, "Admission pass after resume failed: %v", err)
	}
	return nil
}

// Cancel terminally cancels a queued, running, or paused operation.
// Cancelling a running major releases the major slot.
func (l *Ledger) Cancel(ctx context.Context, id string) error {
	ok, err := l.ops.Cancel(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to cancel %s: %w", id, err)
	}
	if !ok {
		return l.transitionRefused(ctx, id)
	}
	logger.With(logger.Fields{logger.FieldOperationID: id}).Info(ctx, "Operation cancelled")
	if _, err := l.TryAdmit(ctx); err != nil {
		logger.CtxWarn(ctx, "Admission pass after cancel failed: %v", err)
	}
	return nil
}

// Get retrieves a single operation.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.Operation, error) {
	op, err := l.ops.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load operation %s: %w", id, err)
	}
	return op, nil
}

// List retrieves operations for the live feed, newest first.
func (l *Ledger) List(ctx context.Context, status domain.OperationStatus, class domain.OperationClass, limit, offset int) ([]domain.Operation, error) {
	return l.ops.List(ctx, status, class, limit, offset)
}

// Errors retrieves the operation's bounded error log, oldest first.
func (l *Ledger) Errors(ctx context.Context, id string) ([]domain.OperationError, error) {
	return l.ops.ListErrors(ctx, id, l.errorLogLimit)
}

// transitionRefused distinguishes a missing operation from one whose current
// status forbids the requested transition.
func (l *Ledger) transitionRefused(ctx context.Context, id string) error {
	op, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("operation %s is %s: %w", id, op.Status, ErrInvalidTransition)
}

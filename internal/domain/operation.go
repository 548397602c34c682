package domain

import "time"

// OperationType enumerates the kinds of bulk background work the platform runs.
type OperationType string

const (
	OperationDealEnrichment     OperationType = "deal_enrichment"
	OperationBuyerEnrichment    OperationType = "buyer_enrichment"
	OperationCriteriaExtraction OperationType = "criteria_extraction"
	OperationFitScoring         OperationType = "fit_scoring"
	OperationGuideGeneration    OperationType = "guide_generation"
)

// OperationClass splits operations into system-wide-exclusive "major" runs and
// freely concurrent "minor" runs.
type OperationClass string

const (
	ClassMajor OperationClass = "major"
	ClassMinor OperationClass = "minor"
)

// OperationStatus represents the lifecycle status of a global operation.
type OperationStatus string

const (
	OperationQueued    OperationStatus = "queued"
	OperationRunning   OperationStatus = "running"
	OperationPaused    OperationStatus = "paused"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
	OperationCancelled OperationStatus = "cancelled"
)

func (s OperationStatus) String() string {
	return string(s)
}

// Terminal reports whether the status admits no further transitions.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed || s == OperationCancelled
}

// OperationTransition describes a single edge in the operation state machine.
type OperationTransition struct {
	From OperationStatus
	To   OperationStatus
}

// ValidOperationTransitions enumerates every legal operation status edge.
// Resume goes paused -> queued: a resumed major must re-satisfy the
// single-running-major invariant before it runs again.
var ValidOperationTransitions = []OperationTransition{
	{From: OperationQueued, To: OperationRunning},
	{From: OperationQueued, To: OperationCancelled},
	{From: OperationQueued, To: OperationFailed},
	{From: OperationRunning, To: OperationPaused},
	{From: OperationRunning, To: OperationCompleted},
	{From: OperationRunning, To: OperationFailed},
	{From: OperationRunning, To: OperationCancelled},
	{From: OperationPaused, To: OperationQueued},
	{From: OperationPaused, To: OperationCancelled},
	{From: OperationPaused, To: OperationFailed},
}

// IsValidOperationTransition reports whether moving from one operation status
// to another is permitted by the state machine.
func IsValidOperationTransition(from, to OperationStatus) bool {
	for _, t := range ValidOperationTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// OnItemError selects what happens to the whole operation when a single item
// fails: keep running and count it, or abort the run.
type OnItemError string

const (
	OnItemErrorContinue OnItemError = "continue"
	OnItemErrorAbort    OnItemError = "abort"
)

// Operation represents one operator-visible bulk run in the global ledger.
// Status transitions are owned by the admission controller; workers own only
// the progress counters and the error log.
type Operation struct {
	ID             string           `gorm:"type:text;primaryKey" json:"id"`
	Type           OperationType    `gorm:"type:text;not null" json:"operation_type"`
	Classification OperationClass   `gorm:"type:text;not null;index:idx_global_operations_class_status" json:"classification"`
	Status         OperationStatus  `gorm:"type:text;default:queued;index:idx_global_operations_class_status" json:"status"`
	Description    string           `gorm:"type:text" json:"description"`
	Context        OperationContext `gorm:"type:text" json:"context"`
	OnItemError    OnItemError      `gorm:"type:text;default:continue" json:"on_item_error"`
	TotalItems     int              `gorm:"default:0" json:"total_items"`
	CompletedItems int              `gorm:"default:0" json:"completed_items"`
	FailedItems    int              `gorm:"default:0" json:"failed_items"`
	QueuePosition  int              `gorm:"default:0" json:"queue_position"`
	StartedBy      string           `gorm:"type:text" json:"started_by"`
	QueuedAt       time.Time        `json:"queued_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Operation.
func (Operation) TableName() string {
	return "global_operations"
}

// OperationError is one bounded error-log entry for an operation.
// Entries are append-only; the store prunes the oldest rows past the bound.
type OperationError struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OperationID string    `gorm:"type:text;not null;index:idx_operation_errors_operation" json:"operation_id"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for OperationError.
func (OperationError) TableName() string {
	return "operation_errors"
}

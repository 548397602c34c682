package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle status of a job record.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// JobStatusFailed, and JobStatusRateLimited.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusRateLimited JobStatus = "rate_limited"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is a terminal state.
// Only terminal records may be revived by a re-enqueue.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Active reports whether the record counts against the
// one-active-record-per-subject invariant.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// JobTransition describes a single edge in the job state machine.
type JobTransition struct {
	From JobStatus
	To   JobStatus
}

// ValidJobTransitions enumerates every legal job status edge.
// failed -> pending happens only through an explicit re-enqueue.
var ValidJobTransitions = []JobTransition{
	{From: JobStatusPending, To: JobStatusProcessing},
	{From: JobStatusProcessing, To: JobStatusCompleted},
	{From: JobStatusProcessing, To: JobStatusFailed},
	{From: JobStatusProcessing, To: JobStatusPending},
	{From: JobStatusProcessing, To: JobStatusRateLimited},
	{From: JobStatusRateLimited, To: JobStatusPending},
	{From: JobStatusCompleted, To: JobStatusPending},
	{From: JobStatusFailed, To: JobStatusPending},
}

// IsValidJobTransition reports whether moving from one job status to another
// is permitted by the state machine.
func IsValidJobTransition(from, to JobStatus) bool {
	for _, t := range ValidJobTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// JobPayload is a custom type for storing the job payload as JSON in the database.
type JobPayload map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (p JobPayload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *JobPayload) Scan(value interface{}) error {
	if value == nil {
		*p = JobPayload{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JobPayload")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, p)
}

// JobRecord represents one unit of work in a domain queue.
// At most one record exists per (queue, subject key); re-enqueue after a
// terminal outcome revives the existing row instead of inserting a new one.
type JobRecord struct {
	ID               string      `gorm:"type:text;primaryKey" json:"id"`
	Queue            string      `gorm:"type:text;not null;uniqueIndex:idx_job_records_subject;index:idx_job_records_queue_status" json:"queue"`
	SubjectKey       string      `gorm:"type:text;not null;uniqueIndex:idx_job_records_subject" json:"subject_key"`
	Payload          JobPayload  `gorm:"type:text" json:"payload"`
	Status           JobStatus   `gorm:"type:text;default:pending;index:idx_job_records_queue_status" json:"status"`
	Attempts         int         `gorm:"default:0" json:"attempts"`
	OperationID      *string     `gorm:"type:text;index:idx_job_records_operation" json:"operation_id,omitempty"`
	QueuedAt         time.Time   `json:"queued_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	LastError        *string     `gorm:"type:text" json:"last_error,omitempty"`
	RateLimitResetAt *time.Time  `json:"rate_limit_reset_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName returns the database table name for JobRecord.
func (JobRecord) TableName() string {
	return "job_records"
}

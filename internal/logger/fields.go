package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldOperationID is the global operation (ledger) ID
	FieldOperationID = "operation_id"

	// FieldJobID is the job record ID
	FieldJobID = "job_id"

	// FieldQueue is the domain queue name
	FieldQueue = "queue"

	// FieldSubjectKey is the subject key a job operates on
	FieldSubjectKey = "subject_key"

	// FieldWorkerID is the claiming worker identifier
	FieldWorkerID = "worker_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldAttempts is the dispatch attempt number for a job
	FieldAttempts = "attempts"

	// FieldStatus is the operation status
	FieldStatus = "status"
)

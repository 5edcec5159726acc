package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields. These travel with the context through the call chain.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldWorkerID  = "worker_id"
	FieldComponent = "component"
	FieldURL       = "source_url"
	FieldUserID    = "user_id"
)

// Metric fields, attached to single entries for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)

package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields carried on the context logger through a harvest.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the harvest job ID
	FieldJobID = "job_id"

	// FieldUserID is the user the harvest runs for
	FieldUserID = "user_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldCommunity is the community being fetched
	FieldCommunity = "community"

	// FieldAdapter is the source adapter name
	FieldAdapter = "adapter"

	// FieldBatch is the 1-based batch index
	FieldBatch = "batch"
)

// Metric fields attached per entry.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldResult is the adapter result kind
	FieldResult = "result"

	// FieldSize is the response size in bytes
	FieldSize = "size"
)

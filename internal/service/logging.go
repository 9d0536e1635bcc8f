package service

// Standardized structured log field names. Handlers and services use these
// constants so the same fact is always logged under the same key.
const (
	// Identity fields
	LogFieldWorkspace  = "workspace"
	LogFieldInstance   = "instance"
	LogFieldMessageID  = "message_id"
	LogFieldExternalID = "external_id"
	LogFieldContactID  = "contact_id"

	// Component fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Event fields
	LogFieldEvent       = "event"
	LogFieldEventID     = "event_id"
	LogFieldDeliveryKey = "delivery_key"
	LogFieldMessageType = "message_type"
	LogFieldDirection   = "direction" // "incoming" or "outgoing"
	LogFieldOutcome     = "outcome"

	// Measurement fields
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// HTTP fields
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"

	// Tracing fields
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Error fields
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

package logger

// Standard field names. Use these instead of raw strings so log queries
// stay stable.
const (
	FieldEvent       = "event"
	FieldRunID       = "run_id"
	FieldFile        = "file"
	FieldStrategy    = "strategy"
	FieldReason      = "reason"
	FieldError       = "error"
	FieldErrorClass  = "error_class"
	FieldAttempt     = "attempt"
	FieldDelay       = "delay"
	FieldInstanceID  = "instance_id"
	FieldMatchedID   = "matched_id"
	FieldCriterion   = "criterion"
	FieldDestination = "destination"
	FieldOutcome     = "outcome"
	FieldWorkers     = "workers"
	FieldCount       = "count"
	FieldDurationMS  = "duration_ms"
	FieldRegistry    = "registry"
	FieldSize        = "size"
	FieldSkipped     = "skipped"
)

// Events, one per pipeline transition
const (
	EventRunStart             = "run_start"
	EventProcessingStart      = "processing_start"
	EventReadFailed           = "read_failed"
	EventInvalidFormat        = "invalid_format"
	EventValidationFailed     = "validation_failed"
	EventCorruptedDocument    = "corrupted_document"
	EventDuplicateCheckFailed = "duplicate_check_failed"
	EventDuplicateFound       = "duplicate_found"
	EventUploadRetry          = "upload_retry"
	EventUploadSucceeded      = "upload_succeeded"
	EventUploadFailed         = "upload_failed"
	EventFileMoved            = "file_moved"
	EventMoveFailed           = "move_failed"
	EventRunSummary           = "run_summary"
)

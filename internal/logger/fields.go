package logger

// Standard field names for structured logging.
const (
	FieldSessionID  = "session_id"
	FieldGeneration = "generation"
	FieldComponent  = "component"
	FieldOperation  = "operation"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldState      = "state"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldFile       = "file"
	FieldPort       = "port"
	FieldModel      = "model"
	FieldClass      = "class"
)

package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldKind       = "kind"
	FieldOwner      = "owner"
	FieldRecordID   = "record_id"
	FieldClientID   = "record_client_id"
	FieldAmount     = "amount"
	FieldMirrorPath = "mirror_path"
	FieldSheetRef   = "sheet_ref"
)

// Standard component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentExport    = "export"
	ComponentMirror    = "mirror"
	ComponentReconcile = "reconcile"
	ComponentCharts    = "charts"
	ComponentAdmin     = "admin"
)

// Standard operation names.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpList    = "list"
	OpSubmit  = "submit"
	OpRefresh = "refresh"
	OpExport  = "export"
	OpMigrate = "migrate"
)

package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldFamilyID   = "family_id"
	FieldUID        = "uid"
	FieldEmail      = "email"
	FieldRole       = "role"
	FieldSourceID   = "source_id"
	FieldDestID     = "dest_id"
	FieldAmount     = "amount"
	FieldBackend    = "backend"
	FieldSkipped    = "skipped"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentDirectory = "directory"
	ComponentLedger    = "ledger"
	ComponentDocstore  = "docstore"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentIdentity  = "identity"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpInvite   = "invite"
	OpTransfer = "transfer"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

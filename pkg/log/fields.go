package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor, set by pkg/middleware
	FieldUserID = "user_id"
	FieldEmail  = "email"

	// Chat
	FieldConnectionID = "connection_id"
	FieldEvent        = "event"
	FieldRoomID       = "room_id"
	FieldMembers      = "num_users"
	FieldConnectedFor = "connected_ms"
	FieldIdleFor      = "idle_ms"

	FieldService = "service"

	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

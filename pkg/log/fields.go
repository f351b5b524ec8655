package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldRoomID        = "room_id"
	FieldRoomSlug      = "room_slug"
	FieldParticipantID = "participant_id"
	FieldNickname      = "nickname"

	// Relay
	FieldSessionID   = "session_id"
	FieldUpstreamURL = "upstream_url"
	FieldClosedBy    = "closed_by"
	FieldCloseCode   = "close_code"
	FieldCloseReason = "close_reason"
	FieldDuration    = "duration_ms"
	FieldForwarded   = "forwarded"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

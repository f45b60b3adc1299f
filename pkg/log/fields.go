package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService = "service"

	// Live session
	FieldHostID   = "host_id"
	FieldConnID   = "conn_id"
	FieldTrackID  = "track_id"
	FieldEvent    = "event"
	FieldDrift    = "drift_s"
	FieldPosition = "position_s"
)

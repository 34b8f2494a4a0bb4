package utils

type contextKey string

// Request-scoped context keys set by the HTTP handlers
const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	OperatorIDKey contextKey = "operator_id"
)

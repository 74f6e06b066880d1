package types

// Request headers read by the API
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "x-api-key"
	HeaderRequestID     = "X-Request-ID"
)

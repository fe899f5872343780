package core

// Default config constants
const (
	DefaultPort             = "7860"
	DefaultGinMode          = "release"
	DefaultModelsConfigPath = "models.json"
	DefaultRateLimit        = 120
	CORSMaxAge              = "86400"
)

// Content type and header constants
const (
	ContentTypeJSON     = "application/json"
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderXAPIKey       = "x-api-key"
	AuthBearerPrefix    = "Bearer "
)

// RoleUser is the only chat role sent upstream.
const RoleUser = "user"

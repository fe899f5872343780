package core

import "time"

// Comparison limits
const (
	// MaxModelsPerComparison bounds the fan-out width of a single comparison.
	MaxModelsPerComparison = 8
	RequestIDPrefix        = "req_"
	RequestIDRandomLength  = 9
)

// Generation parameter defaults sent with every upstream call
const (
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 4000
	DefaultUpstreamTimeout = 60 * time.Second
)

// OpenRouter upstream constants
const (
	OpenRouterChatEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	DefaultAppURL          = "http://localhost:3000"
	DefaultAppTitle        = "AI Fiesta - Model Comparison"
	HeaderHTTPReferer      = "HTTP-Referer"
	HeaderXTitle           = "X-Title"
)

// Client-facing error messages
const (
	ErrMsgMissingFields     = "Prompt and selected models are required"
	ErrMsgTooManyModels     = "Maximum 8 models can be compared at once"
	ErrMsgInvalidBody       = "Invalid request body"
	ErrMsgInternal          = "Internal server error"
	ErrMsgNoChoices         = "No response choices from model"
	ErrMsgAPIKeyMissing     = "OpenRouter API key not configured. Please add OPENROUTER_API_KEY to your environment variables."
	ErrMsgUnknownUpstream   = "Unknown error occurred"
	ErrMsgUpstreamStatusFmt = "API Error (%d): %s"
)

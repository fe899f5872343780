package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aifiesta/internal/core"
	"aifiesta/internal/util"
)

// ProcessorConfig holds the upstream credential and the fixed generation parameters.
type ProcessorConfig struct {
	APIKey      string
	Endpoint    string
	AppURL      string
	AppTitle    string
	Temperature float64
	MaxTokens   int
	// Timeout bounds one model call; zero disables the per-call deadline.
	Timeout time.Duration
}

// RequestProcessor performs OpenRouter chat completions for single models
type RequestProcessor struct {
	config     ProcessorConfig
	httpClient *http.Client
	logger     core.Logger
}

// NewRequestProcessor creates a new request processor
func NewRequestProcessor(config ProcessorConfig, httpClient *http.Client, logger core.Logger) *RequestProcessor {
	if config.Endpoint == "" {
		config.Endpoint = core.OpenRouterChatEndpoint
	}
	if config.AppURL == "" {
		config.AppURL = core.DefaultAppURL
	}
	if config.AppTitle == "" {
		config.AppTitle = core.DefaultAppTitle
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = core.DefaultMaxTokens
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &RequestProcessor{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BuildCompletionPayload builds the request body for one model: a single user message
// plus the configured temperature and max_tokens.
func (p *RequestProcessor) BuildCompletionPayload(modelID, prompt string) ([]byte, error) {
	payload := core.CompletionRequest{
		Model: modelID,
		Messages: []core.ChatMessage{
			{Role: core.RoleUser, Content: prompt},
		},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	payloadBytes, err := util.MarshalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	p.logger.Debug("OpenRouter payload: model=%s, prompt_len=%d, size=%d", modelID, len(prompt), len(payloadBytes))
	return payloadBytes, nil
}

// SendUpstreamRequest posts a completion payload to the configured endpoint
func (p *RequestProcessor) SendUpstreamRequest(ctx context.Context, payloadBytes []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.config.Endpoint,
		bytes.NewBuffer(payloadBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(core.HeaderAuthorization, core.AuthBearerPrefix+p.config.APIKey)
	req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	req.Header.Set(core.HeaderHTTPReferer, p.config.AppURL)
	req.Header.Set(core.HeaderXTitle, p.config.AppTitle)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	p.logger.Debug("OpenRouter response status: %d", resp.StatusCode)
	return resp, nil
}

// Complete runs one model call and reports every failure inside the returned outcome.
func (p *RequestProcessor) Complete(ctx context.Context, modelID, prompt string) core.ModelOutcome {
	if p.config.APIKey == "" {
		p.logger.Error("OpenRouter API key not configured")
		return failure(modelID, core.ErrMsgAPIKeyMissing)
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	payloadBytes, err := p.BuildCompletionPayload(modelID, prompt)
	if err != nil {
		return failure(modelID, err.Error())
	}

	p.logger.Debug("Making request to OpenRouter for %s", modelID)
	resp, err := p.SendUpstreamRequest(ctx, payloadBytes)
	if err != nil {
		p.logger.Error("Error calling %s: %v", modelID, err)
		return failure(modelID, describeTransportError(ctx, err, p.config.Timeout))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := util.ReadLimited(resp.Body, core.MaxErrorBodySize)
		p.logger.Error("OpenRouter API error for %s: %d - %s", modelID, resp.StatusCode, string(body))
		return failure(modelID, fmt.Sprintf(core.ErrMsgUpstreamStatusFmt, resp.StatusCode, string(body)))
	}

	body, err := util.ReadLimited(resp.Body, core.MaxResponseBodySize)
	if err != nil {
		p.logger.Error("Failed reading response for %s: %v", modelID, err)
		return failure(modelID, describeTransportError(ctx, err, p.config.Timeout))
	}

	return p.parseCompletion(modelID, body)
}

// parseCompletion converts a 2xx body into an outcome. Bodies that do not decode, or decode
// without a usable first choice, are reported as having no choices.
func (p *RequestProcessor) parseCompletion(modelID string, body []byte) core.ModelOutcome {
	var data core.CompletionResponse
	if err := util.UnmarshalJSON(body, &data); err != nil {
		p.logger.Error("Malformed response body for %s: %v", modelID, err)
		return failure(modelID, core.ErrMsgNoChoices)
	}

	if len(data.Choices) == 0 || data.Choices[0].Message == nil {
		p.logger.Error("No choices in response for %s", modelID)
		return failure(modelID, core.ErrMsgNoChoices)
	}

	content := data.Choices[0].Message.Content
	p.logger.Info("Successfully got response for %s, length: %d", modelID, len(content))

	outcome := core.ModelOutcome{
		ModelID:   modelID,
		Content:   content,
		Timestamp: time.Now(),
	}
	if data.Usage != nil {
		tokens := data.Usage.TotalTokens
		outcome.Tokens = &tokens
	}
	return outcome
}

func describeTransportError(ctx context.Context, err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if timeout > 0 {
			return fmt.Sprintf("Request timed out after %s", timeout)
		}
		return "Request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "Request canceled"
	}
	// report the transport's own message, not our wrapping
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return core.ErrMsgUnknownUpstream
	}
	return msg
}

func failure(modelID, message string) core.ModelOutcome {
	return core.ModelOutcome{
		ModelID:   modelID,
		Content:   "",
		Timestamp: time.Now(),
		Error:     message,
	}
}

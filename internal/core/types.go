package core

import "time"

// ComparisonRequest is the inbound payload of a comparison.
type ComparisonRequest struct {
	Prompt         string   `json:"prompt"`
	SelectedModels []string `json:"selectedModels"`
}

// ModelOutcome is the result of one fan-out leg. Error is set if and only if the leg failed.
type ModelOutcome struct {
	ModelID   string    `json:"modelId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Tokens    *int      `json:"tokens,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Failed reports whether the leg ended in an error.
func (o ModelOutcome) Failed() bool {
	return o.Error != ""
}

// ComparisonResult holds one outcome per requested model, in request order.
type ComparisonResult struct {
	Responses []ModelOutcome `json:"responses"`
	RequestID string         `json:"requestId"`
}

// FailedCount returns how many legs failed.
func (r ComparisonResult) FailedCount() int {
	n := 0
	for _, o := range r.Responses {
		if o.Failed() {
			n++
		}
	}
	return n
}

// RequestStats holds aggregated request statistics for monitoring.
type RequestStats struct {
	TotalComparisons   int64           `json:"total_comparisons"`
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	FailedRequests     int64           `json:"failed_requests"`
	TotalResponseTime  int64           `json:"total_response_time"`
	LastRequestTime    time.Time       `json:"last_request_time"`
	RequestHistory     []RequestRecord `json:"request_history"`
}

// RequestRecord is one upstream leg in the monitoring history.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime int64     `json:"response_time"`
	Model        string    `json:"model"`
	RequestID    string    `json:"request_id"`
}

// PeriodStats holds computed statistics for a time period.
type PeriodStats struct {
	Requests        int64   `json:"requests"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	QPS             float64 `json:"qps"`
}

// ModelStats is the per-model breakdown shown on the stats endpoint.
type ModelStats struct {
	Model           string  `json:"model"`
	Requests        int64   `json:"requests"`
	Failures        int64   `json:"failures"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime int64   `json:"avgResponseTime"`
}

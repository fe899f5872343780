package core

import (
	"context"
	"time"
)

// Logger interface
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
}

// StorageInterface storage interface
type StorageInterface interface {
	SaveStats(stats *RequestStats) error
	LoadStats() (*RequestStats, error)
	Close() error
}

// CompletionClient performs a single upstream completion for one model.
// Implementations report every failure inside the returned outcome.
type CompletionClient interface {
	Complete(ctx context.Context, modelID, prompt string) ModelOutcome
}

// MetricsCollector interface
type MetricsCollector interface {
	RecordHTTPRequest(duration time.Duration)
	RecordHTTPError()
	RecordUpstreamCall(model, requestID string, success bool, duration time.Duration)
	RecordComparison(models int, failed int)
	GetQPS() float64
}

// NopLogger empty logger implementation
type NopLogger struct{}

func (*NopLogger) Debug(format string, args ...any) {}
func (*NopLogger) Info(format string, args ...any)  {}
func (*NopLogger) Warn(format string, args ...any)  {}
func (*NopLogger) Error(format string, args ...any) {}
func (*NopLogger) Fatal(format string, args ...any) {}

// NopMetrics empty metrics collector implementation
type NopMetrics struct{}

func (*NopMetrics) RecordHTTPRequest(duration time.Duration) {}
func (*NopMetrics) RecordHTTPError()                         {}
func (*NopMetrics) RecordUpstreamCall(model, requestID string, success bool, duration time.Duration) {
}
func (*NopMetrics) RecordComparison(models int, failed int) {}
func (*NopMetrics) GetQPS() float64                         { return 0 }

// Package compare fans a prompt out to several models and assembles the per-model outcomes.
package compare

import (
	"context"
	"fmt"
	"time"

	"aifiesta/internal/core"
	"aifiesta/internal/util"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// DispatcherConfig configuration for Dispatcher
type DispatcherConfig struct {
	Client  core.CompletionClient
	Metrics core.MetricsCollector
	Logger  core.Logger
}

// Dispatcher runs one completion per requested model concurrently.
type Dispatcher struct {
	client  core.CompletionClient
	metrics core.MetricsCollector
	logger  core.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	if config.Metrics == nil {
		config.Metrics = &core.NopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &core.NopLogger{}
	}
	return &Dispatcher{
		client:  config.Client,
		metrics: config.Metrics,
		logger:  config.Logger,
	}, nil
}

// Compare issues one upstream call per entry of models and waits for all of them.
// Responses[i] always corresponds to models[i]; a failed leg yields an outcome with Error set.
func (d *Dispatcher) Compare(ctx context.Context, prompt string, models []string) core.ComparisonResult {
	requestID := util.GenerateRequestID()
	outcomes := make([]core.ModelOutcome, len(models))

	d.logger.Info("[%s] Calling %d models: %v", requestID, len(models), models)

	var wg conc.WaitGroup
	for i, modelID := range models {
		i, modelID := i, modelID // per-iteration copies (go directive is pre-1.22)
		wg.Go(func() {
			outcomes[i] = d.runLeg(ctx, requestID, modelID, prompt)
		})
	}
	wg.Wait()

	result := core.ComparisonResult{Responses: outcomes, RequestID: requestID}
	failed := result.FailedCount()
	d.metrics.RecordComparison(len(models), failed)
	d.logger.Info("[%s] Received %d responses (%d failed)", requestID, len(outcomes), failed)

	return result
}

// runLeg performs one model call. A panic inside the client becomes a failed outcome for this slot only.
func (d *Dispatcher) runLeg(ctx context.Context, requestID, modelID, prompt string) core.ModelOutcome {
	start := time.Now()

	var outcome core.ModelOutcome
	var catcher panics.Catcher
	catcher.Try(func() {
		outcome = d.client.Complete(ctx, modelID, prompt)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		d.logger.Error("[%s] Panic while calling %s: %v", requestID, modelID, recovered.Value)
		outcome = core.ModelOutcome{
			ModelID:   modelID,
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("Internal error while calling model: %v", recovered.Value),
		}
	}

	// The slot is keyed by the request entry, whatever the client echoed.
	outcome.ModelID = modelID
	if outcome.Failed() {
		outcome.Content = ""
	}
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}

	d.metrics.RecordUpstreamCall(modelID, requestID, !outcome.Failed(), time.Since(start))
	return outcome
}

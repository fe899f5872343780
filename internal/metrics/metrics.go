package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"aifiesta/internal/core"
)

// AtomicRequestStats thread-safe request statistics
type AtomicRequestStats struct {
	TotalComparisons   atomic.Int64
	TotalRequests      atomic.Int64
	SuccessfulRequests atomic.Int64
	FailedRequests     atomic.Int64
	TotalResponseTime  atomic.Int64
	HTTPRequests       atomic.Int64
	HTTPErrors         atomic.Int64
	HTTPResponseTime   atomic.Int64
}

// MetricsConfig configuration for MetricsService
type MetricsConfig struct {
	SaveInterval time.Duration
	HistorySize  int
	Storage      core.StorageInterface
	Logger       core.Logger
}

// MetricsService collects per-leg upstream metrics and comparison counts.
type MetricsService struct {
	atomicStats      AtomicRequestStats
	requestHistory   []core.RequestRecord
	historyMu        sync.RWMutex
	lastRequestTime  time.Time
	maxHistorySize   int
	storage          core.StorageInterface
	logger           core.Logger
	lastSaveTime     time.Time
	minSaveInterval  time.Duration
	done             chan struct{}
	closeOnce        sync.Once
	closed           bool
	saves            sync.WaitGroup
	historyBuffer    []core.RequestRecord
	bufferMu         sync.Mutex
	bufferFlushTimer *time.Ticker
	recentRequests   []time.Time
	recentMu         sync.Mutex
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(config MetricsConfig) *MetricsService {
	if config.HistorySize <= 0 {
		config.HistorySize = core.HistoryBufferSize
	}
	if config.Logger == nil {
		config.Logger = &core.NopLogger{}
	}
	ms := &MetricsService{
		maxHistorySize:  config.HistorySize,
		storage:         config.Storage,
		logger:          config.Logger,
		minSaveInterval: config.SaveInterval,
		done:            make(chan struct{}),
		historyBuffer:   make([]core.RequestRecord, 0, core.HistoryBatchSize),
	}

	ms.bufferFlushTimer = time.NewTicker(core.HistoryFlushInterval)
	go ms.flushLoop()

	return ms
}

func (ms *MetricsService) flushLoop() {
	for {
		select {
		case <-ms.bufferFlushTimer.C:
			ms.flushBuffer()
		case <-ms.done:
			return
		}
	}
}

func (ms *MetricsService) flushBuffer() {
	ms.bufferMu.Lock()
	if len(ms.historyBuffer) == 0 {
		ms.bufferMu.Unlock()
		return
	}
	batch := ms.historyBuffer
	ms.historyBuffer = make([]core.RequestRecord, 0, core.HistoryBatchSize)
	ms.bufferMu.Unlock()

	ms.historyMu.Lock()
	ms.requestHistory = append(ms.requestHistory, batch...)
	if len(ms.requestHistory) > ms.maxHistorySize {
		ms.requestHistory = ms.requestHistory[len(ms.requestHistory)-ms.maxHistorySize:]
	}
	ms.historyMu.Unlock()
}

// RecordRequest records the result of one upstream leg.
func (ms *MetricsService) RecordRequest(success bool, responseTime int64, model string, requestID string) {
	now := time.Now()
	ms.historyMu.Lock()
	ms.lastRequestTime = now
	ms.historyMu.Unlock()
	ms.atomicStats.TotalRequests.Add(1)
	ms.atomicStats.TotalResponseTime.Add(responseTime)

	if success {
		ms.atomicStats.SuccessfulRequests.Add(1)
	} else {
		ms.atomicStats.FailedRequests.Add(1)
	}

	ms.recentMu.Lock()
	ms.recentRequests = append(ms.recentRequests, now)
	ms.pruneRecentLocked(now)
	ms.recentMu.Unlock()

	record := core.RequestRecord{
		Timestamp:    now,
		Success:      success,
		ResponseTime: responseTime,
		Model:        model,
		RequestID:    requestID,
	}

	ms.bufferMu.Lock()
	ms.historyBuffer = append(ms.historyBuffer, record)
	shouldFlush := len(ms.historyBuffer) >= core.HistoryBatchSize
	ms.bufferMu.Unlock()

	if shouldFlush {
		ms.flushBuffer()
	}

	ms.SaveStatsDebounced()
}

// RecordUpstreamCall implements core.MetricsCollector.
func (ms *MetricsService) RecordUpstreamCall(model, requestID string, success bool, duration time.Duration) {
	ms.RecordRequest(success, duration.Milliseconds(), model, requestID)
}

// RecordComparison counts one completed fan-out.
func (ms *MetricsService) RecordComparison(models int, failed int) {
	ms.atomicStats.TotalComparisons.Add(1)
	if failed > 0 {
		ms.logger.Debug("Comparison finished with %d/%d failed legs", failed, models)
	}
}

// RecordHTTPRequest records one served inbound request and its duration
func (ms *MetricsService) RecordHTTPRequest(duration time.Duration) {
	ms.atomicStats.HTTPRequests.Add(1)
	ms.atomicStats.HTTPResponseTime.Add(duration.Milliseconds())
}

// RecordHTTPError records an inbound request that ended with a 4xx/5xx
func (ms *MetricsService) RecordHTTPError() {
	ms.atomicStats.HTTPErrors.Add(1)
}

// HTTPStats summarizes inbound traffic since startup.
type HTTPStats struct {
	Requests        int64 `json:"requests"`
	Errors          int64 `json:"errors"`
	AvgResponseTime int64 `json:"avgResponseTime"`
}

// GetHTTPStats returns inbound request totals and the mean handling time in ms.
func (ms *MetricsService) GetHTTPStats() HTTPStats {
	stats := HTTPStats{
		Requests: ms.atomicStats.HTTPRequests.Load(),
		Errors:   ms.atomicStats.HTTPErrors.Load(),
	}
	if stats.Requests > 0 {
		stats.AvgResponseTime = ms.atomicStats.HTTPResponseTime.Load() / stats.Requests
	}
	return stats
}

func (ms *MetricsService) pruneRecentLocked(now time.Time) {
	cutoff := now.Add(-1 * time.Minute)
	startIdx := 0
	for startIdx < len(ms.recentRequests) && ms.recentRequests[startIdx].Before(cutoff) {
		startIdx++
	}
	if startIdx > 0 {
		newRecent := make([]time.Time, len(ms.recentRequests)-startIdx)
		copy(newRecent, ms.recentRequests[startIdx:])
		ms.recentRequests = newRecent
	}
}

// GetQPS returns upstream calls per second over the last minute
func (ms *MetricsService) GetQPS() float64 {
	ms.recentMu.Lock()
	defer ms.recentMu.Unlock()

	ms.pruneRecentLocked(time.Now())
	if len(ms.recentRequests) == 0 {
		return 0
	}

	return math.Round(float64(len(ms.recentRequests))/60.0*1000) / 1000
}

// GetRequestStats returns current stats snapshot
func (ms *MetricsService) GetRequestStats() core.RequestStats {
	ms.flushBuffer()
	ms.historyMu.RLock()
	defer ms.historyMu.RUnlock()

	historyCopy := make([]core.RequestRecord, len(ms.requestHistory))
	copy(historyCopy, ms.requestHistory)

	return core.RequestStats{
		TotalComparisons:   ms.atomicStats.TotalComparisons.Load(),
		TotalRequests:      ms.atomicStats.TotalRequests.Load(),
		SuccessfulRequests: ms.atomicStats.SuccessfulRequests.Load(),
		FailedRequests:     ms.atomicStats.FailedRequests.Load(),
		TotalResponseTime:  ms.atomicStats.TotalResponseTime.Load(),
		LastRequestTime:    ms.lastRequestTime,
		RequestHistory:     historyCopy,
	}
}

// GetPeriodStats computes period statistics for multiple hour windows in a single pass.
func GetPeriodStats(history []core.RequestRecord, hourPeriods ...int) map[int]core.PeriodStats {
	if len(hourPeriods) == 0 {
		return nil
	}

	now := time.Now()
	cutoffs := make([]time.Time, len(hourPeriods))
	requests := make([]int64, len(hourPeriods))
	successful := make([]int64, len(hourPeriods))
	responseTime := make([]int64, len(hourPeriods))

	for i, hours := range hourPeriods {
		cutoffs[i] = now.Add(-time.Duration(hours) * time.Hour)
	}

	for _, record := range history {
		for i, cutoff := range cutoffs {
			if record.Timestamp.After(cutoff) {
				requests[i]++
				responseTime[i] += record.ResponseTime
				if record.Success {
					successful[i]++
				}
			}
		}
	}

	result := make(map[int]core.PeriodStats, len(hourPeriods))
	for i, hours := range hourPeriods {
		stats := core.PeriodStats{
			Requests: requests[i],
			QPS:      float64(requests[i]) / (float64(hours) * 3600.0),
		}
		if requests[i] > 0 {
			stats.SuccessRate = float64(successful[i]) / float64(requests[i]) * 100
			stats.AvgResponseTime = responseTime[i] / requests[i]
		}
		result[hours] = stats
	}
	return result
}

// GetModelStats groups history by model, busiest first.
func GetModelStats(history []core.RequestRecord) []core.ModelStats {
	byModel := make(map[string]*core.ModelStats)
	totalTime := make(map[string]int64)
	for _, record := range history {
		ms, ok := byModel[record.Model]
		if !ok {
			ms = &core.ModelStats{Model: record.Model}
			byModel[record.Model] = ms
		}
		ms.Requests++
		if !record.Success {
			ms.Failures++
		}
		totalTime[record.Model] += record.ResponseTime
	}

	result := make([]core.ModelStats, 0, len(byModel))
	for model, ms := range byModel {
		ms.SuccessRate = float64(ms.Requests-ms.Failures) / float64(ms.Requests) * 100
		ms.AvgResponseTime = totalTime[model] / ms.Requests
		result = append(result, *ms)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Requests != result[j].Requests {
			return result[i].Requests > result[j].Requests
		}
		return result[i].Model < result[j].Model
	})
	return result
}

// LoadStats loads stats from storage
func (ms *MetricsService) LoadStats() error {
	if ms.storage == nil {
		return nil
	}
	stats, err := ms.storage.LoadStats()
	if err != nil {
		return err
	}

	ms.atomicStats.TotalComparisons.Store(stats.TotalComparisons)
	ms.atomicStats.TotalRequests.Store(stats.TotalRequests)
	ms.atomicStats.SuccessfulRequests.Store(stats.SuccessfulRequests)
	ms.atomicStats.FailedRequests.Store(stats.FailedRequests)
	ms.atomicStats.TotalResponseTime.Store(stats.TotalResponseTime)

	history := stats.RequestHistory
	if len(history) > ms.maxHistorySize {
		history = history[len(history)-ms.maxHistorySize:]
	}

	ms.historyMu.Lock()
	ms.lastRequestTime = stats.LastRequestTime
	ms.requestHistory = history
	ms.historyMu.Unlock()

	return nil
}

// SaveStatsDebounced starts a background save unless one ran within the
// debounce interval. Callers never wait on storage.
func (ms *MetricsService) SaveStatsDebounced() {
	if ms.storage == nil {
		return
	}

	now := time.Now()
	ms.historyMu.Lock()
	if ms.closed || now.Sub(ms.lastSaveTime) < ms.minSaveInterval {
		ms.historyMu.Unlock()
		return
	}
	ms.lastSaveTime = now
	ms.saves.Add(1)
	ms.historyMu.Unlock()

	go func() {
		defer ms.saves.Done()
		stats := ms.GetRequestStats()
		if err := ms.storage.SaveStats(&stats); err != nil {
			ms.logger.Warn("Failed to save stats: %v", err)
		}
	}()
}

// Close saves final stats and stops. Safe to call more than once.
func (ms *MetricsService) Close() error {
	var err error
	ms.closeOnce.Do(func() {
		ms.historyMu.Lock()
		ms.closed = true
		ms.historyMu.Unlock()
		ms.saves.Wait()

		close(ms.done)
		ms.bufferFlushTimer.Stop()
		ms.flushBuffer()

		if ms.storage != nil {
			stats := ms.GetRequestStats()
			err = ms.storage.SaveStats(&stats)
		}
	})
	return err
}

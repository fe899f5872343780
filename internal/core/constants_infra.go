package core

import "time"

// HTTP client config constants. Per-call deadlines come from the upstream
// timeout on the request context, not from the client.
const (
	HTTPMaxIdleConns          = 100
	HTTPMaxIdleConnsPerHost   = 20
	HTTPMaxConnsPerHost       = 64
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 10 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Inbound server constants
const (
	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteMargin       = 30 * time.Second
	ServerShutdownTimeout   = 30 * time.Second
)

// Cache config constants
const (
	CacheDefaultCapacity = 10000
	CacheCleanupInterval = 5 * time.Minute
	RateLimiterIdleTTL   = 10 * time.Minute
)

// Stats and monitoring constants
const (
	StatsFilePath        = "stats.json"
	StatsRedisKey        = "aifiesta:stats"
	MinSaveInterval      = 5 * time.Second
	HistoryBufferSize    = 1000
	HistoryBatchSize     = 100
	HistoryFlushInterval = 100 * time.Millisecond
)

// Response body size limits
const (
	MaxResponseBodySize = 10 * 1024 * 1024
	MaxErrorBodySize    = 64 * 1024
	MaxRequestBodySize  = 1 << 20
)

// Logging config constants
const (
	MaxDebugFilePathLength = 260
)

// File permission constants
const (
	FilePermissionReadWrite = 0644
)

// Time format constants
const (
	TimeFormatDateTime = "2006-01-02 15:04:05"
)

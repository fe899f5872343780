package server

import (
	"fmt"
	"net/http"
	"time"

	"aifiesta/internal/core"
	"aifiesta/internal/metrics"

	"github.com/gin-gonic/gin"
)

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getStatsData(c *gin.Context) {
	stats := s.metricsService.GetRequestStats()
	periodStats := metrics.GetPeriodStats(stats.RequestHistory, 24, 24*7, 24*30)
	currentQPS := s.metricsService.GetQPS()

	lastRequest := ""
	if !stats.LastRequestTime.IsZero() {
		lastRequest = stats.LastRequestTime.Format(core.TimeFormatDateTime)
	}

	c.JSON(http.StatusOK, gin.H{
		"currentTime":        time.Now().Format(core.TimeFormatDateTime),
		"currentQPS":         fmt.Sprintf("%.3f", currentQPS),
		"totalComparisons":   stats.TotalComparisons,
		"totalRequests":      stats.TotalRequests,
		"successfulRequests": stats.SuccessfulRequests,
		"failedRequests":     stats.FailedRequests,
		"http":               s.metricsService.GetHTTPStats(),
		"lastRequestTime":    lastRequest,
		"totalRecords":       len(stats.RequestHistory),
		"stats24h":           periodStats[24],
		"stats7d":            periodStats[24*7],
		"stats30d":           periodStats[24*30],
		"models":             metrics.GetModelStats(stats.RequestHistory),
		"trackedClients":     s.limiter.Clients(),
	})
}

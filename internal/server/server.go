package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"aifiesta/internal/cache"
	"aifiesta/internal/compare"
	"aifiesta/internal/config"
	"aifiesta/internal/core"
	"aifiesta/internal/metrics"
	"aifiesta/internal/process"

	"github.com/gin-gonic/gin"
)

// comparer runs one multi-model comparison.
type comparer interface {
	Compare(ctx context.Context, prompt string, models []string) core.ComparisonResult
}

// Server application server
type Server struct {
	port    string
	ginMode string

	httpClient *http.Client
	router     *gin.Engine

	limiter        *cache.LimiterStore
	metricsService *metrics.MetricsService

	validClientKeys map[string]bool
	modelsData      core.ModelsData

	comparer comparer

	config config.ServerConfig

	requestLog io.WriteCloser

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closeOnce      sync.Once
}

// requestLogSource is implemented by loggers that can take over gin's access log.
type requestLogSource interface {
	RequestLogWriter() io.WriteCloser
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required in ServerConfig")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required in ServerConfig")
	}

	httpClient := createOptimizedHTTPClient(cfg.HTTPClientSettings)

	metricsService := metrics.NewMetricsService(metrics.MetricsConfig{
		SaveInterval: core.MinSaveInterval,
		HistorySize:  core.HistoryBufferSize,
		Storage:      cfg.Storage,
		Logger:       cfg.Logger,
	})

	if err := metricsService.LoadStats(); err != nil {
		cfg.Logger.Warn("Failed to load historical stats: %v", err)
	}

	modelsData, err := config.LoadModels(cfg.ModelsConfigPath, cfg.Logger)
	if err != nil {
		_ = metricsService.Close()
		return nil, fmt.Errorf("failed to load models config: %w", err)
	}

	completionClient := process.NewRequestProcessor(process.ProcessorConfig{
		APIKey:      cfg.Upstream.APIKey,
		Endpoint:    cfg.Upstream.Endpoint,
		AppURL:      cfg.Upstream.AppURL,
		AppTitle:    cfg.Upstream.AppTitle,
		Temperature: cfg.Upstream.Temperature,
		MaxTokens:   cfg.Upstream.MaxTokens,
		Timeout:     cfg.Upstream.Timeout,
	}, httpClient, cfg.Logger)

	dispatcher, err := compare.NewDispatcher(compare.DispatcherConfig{
		Client:  completionClient,
		Metrics: metricsService,
		Logger:  cfg.Logger,
	})
	if err != nil {
		_ = metricsService.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	validClientKeys := make(map[string]bool)
	for _, key := range cfg.ClientAPIKeys {
		validClientKeys[key] = true
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	server := &Server{
		port:            cfg.Port,
		ginMode:         cfg.GinMode,
		httpClient:      httpClient,
		limiter:         cache.NewLimiterStore(cfg.RateLimit, core.RateLimiterIdleTTL),
		metricsService:  metricsService,
		validClientKeys: validClientKeys,
		modelsData:      modelsData,
		comparer:        dispatcher,
		config:          cfg,
		shutdownCtx:     shutdownCtx,
		shutdownCancel:  shutdownCancel,
	}

	server.setupRoutes()

	return server, nil
}

func createOptimizedHTTPClient(settings config.HTTPClientSettings) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          settings.MaxIdleConns,
		MaxIdleConnsPerHost:   settings.MaxIdleConnsPerHost,
		MaxConnsPerHost:       settings.MaxConnsPerHost,
		IdleConnTimeout:       settings.IdleConnTimeout,
		TLSHandshakeTimeout:   settings.TLSHandshakeTimeout,
		ExpectContinueTimeout: core.HTTPExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
	}

	// No client-wide or header deadline: each call is bounded by its own context.
	return &http.Client{Transport: transport}
}

// writeTimeout leaves room for the slowest leg. Without an upstream timeout a
// leg is unbounded, so the response write is too.
func writeTimeout(upstreamTimeout time.Duration) time.Duration {
	if upstreamTimeout <= 0 {
		return 0
	}
	return upstreamTimeout + core.ServerWriteMargin
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: core.ServerReadHeaderTimeout,
		ReadTimeout:       core.ServerReadTimeout,
		WriteTimeout:      writeTimeout(s.config.Upstream.Timeout),
	}
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run runs the server until a shutdown signal arrives
func (s *Server) Run() error {
	s.setupGracefulShutdown()

	srv := s.newHTTPServer()

	go func() {
		<-s.shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), core.ServerShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.config.Logger.Error("Server shutdown error: %v", err)
		}
	}()

	s.config.Logger.Info("Server starting on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) setupGracefulShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			s.config.Logger.Info("Shutdown signal received, shutting down gracefully...")
			s.shutdownCancel()
		case <-s.shutdownCtx.Done():
		}
		signal.Stop(quit)
	}()
}

// Close stops background workers and flushes stats. Safe to call more than once.
func (s *Server) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.shutdownCancel != nil {
			s.shutdownCancel()
		}

		if s.metricsService != nil {
			if err := s.metricsService.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close metrics service: %w", err))
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close rate limiter: %w", err))
			}
		}

		if s.httpClient != nil {
			s.httpClient.CloseIdleConnections()
		}

		if s.requestLog != nil {
			_ = s.requestLog.Close()
		}
	})
	return closeErr
}

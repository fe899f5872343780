package main

import (
	"aifiesta/internal/config"
	logpkg "aifiesta/internal/log"
	"aifiesta/internal/server"
	"aifiesta/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	dotenvErr := godotenv.Load()

	logger := logpkg.CreateLogger()
	defer func() {
		if appLog, ok := logger.(*logpkg.AppLogger); ok {
			_ = appLog.Close()
		}
	}()

	if dotenvErr != nil {
		logger.Warn("No .env file found, using system environment variables")
	}
	logger.Info("Logger initialized")

	cfg, err := config.LoadServerConfigFromEnv(logger)
	if err != nil {
		logger.Fatal("Failed to load server configuration: %v", err)
	}

	storageInstance := storage.InitStorage(cfg.RedisURL, cfg.StatsFile, logger)
	defer func() { _ = storageInstance.Close() }()

	cfg.Storage = storageInstance
	cfg.Logger = logger

	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to create server: %v", err)
	}
	defer func() { _ = srv.Close() }()

	logger.Info("Upstream endpoint: %s", cfg.Upstream.Endpoint)
	if err := srv.Run(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"aifiesta/internal/core"
	"aifiesta/internal/util"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 5 * time.Second

// FileStorage persists monitoring stats as a JSON file
type FileStorage struct {
	filePath string
}

func NewFileStorage(filePath string) *FileStorage {
	if filePath == "" {
		filePath = core.StatsFilePath
	}
	return &FileStorage{filePath: filePath}
}

func (fs *FileStorage) SaveStats(stats *core.RequestStats) error {
	data, err := util.MarshalJSON(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, core.FilePermissionReadWrite); err != nil {
		return err
	}
	return os.Rename(tmp, fs.filePath)
}

func (fs *FileStorage) LoadStats() (*core.RequestStats, error) {
	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &core.RequestStats{RequestHistory: []core.RequestRecord{}}, nil
		}
		return nil, err
	}

	return decodeStats(data)
}

func (fs *FileStorage) Close() error {
	return nil
}

// RedisStorage persists monitoring stats under a single Redis key
type RedisStorage struct {
	client *redis.Client
	key    string
}

// RedisStorageConfig Redis storage config
type RedisStorageConfig struct {
	URL string
	Key string
}

func NewRedisStorage(config RedisStorageConfig) (*RedisStorage, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	key := config.Key
	if key == "" {
		key = core.StatsRedisKey
	}

	return &RedisStorage{client: client, key: key}, nil
}

func (rs *RedisStorage) SaveStats(stats *core.RequestStats) error {
	data, err := util.MarshalJSON(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return rs.client.Set(ctx, rs.key, data, 0).Err()
}

func (rs *RedisStorage) LoadStats() (*core.RequestStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := rs.client.Get(ctx, rs.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &core.RequestStats{RequestHistory: []core.RequestRecord{}}, nil
		}
		return nil, err
	}

	return decodeStats(val)
}

func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}

func decodeStats(data []byte) (*core.RequestStats, error) {
	var stats core.RequestStats
	if err := util.UnmarshalJSON(data, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	if stats.RequestHistory == nil {
		stats.RequestHistory = []core.RequestRecord{}
	}

	return &stats, nil
}

// InitStorage picks Redis when a URL is configured, falling back to the stats file.
func InitStorage(redisURL, statsFile string, logger core.Logger) core.StorageInterface {
	if logger == nil {
		logger = &core.NopLogger{}
	}

	if redisURL != "" {
		redisStorage, err := NewRedisStorage(RedisStorageConfig{
			URL: redisURL,
			Key: core.StatsRedisKey,
		})
		if err != nil {
			logger.Warn("Failed to initialize Redis storage: %v, falling back to file storage", err)
			return NewFileStorage(statsFile)
		}
		logger.Info("Using Redis storage")
		return redisStorage
	}

	logger.Info("Using file storage: %s", statsFile)
	return NewFileStorage(statsFile)
}

package app

import (
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/fleet-server/internal/config"
	"github.com/taoyao-code/fleet-server/internal/health"
	"github.com/taoyao-code/fleet-server/internal/presence"
	redisstorage "github.com/taoyao-code/fleet-server/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil 并跳过
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewPresenceTracker 创建在线追踪器。
// Redis可用时走共享视图（多实例部署各节点看到同一份在线状态），
// 否则退化为单实例内存表。
func NewPresenceTracker(client *redisstorage.Client, ttl time.Duration, logger *zap.Logger) presence.Tracker {
	if client != nil {
		logger.Info("presence tracker using redis", zap.Duration("ttl", ttl))
		return presence.NewRedisTracker(client.Client, ttl)
	}
	logger.Info("presence tracker using in-memory store", zap.Duration("ttl", ttl))
	return presence.NewMemory(ttl)
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}

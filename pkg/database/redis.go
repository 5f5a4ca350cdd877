package database

import (
	"context"
	"fmt"
	"time"

	"frubric_backend/internal/config"
	"frubric_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func dialTimeout(cfg *config.RedisConfig) time.Duration {
	if cfg.DialTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.DialTimeoutSeconds) * time.Second
}

// RedisOptions 连接池参数来自 redis 配置节，未配置的使用 go-redis 默认值
func RedisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout(cfg),
	}
}

// InitRedis 建立连接并 Ping；编辑会话与定义缓存依赖 Redis，失败时直接返回错误
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	opts := RedisOptions(cfg)
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout(cfg))
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	logger.Log.Info("Redis connection established",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("poolSize", opts.PoolSize))
	return rdb, nil
}

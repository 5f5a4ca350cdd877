package database

import (
	"context"
	"strconv"
	"testing"
	"time"

	"frubric_backend/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOptions(t *testing.T) {
	testCases := []struct {
		name        string
		cfg         config.RedisConfig
		wantTimeout time.Duration
	}{
		{
			name:        "未配置超时",
			cfg:         config.RedisConfig{Host: "127.0.0.1", Port: 6379, PoolSize: 20, MinIdleConns: 2},
			wantTimeout: 5 * time.Second,
		},
		{
			name:        "配置超时",
			cfg:         config.RedisConfig{Host: "redis", Port: 6380, DB: 3, PoolSize: 8, DialTimeoutSeconds: 2},
			wantTimeout: 2 * time.Second,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := RedisOptions(&tc.cfg)
			assert.Equal(t, tc.cfg.Host+":"+strconv.Itoa(tc.cfg.Port), opts.Addr)
			assert.Equal(t, tc.cfg.DB, opts.DB)
			assert.Equal(t, tc.cfg.PoolSize, opts.PoolSize)
			assert.Equal(t, tc.cfg.MinIdleConns, opts.MinIdleConns)
			assert.Equal(t, tc.wantTimeout, opts.DialTimeout)
		})
	}
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rdb, err := InitRedis(&config.RedisConfig{Host: mr.Host(), Port: port, PoolSize: 4})
	require.NoError(t, err)
	defer rdb.Close()
	require.NoError(t, rdb.Set(context.Background(), "frubric:ping", "1", 0).Err())
	assert.True(t, mr.Exists("frubric:ping"))

	mr.Close()
	_, err = InitRedis(&config.RedisConfig{Host: mr.Host(), Port: port, DialTimeoutSeconds: 1})
	assert.Error(t, err)
}

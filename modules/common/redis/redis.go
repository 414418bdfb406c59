package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect - REDIS_URL 로 Redis 연결 생성 (redis:// 또는 rediss://)
// 키 로테이션 커서 공유용이라 ping 실패는 에러로 돌려준다
func Connect(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	// rediss:// 는 ParseURL 이 TLSConfig 를 채운다
	if opts.TLSConfig != nil {
		opts.TLSConfig.MinVersion = tls.VersionTLS12
	}
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	logger.Info("🔌 [Redis] Connecting", zap.String("addr", opts.Addr), zap.Bool("tls", opts.TLSConfig != nil))

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		logger.Error("❌ [Redis] Ping failed", zap.Error(err))
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("✅ [Redis] Connected", zap.String("addr", opts.Addr))
	return rdb, nil
}

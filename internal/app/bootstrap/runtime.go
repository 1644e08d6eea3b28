package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/transcript"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

const redisDialTimeout = 3 * time.Second

// redisOptions accepts either host:port or a redis:// / rediss:// URL.
// REDIS_PASSWORD and REDIS_TLS override whatever the URL carries.
func redisOptions(cfg *appconfig.Config) (*redis.Options, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: invalid REDIS_ADDR: %w", err)
		}
		opts = parsed
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisTLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	opts.DialTimeout = redisDialTimeout
	return opts, nil
}

// BuildRedisClient returns the transcript mirror's client, or nil when Redis
// is not configured. With verify set, an unreachable server also yields nil so
// the API keeps serving without a mirror.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts, err := redisOptions(cfg)
	if err != nil {
		logger.Warn("redis disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, transcripts will not be mirrored", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("transcript mirror connected", "addr", opts.Addr, "db", opts.DB)
	return client
}

// BuildTranscriptStore returns the Redis transcript mirror, or nil without
// Redis.
func BuildTranscriptStore(redisClient *redis.Client, cfg *appconfig.Config) *transcript.Store {
	if redisClient == nil || cfg == nil {
		return nil
	}
	return transcript.NewStore(redisClient, cfg.TranscriptTTL)
}

package queue

import (
	"strings"

	"github.com/hibiken/asynq"

	"knowledge-platform/internal/config"
)

// RedisConnOpt builds the asynq connection options from config, accepting
// either a bare host:port or a full redis:// URL.
func RedisConnOpt(cfg *config.Config) asynq.RedisConnOpt {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		if opt, err := asynq.ParseRedisURI(cfg.RedisURL); err == nil {
			return opt
		}
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

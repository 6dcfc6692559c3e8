package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/logger"
)

// releaseScript deletes the lock only if this holder still owns it, so a
// slow worker cannot release a lock that already expired and was re-taken.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SourceLock serializes workers on rate-limited sources. Only one worker may
// hold a source's token at a time; others wait.
type SourceLock struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

func NewSourceLock(client *redis.Client, ttl time.Duration) *SourceLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SourceLock{client: client, ttl: ttl, poll: 250 * time.Millisecond}
}

// Acquire blocks until the source token is held or ctx ends. The returned
// release function is safe to call once.
func (l *SourceLock) Acquire(ctx context.Context, sourceID primitive.ObjectID) (func(), error) {
	key := "lock:source:" + sourceID.Hex()
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire source lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for source lock: %w", ctx.Err())
		case <-time.After(l.poll):
		}
	}

	release := func() {
		// Release on a fresh context; the worker's context may be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			logger.Warn("Failed to release source lock", "key", key, "error", err)
		}
	}
	return release, nil
}

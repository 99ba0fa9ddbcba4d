package leaseStore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// releaseScript deletes the lease only when the caller still holds it. A
// worker whose lease expired must not evict a newer holder's lease.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLease serializes record processing across workers and instances with
// a SETNX + TTL key per record. The TTL bounds how long a crashed worker can
// block reprocessing.
type RedisLease struct {
	client *redis.Client
	logger *logger_i.Logger
}

// NewRedisLease connects to redis and verifies it with a ping. Returns nil
// when redis is unreachable so the caller can fall back to the in-memory
// lease.
func NewRedisLease(ctx context.Context, addr string) *RedisLease {
	logger := logger_i.NewLogger("redis_lease")

	client := redis.NewClient(&redis.Options{
		Addr:                  addr,
		DB:                    config.RedisLeaseDB,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, config.RedisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis is offline", "error", err)
		return nil
	}

	logger.Info("redis lease store connected", "addr", addr)
	return &RedisLease{client: client, logger: logger}
}

// NewRedisLeaseWithClient wraps an existing client. Test seam.
func NewRedisLeaseWithClient(client *redis.Client) *RedisLease {
	return &RedisLease{
		client: client,
		logger: logger_i.NewLogger("redis_lease"),
	}
}

func leaseKey(recordId string) string {
	return "lease:record:" + recordId
}

func (l *RedisLease) Acquire(ctx context.Context, recordId string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, leaseKey(recordId), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLease) Release(ctx context.Context, recordId string, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{leaseKey(recordId)}, token).Err()
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}

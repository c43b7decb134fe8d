package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"policyqa-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// 仅当锁仍归当前持有者时才删除。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// backend 是 Redis 锁用到的两个原子操作。
type backend interface {
	// Acquire 在 key 不存在时写入 token 并设置过期时间，返回是否写入成功。
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release 仅当 key 的值仍为 token 时删除它。
	Release(ctx context.Context, key, token string) error
}

type redisBackend struct {
	client *redis.Client
}

func (b redisBackend) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, token, ttl).Result()
}

func (b redisBackend) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, b.client, []string{key}, token).Err()
}

// Redis 是基于 SET NX PX 的跨进程命名空间锁。ttl 防止持有者崩溃后锁永不释放。
type Redis struct {
	backend      backend
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedis 创建 Redis 锁。
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{backend: redisBackend{client: client}, ttl: ttl, pollInterval: 100 * time.Millisecond}
}

func lockKey(namespace string) string {
	return fmt.Sprintf("policyqa:lock:%s", namespace)
}

// Lock 轮询直到拿到锁或 ctx 结束。
func (r *Redis) Lock(ctx context.Context, namespace string) (func(), error) {
	key := lockKey(namespace)
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.backend.Acquire(ctx, key, token, r.ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("获取命名空间锁 %s 失败: %w", namespace, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// 使用独立的上下文，请求被取消时也要释放锁
					if err := r.backend.Release(context.Background(), key, token); err != nil {
						log.Warnf("[Lock] 释放命名空间锁 %s 失败: %v", namespace, err)
					}
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("生成锁令牌失败: %w", err)
	}
	return hex.EncodeToString(b), nil
}

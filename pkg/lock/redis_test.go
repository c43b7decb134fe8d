package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// memBackend 按 SET NX PX 与释放脚本的语义工作，时间由测试推进。
type memBackend struct {
	mu         sync.Mutex
	now        time.Time
	keys       map[string]entry
	acquireErr error
	releases   int
}

func newMemBackend() *memBackend {
	return &memBackend{now: time.Unix(0, 0), keys: map[string]entry{}}
}

func (m *memBackend) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	if e, ok := m.keys[key]; ok && m.now.Before(e.expiresAt) {
		return false, nil
	}
	m.keys[key] = entry{token: token, expiresAt: m.now.Add(ttl)}
	return true, nil
}

func (m *memBackend) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	if e, ok := m.keys[key]; ok && e.token == token {
		delete(m.keys, key)
	}
	return nil
}

func (m *memBackend) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *memBackend) holder(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.keys[key]
	if !ok || !m.now.Before(e.expiresAt) {
		return "", false
	}
	return e.token, true
}

func newTestRedis(b *memBackend) *Redis {
	return &Redis{backend: b, ttl: time.Minute, pollInterval: time.Millisecond}
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "policyqa:lock:user_a", lockKey("user_a"))
}

func TestRedis_ContentionWaitsForRelease(t *testing.T) {
	b := newMemBackend()
	l := newTestRedis(b)
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		unlock, err := l.Lock(ctx, "user_a")
		if assert.NoError(t, err) {
			acquired <- unlock
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case unlockB := <-acquired:
		unlockB()
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the released lock")
	}
	_, held := b.holder(lockKey("user_a"))
	assert.False(t, held)
}

func TestRedis_IndependentNamespaces(t *testing.T) {
	l := newTestRedis(newMemBackend())
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)
	defer unlockA()
	unlockB, err := l.Lock(ctx, "user_b")
	require.NoError(t, err)
	unlockB()
}

func TestRedis_ContextCancelled(t *testing.T) {
	l := newTestRedis(newMemBackend())

	unlock, err := l.Lock(context.Background(), "user_a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "user_a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_ExpiredHolderDoesNotReleaseNewHolder(t *testing.T) {
	b := newMemBackend()
	l := newTestRedis(b)
	ctx := context.Background()
	key := lockKey("user_a")

	unlockOld, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)
	oldToken, _ := b.holder(key)

	// 旧持有者超时，锁被新持有者拿走
	b.advance(l.ttl + time.Second)
	unlockNew, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)
	newToken, held := b.holder(key)
	require.True(t, held)
	require.NotEqual(t, oldToken, newToken)

	unlockOld()
	token, held := b.holder(key)
	assert.True(t, held)
	assert.Equal(t, newToken, token)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "user_a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlockNew()
	_, held = b.holder(key)
	assert.False(t, held)
}

func TestRedis_UnlockIsIdempotent(t *testing.T) {
	b := newMemBackend()
	l := newTestRedis(b)

	unlock, err := l.Lock(context.Background(), "user_a")
	require.NoError(t, err)
	unlock()
	unlock()
	assert.Equal(t, 1, b.releases)
}

func TestRedis_BackendError(t *testing.T) {
	b := newMemBackend()
	b.acquireErr = errors.New("connection refused")
	l := newTestRedis(b)

	_, err := l.Lock(context.Background(), "user_a")
	assert.ErrorIs(t, err, b.acquireErr)
}

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameNamespace(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "user_a")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestLocal_IndependentNamespaces(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "user_b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "user_a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "user_a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal_UnlockIsIdempotent(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(ctx, "user_a")
	require.NoError(t, err)
	again()
}

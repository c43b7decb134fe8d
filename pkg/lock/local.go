package lock

import (
	"context"
	"sync"
)

// Local 是进程内的命名空间锁，用于 CLI 和测试。
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal 创建进程内锁。
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(namespace string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[namespace]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[namespace] = ch
	}
	return ch
}

// Lock 阻塞直到拿到锁或 ctx 结束。
func (l *Local) Lock(ctx context.Context, namespace string) (func(), error) {
	ch := l.slot(namespace)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

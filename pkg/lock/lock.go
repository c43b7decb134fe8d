// Package lock 提供按命名空间的互斥锁，用于保护 加载-修改-保存 过程。
package lock

import "context"

// Locker 获取命名空间锁，返回的 unlock 必须被调用且只调用一次。
type Locker interface {
	Lock(ctx context.Context, namespace string) (unlock func(), err error)
}

package vectorindex

import (
	"path/filepath"
	"sync"
)

// 同一索引目录的 load → add → save 序列必须互斥，
// 否则并发入库会互相覆盖对方的持久化结果（lost update）。
var (
	locksMu   sync.Mutex
	pathLocks = make(map[string]*sync.Mutex)
)

// PathLock 返回 dir 对应的互斥锁。同一目录（按绝对路径归一）共享一把锁。
func PathLock(dir string) *sync.Mutex {
	key := dir
	if abs, err := filepath.Abs(dir); err == nil {
		key = abs
	}

	locksMu.Lock()
	defer locksMu.Unlock()

	l, ok := pathLocks[key]
	if !ok {
		l = &sync.Mutex{}
		pathLocks[key] = l
	}
	return l
}

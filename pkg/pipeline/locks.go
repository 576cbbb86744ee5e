package pipeline

import "sync"

// RunLocks 运行锁注册表：同一转写记录同一时刻只允许一次流水线运行
// 不同记录互不影响
type RunLocks struct {
	mu      sync.Mutex
	running map[string]bool
}

// NewRunLocks 创建运行锁注册表
func NewRunLocks() *RunLocks {
	return &RunLocks{running: make(map[string]bool)}
}

// Acquire 尝试获取 id 的运行锁，已被占用时返回 false
func (l *RunLocks) Acquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[id] {
		return false
	}
	l.running[id] = true
	return true
}

// Release 释放 id 的运行锁
func (l *RunLocks) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, id)
}

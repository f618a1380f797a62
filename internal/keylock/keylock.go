// Package keylock 提供按 key 串行化的互斥表，供需要单 key 原子性的调用方
// （例如 HTTP 层的写接口）叠加在缓存引擎之上使用。
package keylock

import "sync"

// Table 为每个正在使用的 key 维护一把带引用计数的锁，最后一个持有者释放后即回收。
// 零值可直接使用。
type Table struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Lock 阻塞直到获得 key 的锁，返回的函数用于释放，只能调用一次。
func (t *Table) Lock(key string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*entry)
	}
	l := t.locks[key]
	if l == nil {
		l = &entry{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// LockAll 按字典序依次锁定去重后的 keys，避免批量操作之间死锁。
func (t *Table) LockAll(keys []string) func() {
	sorted := dedupSorted(keys)
	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, t.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Len 返回当前被持有或等待中的 key 数量。
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	var table Table
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := table.Lock("k")
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("同一 key 的临界区应串行执行, got %d", counter)
	}
	if table.Len() != 0 {
		t.Fatalf("释放后锁应被回收, len=%d", table.Len())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	var table Table
	unlockA := table.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := table.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("不同 key 不应互相阻塞")
	}
}

func TestLockAllDedupes(t *testing.T) {
	var table Table
	unlock := table.LockAll([]string{"b", "a", "b"})
	if table.Len() != 2 {
		t.Fatalf("重复 key 只应锁定一次, len=%d", table.Len())
	}
	unlock()
	if table.Len() != 0 {
		t.Fatalf("LockAll 释放后应回收全部锁")
	}
}

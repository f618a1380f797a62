package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/events"
)

// CleanupResult 汇总一次清理的结果。
type CleanupResult struct {
	Expired int `json:"expired"`
	Evicted int `json:"evicted"`
}

// Cleanup 先移除全部过期条目，再在超过 MaxSize 时按最久未访问顺序淘汰。
// 定时器、超限的 Set 与手动调用共用这一流程，同一时刻只会有一次清理在执行。
func (e *Engine[T]) Cleanup() CleanupResult {
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()

	var res CleanupResult
	for _, entry := range e.index.expired(e.nowMillis()) {
		if err := e.removeEntry("cleanup", entry); err != nil {
			e.report(err)
			continue
		}
		res.Expired++
		e.stats.expirations.Add(1)
		e.bus.Publish(events.Expire{Key: entry.Key, ExpiresAt: entry.ExpiresAt})
	}

	if limit := e.opts.MaxSize; limit > 0 {
		for _, entry := range e.index.oldest(e.index.len() - limit) {
			if err := e.removeEntry("cleanup", entry); err != nil {
				e.report(err)
				continue
			}
			res.Evicted++
			e.stats.evictions.Add(1)
		}
	}

	if res.Expired+res.Evicted > 0 {
		e.log.WithFields(logrus.Fields{
			"action":  "cache_cleanup",
			"expired": res.Expired,
			"evicted": res.Evicted,
		}).Info("cache cleanup finished")
		e.bus.Publish(events.Cleanup{Expired: res.Expired, Removed: res.Evicted})
	}
	return res
}

// startCleanupLoop 启动由引擎持有的定时清理 goroutine，Close 负责停止。
func (e *Engine[T]) startCleanupLoop(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	e.stopLoop = cancel
	e.loopDone = make(chan struct{})

	go func() {
		defer close(e.loopDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Cleanup()
			}
		}
	}()
}

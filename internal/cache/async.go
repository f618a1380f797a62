package cache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// 异步接口与同步接口共用同一套实现，只是在独立 goroutine 中执行并通过
// 容量为 1 的 channel 交付结果。同时运行的异步操作数受 AsyncConcurrency 限制。
//
// 对同一个 key 并发发起的异步操作之间不保证原子性；需要时请在调用方按 key 串行化，
// 例如使用 keylock.Table。

func dispatch[T, R any](e *Engine[T], fn func() R) <-chan R {
	out := make(chan R, 1)
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		// Close 之后不再派发后台任务，直接在调用方执行并返回已就绪的 channel。
		out <- fn()
		return out
	}
	e.inflight.Add(1)
	e.closeMu.Unlock()
	go func() {
		defer e.inflight.Done()
		// Background 永不取消，Acquire 只会阻塞而不会失败。
		_ = e.sem.Acquire(context.Background(), 1)
		defer e.sem.Release(1)
		out <- fn()
	}()
	return out
}

func (e *Engine[T]) HasAsync(key string) <-chan bool {
	return dispatch(e, func() bool { return e.Has(key) })
}

func (e *Engine[T]) GetAsync(key string) <-chan Result[T] {
	return dispatch(e, func() Result[T] { return e.getResult(key) })
}

func (e *Engine[T]) SetAsync(key string, value T, opts ...SetOption) <-chan bool {
	return dispatch(e, func() bool { return e.Set(key, value, opts...) })
}

func (e *Engine[T]) DeleteAsync(key string) <-chan bool {
	return dispatch(e, func() bool { return e.Delete(key) })
}

func (e *Engine[T]) ClearAsync() <-chan bool {
	return dispatch(e, e.Clear)
}

// SetManyAsync 并行写入各项；重复的 key 归为一组按输入顺序串行执行，
// 因此同一批次中后出现的值总是最终值。
func (e *Engine[T]) SetManyAsync(items []Item[T]) <-chan SetManyResult {
	return dispatch(e, func() SetManyResult {
		outcomes := make([]SetOutcome, len(items))
		groups := groupByKey(len(items), func(i int) string { return items[i].Key })
		e.fanOut(groups, func(i int) {
			item := items[i]
			outcomes[i] = SetOutcome{Key: item.Key, OK: e.Set(item.Key, item.Value, item.Options...)}
		})
		return summarizeSets(outcomes)
	})
}

// GetManyAsync 并行读取各 key，结果顺序与输入一致。
func (e *Engine[T]) GetManyAsync(keys []string) <-chan GetManyResult[T] {
	return dispatch(e, func() GetManyResult[T] {
		results := make([]Result[T], len(keys))
		groups := groupByKey(len(keys), func(i int) string { return keys[i] })
		e.fanOut(groups, func(i int) {
			results[i] = e.getResult(keys[i])
		})
		return summarizeGets(results)
	})
}

func (e *Engine[T]) fanOut(groups [][]int, fn func(int)) {
	var g errgroup.Group
	g.SetLimit(e.opts.AsyncConcurrency)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, i := range group {
				fn(i)
			}
			return nil
		})
	}
	_ = g.Wait()
}

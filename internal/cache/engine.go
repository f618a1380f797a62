package cache

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/any-hub/any-cache/internal/codec"
	"github.com/any-hub/any-cache/internal/events"
)

// Engine 是磁盘缓存引擎，T 为缓存值类型。调用方负责在退出前执行 Close。
type Engine[T any] struct {
	opts  Options
	dir   string
	codec codec.Codec[T]
	ser   serializer
	index *index
	stats *statsCollector
	bus   *events.Bus
	log   logrus.FieldLogger
	now   func() time.Time

	sem      *semaphore.Weighted
	inflight sync.WaitGroup
	// closeMu 保证 Close 置位 closed 之后不再有 inflight.Add。
	closeMu sync.Mutex
	closed  bool

	cleanupMu sync.Mutex
	stopLoop  context.CancelFunc
	loopDone  chan struct{}
	closeOnce sync.Once
}

// Open 使用默认的 Graph 编码打开缓存目录。
func Open[T any](opts Options) (*Engine[T], error) {
	return OpenWithCodec[T](opts, codec.Graph[T]{})
}

// OpenWithCodec 创建缓存目录、根据目录内容重建索引，并按配置启动定时清理。
// 目录无法创建或读取时返回 KindInitializationFailure，这是唯一向上抛出的错误。
func OpenWithCodec[T any](opts Options, c codec.Codec[T]) (*Engine[T], error) {
	opts = opts.normalized()

	dir, err := ensureDir(opts.Dir)
	if err != nil {
		return nil, newError("open", "", KindInitializationFailure, err)
	}

	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	e := &Engine[T]{
		opts:  opts,
		dir:   dir,
		codec: c,
		ser:   newSerializer(opts),
		index: newIndex(),
		stats: &statsCollector{},
		bus:   bus,
		log:   engineLogger(opts),
		now:   opts.Now,
		sem:   semaphore.NewWeighted(int64(opts.AsyncConcurrency)),
	}

	loaded, err := e.reconcile()
	if err != nil {
		return nil, newError("open", "", KindInitializationFailure, err)
	}

	e.log.WithFields(logrus.Fields{
		"action":  "cache_ready",
		"dir":     dir,
		"entries": loaded,
	}).Info("cache index rebuilt")
	e.bus.Publish(events.Ready{EntriesLoaded: loaded, CacheDir: dir})

	if opts.EnableAutoCleanup && opts.CleanupInterval > 0 {
		e.startCleanupLoop(opts.CleanupInterval)
	}
	return e, nil
}

func engineLogger(opts Options) logrus.FieldLogger {
	if !opts.EnableLogging {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		return silent
	}
	if opts.Logger != nil {
		return opts.Logger
	}
	return logrus.StandardLogger()
}

// Dir 返回缓存目录的绝对路径。
func (e *Engine[T]) Dir() string { return e.dir }

// Events 返回引擎使用的事件总线。
func (e *Engine[T]) Events() *events.Bus { return e.bus }

// Has 报告 key 是否存在且未过期；过期条目会被顺带移除。
func (e *Engine[T]) Has(key string) bool {
	if !e.checkKey("has", key) {
		return false
	}
	entry, ok := e.index.lookup(key)
	if !ok {
		return false
	}
	if entry.Expired(e.nowMillis()) {
		e.expire("has", entry)
		return false
	}
	return true
}

// Get 读取并解码 key 对应的值。缺失、过期或读取失败都视为未命中；
// 文件丢失时索引自愈，解码失败时保留索引条目。
func (e *Engine[T]) Get(key string) (T, bool) {
	var zero T
	if !e.checkKey("get", key) {
		return zero, false
	}

	entry, ok := e.index.lookup(key)
	if !ok {
		e.stats.misses.Add(1)
		return zero, false
	}
	if entry.Expired(e.nowMillis()) {
		e.expire("get", entry)
		e.stats.misses.Add(1)
		return zero, false
	}

	data, err := os.ReadFile(e.path(entry))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.index.removeIf(entry)
		} else {
			e.report(newError("get", key, KindIOFailure, err))
		}
		e.stats.misses.Add(1)
		return zero, false
	}

	raw, err := e.ser.unpack(data, entry.Compressed)
	if err != nil {
		e.report(newError("get", key, KindDeserializationFailure, err))
		e.stats.misses.Add(1)
		return zero, false
	}
	value, err := e.codec.Decode(raw)
	if err != nil {
		e.report(newError("get", key, KindDeserializationFailure, err))
		e.stats.misses.Add(1)
		return zero, false
	}

	e.index.touch(entry, e.now())
	e.stats.hits.Add(1)
	e.log.WithFields(logrus.Fields{
		"action":     "cache_get",
		"key":        key,
		"compressed": entry.Compressed,
	}).Debug("cache hit")
	return value, true
}

// Set 写入 key。未指定 WithTTL 时使用 DefaultTTL。
// 过期时间或压缩标记变化会改变文件名，因此旧文件总是先被删除。
func (e *Engine[T]) Set(key string, value T, opts ...SetOption) bool {
	if !e.checkKey("set", key) {
		return false
	}

	so := setOptions{ttl: e.opts.DefaultTTL}
	for _, opt := range opts {
		opt(&so)
	}

	raw, err := e.codec.Encode(value)
	if err != nil {
		e.report(newError("set", key, KindSerializationFailure, err))
		return false
	}
	p, err := e.ser.pack(raw)
	if err != nil {
		kind := KindSerializationFailure
		if errors.Is(err, ErrSizeLimit) {
			kind = KindSizeLimitExceeded
		}
		e.report(newError("set", key, kind, err))
		return false
	}

	now := e.now()
	entry := Entry{
		Key:        key,
		ExpiresAt:  expiresAtFor(now, so.ttl),
		Compressed: p.compressed,
		Size:       int64(len(p.data)),
		CreatedAt:  now,
		AccessedAt: now,
	}

	prev, exists := e.index.lookup(key)
	if exists && prev.Filename() != entry.Filename() {
		if err := removeFile(e.path(prev)); err != nil {
			e.report(newError("set", key, KindIOFailure, err))
			return false
		}
	}

	if err := writeFileAtomic(e.dir, entry.Filename(), p.data, now); err != nil {
		if exists {
			e.index.removeIf(prev)
		}
		e.report(newError("set", key, KindIOFailure, err))
		return false
	}

	e.index.insert(entry)
	e.stats.sets.Add(1)
	e.log.WithFields(logrus.Fields{
		"action":     "cache_set",
		"key":        key,
		"size":       entry.Size,
		"raw_size":   p.rawSize,
		"compressed": entry.Compressed,
		"expires_at": entry.ExpiresAt,
	}).Debug("cache entry written")
	e.bus.Publish(events.Change{Operation: "set", Key: key, Value: value})

	if limit := e.opts.MaxSize; limit > 0 && e.index.len() > limit {
		e.Cleanup()
	}
	return true
}

// Delete 删除 key；key 不存在视为成功。
func (e *Engine[T]) Delete(key string) bool {
	if !e.checkKey("delete", key) {
		return false
	}
	entry, ok := e.index.lookup(key)
	if !ok {
		return true
	}
	if err := e.removeEntry("delete", entry); err != nil {
		e.report(err)
		return false
	}

	e.stats.deletes.Add(1)
	e.log.WithFields(logrus.Fields{
		"action": "cache_delete",
		"key":    key,
	}).Debug("cache entry deleted")
	e.bus.Publish(events.Change{Operation: "delete", Key: key})
	return true
}

// Clear 删除缓存目录中的全部文件并清空索引，不可恢复。
func (e *Engine[T]) Clear() bool {
	dirEntries, err := os.ReadDir(e.dir)
	if err != nil {
		e.report(newError("clear", "", KindIOFailure, err))
		return false
	}
	prior := e.index.reset()

	ok := true
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if err := removeFile(filepath.Join(e.dir, de.Name())); err != nil {
			e.report(newError("clear", "", KindIOFailure, err))
			ok = false
		}
	}

	e.log.WithFields(logrus.Fields{
		"action":  "cache_clear",
		"removed": prior,
	}).Info("cache cleared")
	e.bus.Publish(events.Clear{EntriesRemoved: prior})
	return ok
}

// Keys 返回当前索引中的全部 key（按字典序）。
func (e *Engine[T]) Keys() []string {
	return e.index.keys()
}

// Size 返回当前条目数。
func (e *Engine[T]) Size() int {
	return e.index.len()
}

// Entry 返回 key 的元数据，不影响 LRU 顺序。
func (e *Engine[T]) Entry(key string) (Entry, bool) {
	if !ValidKey(key) {
		return Entry{}, false
	}
	return e.index.lookup(key)
}

// Close 停止定时清理并等待进行中的异步操作结束，可重复调用。
// 之后发起的异步调用在调用方 goroutine 中同步完成。
func (e *Engine[T]) Close() error {
	e.closeOnce.Do(func() {
		e.closeMu.Lock()
		e.closed = true
		e.closeMu.Unlock()

		if e.stopLoop != nil {
			e.stopLoop()
			<-e.loopDone
		}
		e.inflight.Wait()
	})
	return nil
}

// reconcile 扫描缓存目录重建索引：忽略无法解析的文件，删除已过期文件与
// 中断写入遗留的临时文件；同一个 key 出现多个文件时保留 mtime 最新的一个。
func (e *Engine[T]) reconcile() (int, error) {
	dirEntries, err := os.ReadDir(e.dir)
	if err != nil {
		return 0, err
	}

	nowMillis := e.nowMillis()
	found := make(map[string]Entry)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		fullPath := filepath.Join(e.dir, name)

		if isTempFile(name) {
			if err := removeFile(fullPath); err != nil {
				e.report(newError("reconcile", "", KindIOFailure, err))
			}
			continue
		}

		meta, ok := DecodeFilename(name)
		if !ok || !ValidKey(meta.Key) || EncodeFilename(meta.Key, meta.ExpiresAt, meta.Compressed) != name {
			continue
		}
		if meta.ExpiresAt != 0 && meta.ExpiresAt < nowMillis {
			if err := removeFile(fullPath); err != nil {
				e.report(newError("reconcile", meta.Key, KindIOFailure, err))
			}
			continue
		}

		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		entry := Entry{
			Key:        meta.Key,
			ExpiresAt:  meta.ExpiresAt,
			Compressed: meta.Compressed,
			Size:       info.Size(),
			CreatedAt:  info.ModTime(),
			AccessedAt: info.ModTime(),
		}

		if prev, dup := found[meta.Key]; dup {
			stale := entry
			if prev.CreatedAt.Before(entry.CreatedAt) {
				stale = prev
				found[meta.Key] = entry
			}
			if err := removeFile(e.path(stale)); err != nil {
				e.report(newError("reconcile", meta.Key, KindIOFailure, err))
			}
			continue
		}
		found[meta.Key] = entry
	}

	ordered := make([]Entry, 0, len(found))
	for _, entry := range found {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].AccessedAt.Equal(ordered[j].AccessedAt) {
			return ordered[i].Key < ordered[j].Key
		}
		return ordered[i].AccessedAt.Before(ordered[j].AccessedAt)
	})
	for _, entry := range ordered {
		e.index.insert(entry)
	}
	return len(ordered), nil
}

// removeEntry 删除条目文件并在索引仍指向该文件时移除索引。
func (e *Engine[T]) removeEntry(op string, entry Entry) *Error {
	if err := removeFile(e.path(entry)); err != nil {
		return newError(op, entry.Key, KindIOFailure, err)
	}
	e.index.removeIf(entry)
	return nil
}

func (e *Engine[T]) expire(op string, entry Entry) {
	if err := e.removeEntry(op, entry); err != nil {
		e.report(err)
		return
	}
	e.stats.expirations.Add(1)
	e.bus.Publish(events.Expire{Key: entry.Key, ExpiresAt: entry.ExpiresAt})
}

func (e *Engine[T]) checkKey(op, key string) bool {
	if err := ValidateKey(key); err != nil {
		e.report(newError(op, key, KindInvalidKey, err))
		return false
	}
	return true
}

// report 统一处理操作边界上的错误：计数、记录日志并发布 error 事件。
func (e *Engine[T]) report(err *Error) {
	e.stats.errors.Add(1)
	e.log.WithFields(logrus.Fields{
		"action": "cache_error",
		"op":     err.Op,
		"key":    err.Key,
		"kind":   string(err.Kind),
	}).Warn(err.Err.Error())
	e.bus.Publish(events.Error{
		Operation: err.Op,
		Key:       err.Key,
		Message:   err.Error(),
		Cause:     err.Err,
	})
}

func (e *Engine[T]) path(entry Entry) string {
	return filepath.Join(e.dir, entry.Filename())
}

func (e *Engine[T]) nowMillis() int64 {
	return e.now().UnixMilli()
}

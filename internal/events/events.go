// Package events 提供进程内的发布/订阅端口：按事件类型订阅，同步投递，
// 订阅 ID 使用 uuid 生成，可随时退订。缓存引擎通过它广播 ready/change/error
// 等状态变化，HTTP 层与指标层只依赖这里定义的事件结构。
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Kind 标识事件类型。
type Kind string

const (
	KindReady   Kind = "ready"
	KindChange  Kind = "change"
	KindError   Kind = "error"
	KindExpire  Kind = "expire"
	KindClear   Kind = "clear"
	KindCleanup Kind = "cleanup"
)

// Event 是所有事件载荷的公共接口。
type Event interface {
	Kind() Kind
}

// Ready 在启动对账完成后发布一次。
type Ready struct {
	EntriesLoaded int
	CacheDir      string
}

// Change 描述一次 set/delete 造成的状态变化，Value 仅在 set 时携带。
type Change struct {
	Operation string
	Key       string
	Value     any
}

// Error 描述在操作边界被捕获的错误。
type Error struct {
	Operation string
	Key       string
	Message   string
	Cause     error
}

// Expire 在条目因 TTL 到期被移除时发布。
type Expire struct {
	Key       string
	ExpiresAt int64
}

// Clear 在清空缓存后发布，EntriesRemoved 为清空前的条目数。
type Clear struct {
	EntriesRemoved int
}

// Cleanup 汇总一次清理过程中过期与淘汰的条目数量。
type Cleanup struct {
	Expired int
	Removed int
}

func (Ready) Kind() Kind   { return KindReady }
func (Change) Kind() Kind  { return KindChange }
func (Error) Kind() Kind   { return KindError }
func (Expire) Kind() Kind  { return KindExpire }
func (Clear) Kind() Kind   { return KindClear }
func (Cleanup) Kind() Kind { return KindCleanup }

// Handler 处理单个事件，运行在发布者的 goroutine 中。
type Handler func(Event)

type subscription struct {
	id      string
	kind    Kind
	handler Handler
}

// Bus 是同步投递的事件总线，零值不可用，请通过 NewBus 创建。
type Bus struct {
	mu    sync.RWMutex
	subs  map[Kind][]subscription
	index map[string]Kind
}

// NewBus 创建空的事件总线。
func NewBus() *Bus {
	return &Bus{
		subs:  make(map[Kind][]subscription),
		index: make(map[string]Kind),
	}
}

// Subscribe 注册 kind 类型的处理函数并返回订阅 ID。
func (b *Bus) Subscribe(kind Kind, handler Handler) string {
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], subscription{id: id, kind: kind, handler: handler})
	b.index[id] = kind
	return id
}

// Unsubscribe 移除订阅，ID 不存在时返回 false。
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	kind, ok := b.index[id]
	if !ok {
		return false
	}
	delete(b.index, id)

	subs := b.subs[kind]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[kind]) == 0 {
		delete(b.subs, kind)
	}
	return true
}

// Publish 按订阅顺序同步调用处理函数。处理函数内可以安全地订阅或退订。
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev.Kind()]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(ev)
	}
}

// Subscribers 返回 kind 当前的订阅数量。
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// On 以具体事件类型订阅，返回的函数用于退订。
func On[E Event](b *Bus, fn func(E)) func() {
	var zero E
	id := b.Subscribe(zero.Kind(), func(ev Event) {
		if typed, ok := ev.(E); ok {
			fn(typed)
		}
	})
	return func() { b.Unsubscribe(id) }
}

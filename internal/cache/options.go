package cache

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/events"
)

const (
	DefaultDir                  = ".cache"
	DefaultCompressionThreshold = 1024
	DefaultCompressionLevel     = 6
	DefaultMaxFileSize          = 50 * 1024 * 1024
	DefaultCleanupInterval      = 5 * time.Minute
	DefaultAsyncConcurrency     = 16
)

// Options 控制 Engine 的目录、压缩、容量与清理策略。建议从 DefaultOptions 开始修改。
type Options struct {
	// Dir 是缓存目录，不存在时自动创建。
	Dir string

	EnableCompression bool
	// CompressionThreshold 以字节计，编码结果超过该值才尝试压缩。
	CompressionThreshold int
	// CompressionLevel 取值 1-9，越界时钳制。
	CompressionLevel int

	// MaxSize 是条目数上限，<= 0 表示不限制。
	MaxSize int
	// MaxFileSize 是单个编码结果的字节上限。
	MaxFileSize int64

	// DefaultTTL 用于未显式指定 TTL 的 Set，0 表示永不过期。
	DefaultTTL time.Duration

	// CleanupInterval <= 0 或 EnableAutoCleanup=false 时不启动定时清理。
	CleanupInterval   time.Duration
	EnableAutoCleanup bool

	// EnableLogging 关闭时引擎日志全部丢弃。
	EnableLogging bool
	Logger        logrus.FieldLogger

	// AsyncConcurrency 限制同时执行的异步操作数量。
	AsyncConcurrency int

	// Bus 为空时引擎自建事件总线，可通过 Engine.Events 获取。
	Bus *events.Bus

	// Now 为空时使用 time.Now，测试中可注入固定时钟。
	Now func() time.Time
}

// DefaultOptions 返回与配置文件默认值一致的选项。
func DefaultOptions() Options {
	return Options{
		Dir:                  DefaultDir,
		CompressionThreshold: DefaultCompressionThreshold,
		CompressionLevel:     DefaultCompressionLevel,
		MaxFileSize:          DefaultMaxFileSize,
		CleanupInterval:      DefaultCleanupInterval,
		EnableAutoCleanup:    true,
		AsyncConcurrency:     DefaultAsyncConcurrency,
	}
}

func (o Options) normalized() Options {
	if o.Dir == "" {
		o.Dir = DefaultDir
	}
	if o.CompressionThreshold < 0 {
		o.CompressionThreshold = 0
	}
	o.CompressionLevel = clampLevel(o.CompressionLevel)
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.AsyncConcurrency <= 0 {
		o.AsyncConcurrency = DefaultAsyncConcurrency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func clampLevel(level int) int {
	switch {
	case level == 0:
		return DefaultCompressionLevel
	case level < 1:
		return 1
	case level > 9:
		return 9
	default:
		return level
	}
}

// SetOption 调整单次 Set 的行为。
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL 覆盖 DefaultTTL；WithTTL(0) 表示永不过期。
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// expiresAtFor 计算绝对过期毫秒数，0 保留为"永不过期"。
func expiresAtFor(now time.Time, ttl time.Duration) int64 {
	if ttl == 0 {
		return 0
	}
	ms := ttl.Milliseconds()
	if ttl > 0 && ms == 0 {
		ms = 1
	}
	expiresAt := now.UnixMilli() + ms
	if expiresAt <= 0 {
		expiresAt = 1
	}
	return expiresAt
}

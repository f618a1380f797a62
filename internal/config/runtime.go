package config

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/events"
)

// CacheOptions 把配置映射为引擎选项；logger 与 bus 由调用方注入。
// CompressionLevel 的钳制由引擎负责。
func (c *Config) CacheOptions(logger logrus.FieldLogger, bus *events.Bus) cache.Options {
	cc := c.Cache
	return cache.Options{
		Dir:                  cc.CacheDir,
		EnableCompression:    cc.EnableCompression,
		CompressionThreshold: cc.CompressionThreshold,
		CompressionLevel:     cc.CompressionLevel,
		MaxSize:              cc.MaxSize,
		MaxFileSize:          cc.MaxFileSize,
		DefaultTTL:           cc.DefaultTTL.DurationValue(),
		CleanupInterval:      cc.CleanupInterval.DurationValue(),
		EnableAutoCleanup:    cc.EnableAutoCleanup,
		EnableLogging:        cc.EnableLogging,
		Logger:               logger,
		AsyncConcurrency:     cc.AsyncConcurrency,
		Bus:                  bus,
	}
}

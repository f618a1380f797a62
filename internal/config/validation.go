package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(strings.TrimSpace(g.LogLevel)); err != nil {
		return newFieldError("LogLevel", "无法识别的日志级别: "+g.LogLevel)
	}
	if g.LogMaxSize < 0 {
		return newFieldError("LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}

	cc := c.Cache
	if strings.TrimSpace(cc.CacheDir) == "" {
		return newFieldError("CacheDir", "不能为空")
	}
	if cc.CompressionThreshold < 0 {
		return newFieldError("CompressionThreshold", "不能为负数")
	}
	if cc.MaxSize < 0 {
		return newFieldError("MaxSize", "不能为负数")
	}
	if cc.MaxFileSize < 0 {
		return newFieldError("MaxFileSize", "不能为负数")
	}
	if cc.DefaultTTL.DurationValue() < 0 {
		return newFieldError("DefaultTTL", "不能为负数")
	}
	if cc.CleanupInterval.DurationValue() < 0 {
		return newFieldError("CleanupInterval", "不能为负数")
	}
	if cc.AsyncConcurrency < 1 {
		return newFieldError("AsyncConcurrency", "必须大于 0")
	}
	return nil
}

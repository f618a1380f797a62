package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/config"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 汇总启动时需要记录的缓存配置。
func CacheFields(cfg config.CacheConfig) logrus.Fields {
	return logrus.Fields{
		"cache_dir":         cfg.CacheDir,
		"compression":       cfg.EnableCompression,
		"max_size":          cfg.MaxSize,
		"default_ttl":       cfg.DefaultTTL.DurationValue().String(),
		"cleanup_interval":  cfg.CleanupInterval.DurationValue().String(),
		"auto_cleanup":      cfg.EnableAutoCleanup,
		"async_concurrency": cfg.AsyncConcurrency,
	}
}

// RequestFields 提供 HTTP 请求日志的公共字段。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}

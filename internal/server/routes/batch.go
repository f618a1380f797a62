package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/keylock"
	"github.com/any-hub/any-cache/internal/server"
)

type batchGetRequest struct {
	Keys []string `json:"keys"`
}

type batchSetItem struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	TTL   string `json:"ttl,omitempty"`
}

type batchSetRequest struct {
	Items []batchSetItem `json:"items"`
}

// registerBatchRoutes 通过引擎的异步批量接口执行，结果顺序与请求一致。
func registerBatchRoutes(app *fiber.App, engine *cache.Engine[any], locks *keylock.Table) {
	app.Post("/-/batch/get", func(c fiber.Ctx) error {
		var req batchGetRequest
		if err := c.App().Config().JSONDecoder(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
		return c.JSON(<-engine.GetManyAsync(req.Keys))
	})

	app.Post("/-/batch/set", func(c fiber.Ctx) error {
		var req batchSetRequest
		if err := c.App().Config().JSONDecoder(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}

		items := make([]cache.Item[any], 0, len(req.Items))
		keys := make([]string, 0, len(req.Items))
		for _, it := range req.Items {
			item := cache.Item[any]{Key: it.Key, Value: it.Value}
			if raw := strings.TrimSpace(it.TTL); raw != "" {
				ttl, err := server.ParseTTL(raw)
				if err != nil {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ttl", "key": it.Key})
				}
				item.Options = []cache.SetOption{cache.WithTTL(ttl)}
			}
			items = append(items, item)
			keys = append(keys, it.Key)
		}

		unlock := locks.LockAll(keys)
		defer unlock()
		return c.JSON(<-engine.SetManyAsync(items))
	})
}

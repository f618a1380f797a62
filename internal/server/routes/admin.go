package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/keylock"
)

// RegisterAdminRoutes 暴露 /-/ 下的统计、维护与批量接口。gatherer 为空时不注册 /-/metrics。
func RegisterAdminRoutes(app *fiber.App, engine *cache.Engine[any], locks *keylock.Table, gatherer prometheus.Gatherer) {
	if app == nil || engine == nil {
		return
	}
	if locks == nil {
		locks = &keylock.Table{}
	}

	app.Get("/-/keys", func(c fiber.Ctx) error {
		keys := engine.Keys()
		return c.JSON(fiber.Map{"keys": keys, "count": len(keys)})
	})

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(engine.Stats())
	})

	app.Get("/-/stats/compression", func(c fiber.Ctx) error {
		return c.JSON(engine.CompressionStats())
	})

	app.Post("/-/stats/reset", func(c fiber.Ctx) error {
		engine.ResetStats()
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Post("/-/cleanup", func(c fiber.Ctx) error {
		return c.JSON(engine.Cleanup())
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		removed := engine.Size()
		if !engine.Clear() {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "clear_failed"})
		}
		return c.JSON(fiber.Map{"cleared": removed})
	})

	registerBatchRoutes(app, engine, locks)

	if gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

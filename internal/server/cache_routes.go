package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/keylock"
)

func registerCacheRoutes(app *fiber.App, engine *cache.Engine[any], locks *keylock.Table) {
	h := &cacheHandler{engine: engine, locks: locks}

	// HEAD 需先于 GET 注册，否则会被 GET 自动附带的 HEAD 路由接管。
	app.Head("/cache/:key", h.has)
	app.Get("/cache/:key", h.get)
	app.Put("/cache/:key", h.set)
	app.Delete("/cache/:key", h.delete)
}

type cacheHandler struct {
	engine *cache.Engine[any]
	locks  *keylock.Table
	// reads 合并同一 key 的并发 GET，多个请求共享一次磁盘读取与解码。
	reads singleflight.Group
}

type readResult struct {
	value any
	found bool
}

func (h *cacheHandler) has(c fiber.Ctx) error {
	key := c.Params("key")
	if !cache.ValidKey(key) {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !h.engine.Has(key) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *cacheHandler) get(c fiber.Ctx) error {
	key := c.Params("key")
	if !cache.ValidKey(key) {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}
	shared, _, _ := h.reads.Do(key, func() (any, error) {
		value, ok := h.engine.Get(key)
		return readResult{value: value, found: ok}, nil
	})
	res := shared.(readResult)
	if !res.found {
		return renderError(c, fiber.StatusNotFound, "not_found")
	}
	return c.JSON(res.value)
}

func (h *cacheHandler) set(c fiber.Ctx) error {
	key := c.Params("key")
	if !cache.ValidKey(key) {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}

	var opts []cache.SetOption
	if raw := c.Query("ttl"); raw != "" {
		ttl, err := ParseTTL(raw)
		if err != nil {
			return renderError(c, fiber.StatusBadRequest, "invalid_ttl")
		}
		opts = append(opts, cache.WithTTL(ttl))
	}

	var value any
	if err := c.App().Config().JSONDecoder(c.Body(), &value); err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_body")
	}

	unlock := h.locks.Lock(key)
	defer unlock()
	if !h.engine.Set(key, value, opts...) {
		return renderError(c, fiber.StatusUnprocessableEntity, "set_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandler) delete(c fiber.Ctx) error {
	key := c.Params("key")
	if !cache.ValidKey(key) {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}

	unlock := h.locks.Lock(key)
	defer unlock()
	if !h.engine.Delete(key) {
		return renderError(c, fiber.StatusInternalServerError, "delete_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ParseTTL 接受 Go Duration 字符串或按秒计的纯数字，"0" 表示永不过期。
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return 0, strconv.ErrRange
		}
		return d, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, strconv.ErrRange
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

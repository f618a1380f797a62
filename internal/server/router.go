package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/keylock"
	"github.com/any-hub/any-cache/internal/logging"
)

// AppOptions controls which engine the Fiber application serves.
type AppOptions struct {
	Logger     *logrus.Logger
	Engine     *cache.Engine[any]
	Locks      *keylock.Table
	ListenPort int
}

const contextKeyRequestID = "_anycache_request_id"

// NewApp builds a Fiber application with recover, request id and access log
// middlewares and registers the /cache/:key routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("cache engine is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if opts.Locks == nil {
		opts.Locks = &keylock.Table{}
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	registerCacheRoutes(app, opts.Engine, opts.Locks)
	return app, nil
}

// requestContextMiddleware 生成请求 ID 并在请求结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		start := time.Now()
		err := c.Next()

		fields := logging.RequestFields(reqID, c.Method(), c.Path(), c.Response().StatusCode())
		fields["action"] = "http_request"
		fields["elapsed_ms"] = time.Since(start).Milliseconds()
		logger.WithFields(fields).Debug("request served")
		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// Package server assembles the fiber app serving the tracker API.
package server

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/makeasinger/gentrack/internal/handler"
	"github.com/makeasinger/gentrack/internal/middleware"
	ws "github.com/makeasinger/gentrack/internal/websocket"
	"github.com/makeasinger/gentrack/pkg/response"
)

// Deps are the already-built components the routes need
type Deps struct {
	Generations *handler.GenerationHandler
	Notices     *handler.NoticeHandler
	Hub         *ws.Hub
	// RateLimiter may be nil, which disables the register limit
	RateLimiter     *middleware.RateLimiter
	RegisterPerHour int
	// Health is reported under "services" on /health
	Health fiber.Map
	// LogFormat enables the request logger when non-empty
	LogFormat string
}

// New builds the fiber app with every route mounted
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(recover.New())
	if d.LogFormat != "" {
		app.Use(logger.New(logger.Config{Format: d.LogFormat}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + middleware.SessionHeader,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": d.Health,
		})
	})

	api := app.Group("/api")

	registerLimit := func(c *fiber.Ctx) error { return c.Next() }
	if d.RateLimiter != nil {
		registerLimit = d.RateLimiter.RegisterLimit(d.RegisterPerHour)
	}

	gen := api.Group("/generations")
	gen.Get("/", d.Generations.List)
	gen.Post("/", registerLimit, d.Generations.Register)
	gen.Get("/running", d.Generations.Running)
	gen.Post("/clear", d.Generations.ClearTerminal)
	gen.Get("/:jobId", d.Generations.Get)
	gen.Patch("/:jobId", d.Generations.Update)
	gen.Delete("/:jobId", d.Generations.Remove)

	notices := api.Group("/notices")
	notices.Get("/", d.Notices.List)
	notices.Delete("/:kind", d.Notices.AcknowledgeKind)
	notices.Delete("/:kind/:subjectId", d.Notices.AcknowledgeSubject)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/generations", websocket.New(func(c *websocket.Conn) {
		d.Hub.HandleConnection(c, ws.AllJobs)
	}))
	app.Get("/ws/generations/:jobId", websocket.New(func(c *websocket.Conn) {
		d.Hub.HandleConnection(c, c.Params("jobId"))
	}))

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	if code == fiber.StatusNotFound {
		errCode = response.CodeNotFound
	}

	return response.Error(c, code, errCode, message, nil)
}

package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/config"
	"github.com/surprise-envelope/backend/internal/http/dto"
	"github.com/surprise-envelope/backend/internal/http/handlers"
	"github.com/surprise-envelope/backend/internal/middleware"
)

// ErrorHandler renders errors that escaped the handlers as JSON.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			msg = e.Message
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		reqID, _ := c.Locals(middleware.CtxRequestID).(string)
		return c.Status(code).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
	}
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	linkHandler *handlers.LinkHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Sender
	api.Post("/links/intents", linkHandler.CreateIntent)
	api.Post("/links/resolve", middleware.IntentTokenMiddleware(cfg, log), linkHandler.ResolveDeposit)

	// Recipient
	api.Post("/links/decode", linkHandler.DecodeLink)
	api.Post("/claims/authorize", linkHandler.AuthorizeClaim)
	api.Get("/deposits/:index", linkHandler.GetDeposit)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}

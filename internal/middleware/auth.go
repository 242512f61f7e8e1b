package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/auth"
	"github.com/surprise-envelope/backend/internal/config"
)

const CtxIntentClaims = "intent_claims"

// IntentTokenMiddleware requires a Bearer intent token issued by CreateIntent.
func IntentTokenMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseIntentToken(cfg.IntentSecret, tokenStr)
		if err != nil {
			log.Debug("intent token parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired intent token"})
		}

		c.Locals(CtxIntentClaims, claims)
		return c.Next()
	}
}

func GetIntentClaims(c *fiber.Ctx) *auth.IntentClaims {
	claims, _ := c.Locals(CtxIntentClaims).(*auth.IntentClaims)
	return claims
}

package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"go.uber.org/zap"
)

const requestIDLocal = "requestid"

// RequestID assigns every request an ID and echoes it in X-Request-ID.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: requestIDLocal,
	})
}

// RequestContext must run after RequestID.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid, ok := c.Locals(requestIDLocal).(string); ok && rid != "" {
			c.SetUserContext(observability.WithRequestID(c.UserContext(), rid))
		}
		return c.Next()
	}
}

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		reqLogger := observability.ForRequest(logger, c.UserContext()).With(
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
		if code >= fiber.StatusInternalServerError {
			reqLogger.Error("request error")
		} else {
			reqLogger.Warn("request rejected")
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}

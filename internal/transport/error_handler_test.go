package transport

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestApp(logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Use(RequestID())
	app.Use(RequestContext())
	return app
}

func TestErrorHandlerUsesFiberErrorCode(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.DebugLevel)
	app := newTestApp(zap.New(core))
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "notification not found")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status=%d, want=%d", resp.StatusCode, fiber.StatusNotFound)
	}
	if !strings.Contains(string(body), "notification not found") {
		t.Fatalf("body=%s, want error message", body)
	}

	entries := recorded.FilterMessage("request rejected").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries=%d, want=1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level=%s, want=warn", entries[0].Level)
	}
	rid := resp.Header.Get(fiber.HeaderXRequestID)
	if rid == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if got := entries[0].ContextMap()["requestId"]; got != rid {
		t.Fatalf("requestId=%v, want=%q", got, rid)
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.DebugLevel)
	app := newTestApp(zap.New(core))
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: connection refused")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status=%d, want=%d", resp.StatusCode, fiber.StatusInternalServerError)
	}
	if strings.Contains(string(body), "connection refused") {
		t.Fatalf("body leaked internal error: %s", body)
	}
	if got := recorded.FilterMessage("request error").Len(); got != 1 {
		t.Fatalf("error entries=%d, want=1", got)
	}
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	t.Parallel()

	app := newTestApp(zap.NewNop())
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(fiber.HeaderXRequestID, "rid-abc")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get(fiber.HeaderXRequestID); got != "rid-abc" {
		t.Fatalf("X-Request-ID=%q, want=%q", got, "rid-abc")
	}
}

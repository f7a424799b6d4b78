package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-relay/internal/domain"
)

// redactedAPIKey is what responses show in place of a stored key. Writing it
// back keeps the stored key unchanged.
const redactedAPIKey = "********"

type SettingsService interface {
	GetGlobal(ctx context.Context) (domain.NotifyConfig, error)
	SaveGlobal(ctx context.Context, cfg domain.NotifyConfig) error
	GetScope(ctx context.Context, scopeID string) (domain.ScopeOverride, error)
	SaveScope(ctx context.Context, scopeID string, override domain.ScopeOverride) error
	Resolve(ctx context.Context, scopeID string) (domain.NotifyConfig, error)
}

type SettingsHandler struct {
	service SettingsService
}

func NewSettingsHandler(service SettingsService) (*SettingsHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("settings service is required")
	}
	return &SettingsHandler{service: service}, nil
}

func RegisterSettingsRoutes(router fiber.Router, service SettingsService) error {
	h, err := NewSettingsHandler(service)
	if err != nil {
		return err
	}

	settings := router.Group("/v1/settings/notifications")
	settings.Get("/", h.GetGlobal)
	settings.Put("/", h.PutGlobal)
	settings.Get("/scopes/:scopeId", h.GetScope)
	settings.Put("/scopes/:scopeId", h.PutScope)
	settings.Get("/scopes/:scopeId/effective", h.GetEffective)

	return nil
}

func (h *SettingsHandler) GetGlobal(c *fiber.Ctx) error {
	cfg, err := h.service.GetGlobal(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(cfg.Redacted())
}

func (h *SettingsHandler) PutGlobal(c *fiber.Ctx) error {
	var cfg domain.NotifyConfig
	if err := c.BodyParser(&cfg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if cfg.APIKey == redactedAPIKey {
		current, err := h.service.GetGlobal(ctx)
		if err != nil {
			return toHTTPError(err)
		}
		cfg.APIKey = current.APIKey
	}

	if err := h.service.SaveGlobal(ctx, cfg); err != nil {
		return toHTTPError(err)
	}

	saved, err := h.service.GetGlobal(ctx)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(saved.Redacted())
}

func (h *SettingsHandler) GetScope(c *fiber.Ctx) error {
	override, err := h.service.GetScope(c.UserContext(), scopeParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(redactOverride(override))
}

func (h *SettingsHandler) PutScope(c *fiber.Ctx) error {
	var override domain.ScopeOverride
	if err := c.BodyParser(&override); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	scopeID := scopeParam(c)
	if override.APIKey != nil && *override.APIKey == redactedAPIKey {
		current, err := h.service.GetScope(ctx, scopeID)
		if err != nil {
			return toHTTPError(err)
		}
		override.APIKey = current.APIKey
	}

	if err := h.service.SaveScope(ctx, scopeID, override); err != nil {
		return toHTTPError(err)
	}

	saved, err := h.service.GetScope(ctx, scopeID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(redactOverride(saved))
}

func (h *SettingsHandler) GetEffective(c *fiber.Ctx) error {
	cfg, err := h.service.Resolve(c.UserContext(), scopeParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(cfg.Redacted())
}

func scopeParam(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("scopeId"))
}

func redactOverride(o domain.ScopeOverride) domain.ScopeOverride {
	if o.APIKey != nil && *o.APIKey != "" {
		masked := redactedAPIKey
		o.APIKey = &masked
	}
	return o
}

package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"github.com/kursadbilgin/notify-relay/internal/service"
	"github.com/kursadbilgin/notify-relay/internal/transport"
	"go.uber.org/zap"
)

type stubNotificationService struct {
	getByIDFn            func(ctx context.Context, id string) (*domain.Notification, error)
	listFn               func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	replayFn             func(ctx context.Context, id string) (*domain.Notification, error)
	sendTestFn           func(ctx context.Context, scopeID string, message string) (*provider.SendResult, error)
	listInstancesFn      func(ctx context.Context, scopeID string) ([]provider.Instance, error)
	validateConnectionFn func(ctx context.Context, host, apiKey string) (*service.ConnectionCheck, error)
}

func (s *stubNotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubNotificationService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.Notification, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubNotificationService) Replay(ctx context.Context, id string) (*domain.Notification, error) {
	if s.replayFn != nil {
		return s.replayFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubNotificationService) SendTest(ctx context.Context, scopeID string, message string) (*provider.SendResult, error) {
	if s.sendTestFn != nil {
		return s.sendTestFn(ctx, scopeID, message)
	}
	return nil, errors.New("not implemented")
}

func (s *stubNotificationService) ListInstances(ctx context.Context, scopeID string) ([]provider.Instance, error) {
	if s.listInstancesFn != nil {
		return s.listInstancesFn(ctx, scopeID)
	}
	return nil, nil
}

func (s *stubNotificationService) ValidateConnection(
	ctx context.Context,
	host, apiKey string,
) (*service.ConnectionCheck, error) {
	if s.validateConnectionFn != nil {
		return s.validateConnectionFn(ctx, host, apiKey)
	}
	return nil, errors.New("not implemented")
}

type stubSettingsService struct {
	global    domain.NotifyConfig
	scopes    map[string]domain.ScopeOverride
	saveErr   error
	resolveFn func(ctx context.Context, scopeID string) (domain.NotifyConfig, error)
}

func (s *stubSettingsService) GetGlobal(context.Context) (domain.NotifyConfig, error) {
	return s.global, nil
}

func (s *stubSettingsService) SaveGlobal(_ context.Context, cfg domain.NotifyConfig) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.global = cfg
	return nil
}

func (s *stubSettingsService) GetScope(_ context.Context, scopeID string) (domain.ScopeOverride, error) {
	if scopeID == "" {
		return domain.ScopeOverride{}, domain.ErrValidation
	}
	return s.scopes[scopeID], nil
}

func (s *stubSettingsService) SaveScope(_ context.Context, scopeID string, override domain.ScopeOverride) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := override.Validate(); err != nil {
		return err
	}
	if s.scopes == nil {
		s.scopes = map[string]domain.ScopeOverride{}
	}
	s.scopes[scopeID] = override
	return nil
}

func (s *stubSettingsService) Resolve(ctx context.Context, scopeID string) (domain.NotifyConfig, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, scopeID)
	}
	return s.scopes[scopeID].Merge(s.global), nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(transport.RequestID())
	app.Use(transport.RequestContext())
	return app
}

func newNotificationTestApp(t *testing.T, svc NotificationService) *fiber.App {
	t.Helper()

	app := newTestApp(t)
	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func newSettingsTestApp(t *testing.T, svc SettingsService) *fiber.App {
	t.Helper()

	app := newTestApp(t)
	if err := RegisterSettingsRoutes(app, svc); err != nil {
		t.Fatalf("RegisterSettingsRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func strPtr(s string) *string { return &s }

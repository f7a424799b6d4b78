package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"github.com/kursadbilgin/notify-relay/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	Replay(ctx context.Context, id string) (*domain.Notification, error)
	SendTest(ctx context.Context, scopeID string, message string) (*provider.SendResult, error)
	ListInstances(ctx context.Context, scopeID string) ([]provider.Instance, error)
	ValidateConnection(ctx context.Context, host, apiKey string) (*service.ConnectionCheck, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifications", h.ListNotifications)
	v1.Post("/notifications/test", h.SendTest)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/replay", h.ReplayNotification)
	v1.Get("/bridge/instances", h.ListInstances)
	v1.Post("/bridge/validate", h.ValidateConnection)

	return nil
}

type notificationResponse struct {
	ID                string          `json:"id"`
	SubjectID         *string         `json:"subjectId,omitempty"`
	Kind              string          `json:"kind"`
	Recipient         string          `json:"recipient,omitempty"`
	Message           string          `json:"message,omitempty"`
	Status            string          `json:"status"`
	Error             *string         `json:"error,omitempty"`
	ProviderMessageID *string         `json:"providerMessageId,omitempty"`
	Payload           json.RawMessage `json:"payload"`
	ClaimedAt         *time.Time      `json:"claimedAt,omitempty"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type sendTestRequest struct {
	ScopeID string `json:"scopeId"`
	Message string `json:"message"`
}

type sendTestResponse struct {
	MessageID string `json:"messageId,omitempty"`
	Status    string `json:"status,omitempty"`
}

type validateConnectionRequest struct {
	Host   string `json:"host"`
	APIKey string `json:"apiKey"`
}

type instancesResponse struct {
	Instances []provider.Instance `json:"instances"`
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetByID(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) ReplayNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	replay, err := h.service.Replay(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(replay))
}

func (h *NotificationHandler) SendTest(c *fiber.Ctx) error {
	var req sendTestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	result, err := h.service.SendTest(c.UserContext(), strings.TrimSpace(req.ScopeID), req.Message)
	if err != nil {
		return toHTTPError(err)
	}

	resp := sendTestResponse{}
	if result != nil {
		resp.MessageID = result.MessageID
		resp.Status = result.Status
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *NotificationHandler) ListInstances(c *fiber.Ctx) error {
	instances, err := h.service.ListInstances(c.UserContext(), strings.TrimSpace(c.Query("scopeId")))
	if err != nil {
		return toHTTPError(err)
	}
	if instances == nil {
		instances = []provider.Instance{}
	}

	return c.Status(fiber.StatusOK).JSON(instancesResponse{Instances: instances})
}

func (h *NotificationHandler) ValidateConnection(c *fiber.Ctx) error {
	var req validateConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	check, err := h.service.ValidateConnection(c.UserContext(), req.Host, req.APIKey)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(check)
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawKind := strings.TrimSpace(c.Query("kind")); rawKind != "" {
		kind, err := domain.ParseKindFromString(rawKind)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Kind = &kind
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:                n.ID,
		SubjectID:         n.SubjectID,
		Kind:              n.Kind.String(),
		Recipient:         n.Recipient,
		Message:           n.Message,
		Status:            n.Status.String(),
		Error:             n.Error,
		ProviderMessageID: n.ProviderMessageID,
		Payload:           n.Payload,
		ClaimedAt:         n.ClaimedAt,
		SentAt:            n.SentAt,
		CreatedAt:         n.CreatedAt,
	}
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-relay/internal/domain"
)

const (
	defaultBridgeTimeout = 10 * time.Second
	apiKeyHeader         = "X-API-Key"
)

type sendTextRequest struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Text        string `json:"text"`
}

type sendTextResponse struct {
	Success   bool    `json:"success"`
	MessageID *string `json:"message_id"`
	Status    string  `json:"status"`
	Error     *string `json:"error"`
}

type listInstancesResponse struct {
	Channels []rawInstance `json:"channels"`
}

type rawInstance struct {
	Name            string              `json:"name"`
	ChannelType     string              `json:"channel_type"`
	ProfileName     *string             `json:"profile_name"`
	IsActive        *bool               `json:"is_active"`
	EvolutionStatus *rawEvolutionStatus `json:"evolution_status"`
}

type rawEvolutionStatus struct {
	State *string `json:"state"`
	Error *string `json:"error"`
}

func (r rawInstance) toInstance() Instance {
	channelType := r.ChannelType
	if strings.TrimSpace(channelType) == "" {
		channelType = "unknown"
	}

	displayName := r.Name
	if r.ProfileName != nil && strings.TrimSpace(*r.ProfileName) != "" {
		displayName = *r.ProfileName
	}

	active := r.IsActive != nil && *r.IsActive

	status := "inactive"
	if active {
		status = "active"
	}
	healthy := active
	if r.EvolutionStatus != nil {
		if r.EvolutionStatus.State != nil {
			status = *r.EvolutionStatus.State
		}
		healthy = r.EvolutionStatus.Error == nil
	}

	return Instance{
		InstanceName: r.Name,
		ChannelType:  channelType,
		DisplayName:  displayName,
		Status:       status,
		IsHealthy:    healthy,
	}
}

var _ DeliveryClient = (*BridgeClient)(nil)

// BridgeClient talks to the messaging bridge HTTP API.
type BridgeClient struct {
	client *resty.Client
	host   string
	apiKey string
}

func NewBridgeClient(host, apiKey string, timeout time.Duration) (*BridgeClient, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultBridgeTimeout
	}
	client.SetTimeout(timeout)

	return NewBridgeClientWithClient(host, apiKey, client)
}

func NewBridgeClientWithClient(host, apiKey string, client *resty.Client) (*BridgeClient, error) {
	trimmedHost := strings.TrimRight(strings.TrimSpace(host), "/")
	if trimmedHost == "" {
		return nil, fmt.Errorf("%w: bridge host is required", domain.ErrValidation)
	}
	parsed, err := url.ParseRequestURI(trimmedHost)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid bridge host %q", domain.ErrValidation, host)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultBridgeTimeout)
	}
	client.SetRetryCount(0)

	return &BridgeClient{
		client: client,
		host:   trimmedHost,
		apiKey: strings.TrimSpace(apiKey),
	}, nil
}

func (c *BridgeClient) request(ctx context.Context) *resty.Request {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
	if c.apiKey != "" {
		req.SetHeader(apiKeyHeader, c.apiKey)
	}
	return req
}

// SendText posts text to one recipient through the given bridge instance.
func (c *BridgeClient) SendText(ctx context.Context, instance string, to Recipient, text string) (*SendResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("bridge client is not initialized")
	}

	instance = strings.TrimSpace(instance)
	if instance == "" {
		return nil, fmt.Errorf("%w: bridge instance is required", domain.ErrValidation)
	}
	if strings.TrimSpace(to.Value) == "" {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}

	body := sendTextRequest{Text: text}
	switch to.Type.OrDefault() {
	case domain.RecipientUserID:
		body.UserID = to.Value
	default:
		body.PhoneNumber = to.Value
	}

	response, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("%s/api/v1/instance/%s/send-text", c.host, url.PathEscape(instance)))
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &DeliveryError{Message: "bridge returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	rawBody := strings.TrimSpace(response.String())
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, statusError(statusCode, rawBody)
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &DeliveryError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unparseable bridge response: %s", rawBody),
			Cause:      err,
		}
	}
	if !parsed.Success {
		msg := rawBody
		if parsed.Error != nil && strings.TrimSpace(*parsed.Error) != "" {
			msg = *parsed.Error
		}
		return nil, &DeliveryError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("bridge rejected message: %s", msg),
		}
	}

	result := &SendResult{Status: parsed.Status}
	if parsed.MessageID != nil {
		result.MessageID = *parsed.MessageID
	}
	return result, nil
}

// ListInstances returns the instances configured on the bridge.
func (c *BridgeClient) ListInstances(ctx context.Context) ([]Instance, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("bridge client is not initialized")
	}

	response, err := c.request(ctx).Get(c.host + "/api/v1/instances/")
	if err != nil {
		return nil, requestError(err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, statusError(statusCode, strings.TrimSpace(response.String()))
	}

	var parsed listInstancesResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &DeliveryError{
			StatusCode: statusCode,
			Message:    "unparseable instance list",
			Cause:      err,
		}
	}

	instances := make([]Instance, 0, len(parsed.Channels))
	for _, raw := range parsed.Channels {
		instances = append(instances, raw.toInstance())
	}
	return instances, nil
}

func requestError(err error) *DeliveryError {
	return &DeliveryError{
		Message:   "bridge request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

func statusError(statusCode int, body string) *DeliveryError {
	msg := fmt.Sprintf("bridge returned status %d", statusCode)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &DeliveryError{
		StatusCode: statusCode,
		Message:    msg,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

var _ ClientFactory = BridgeClientFactory{}

// BridgeClientFactory builds BridgeClients sharing one request timeout.
type BridgeClientFactory struct {
	Timeout time.Duration
}

func (f BridgeClientFactory) New(host, apiKey string) (DeliveryClient, error) {
	client, err := NewBridgeClient(host, apiKey, f.Timeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

package provider

import (
	"context"

	"github.com/kursadbilgin/notify-relay/internal/domain"
)

// Recipient addresses a message either by phone number or by bridge user id.
type Recipient struct {
	Type  domain.RecipientType
	Value string
}

// SendResult is what the bridge reports for an accepted message.
type SendResult struct {
	MessageID string
	Status    string
}

// Instance is a messaging bridge instance as shown to operators.
type Instance struct {
	InstanceName string `json:"instance_name"`
	ChannelType  string `json:"channel_type"`
	DisplayName  string `json:"display_name"`
	Status       string `json:"status"`
	IsHealthy    bool   `json:"is_healthy"`
}

// DeliveryClient is the outbound port to the messaging bridge.
type DeliveryClient interface {
	SendText(ctx context.Context, instance string, to Recipient, text string) (*SendResult, error)
	ListInstances(ctx context.Context) ([]Instance, error)
}

// ClientFactory builds a DeliveryClient for one resolved configuration.
type ClientFactory interface {
	New(host, apiKey string) (DeliveryClient, error)
}

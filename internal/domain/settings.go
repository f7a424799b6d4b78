package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// RecipientType selects how the bridge addresses the recipient.
type RecipientType string

const (
	RecipientPhoneNumber RecipientType = "phone_number"
	RecipientUserID      RecipientType = "user_id"
)

func (r RecipientType) IsValid() bool {
	switch r {
	case RecipientPhoneNumber, RecipientUserID:
		return true
	}
	return false
}

// OrDefault returns phone_number addressing when r is unset.
func (r RecipientType) OrDefault() RecipientType {
	if r == "" {
		return RecipientPhoneNumber
	}
	return r
}

// NotifyConfig is the effective delivery configuration for one scope.
type NotifyConfig struct {
	Enabled       bool          `json:"enabled"`
	Host          string        `json:"host,omitempty"`
	APIKey        string        `json:"api_key,omitempty"`
	Instance      string        `json:"instance,omitempty"`
	Recipient     string        `json:"recipient,omitempty"`
	RecipientType RecipientType `json:"recipient_type,omitempty"`
}

func (c NotifyConfig) Validate() error {
	if c.RecipientType != "" && !c.RecipientType.IsValid() {
		return fmt.Errorf("%w: unknown recipient_type %q", ErrInvalidConfig, c.RecipientType)
	}
	if err := validateHost(c.Host); err != nil {
		return err
	}
	return nil
}

// MissingField names the first connection field that prevents delivery, or
// returns an empty string when the configuration is deliverable.
func (c NotifyConfig) MissingField() string {
	switch {
	case strings.TrimSpace(c.Host) == "":
		return "host"
	case strings.TrimSpace(c.Instance) == "":
		return "instance"
	case strings.TrimSpace(c.Recipient) == "":
		return "recipient"
	}
	return ""
}

// Redacted hides the API key for API responses and logs.
func (c NotifyConfig) Redacted() NotifyConfig {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

// ScopeOverride holds the fields a scope sets explicitly. Nil fields inherit
// from the global configuration.
type ScopeOverride struct {
	Enabled       *bool          `json:"enabled,omitempty"`
	Host          *string        `json:"host,omitempty"`
	APIKey        *string        `json:"api_key,omitempty"`
	Instance      *string        `json:"instance,omitempty"`
	Recipient     *string        `json:"recipient,omitempty"`
	RecipientType *RecipientType `json:"recipient_type,omitempty"`
}

func (o ScopeOverride) IsEmpty() bool {
	return o.Enabled == nil && o.Host == nil && o.APIKey == nil &&
		o.Instance == nil && o.Recipient == nil && o.RecipientType == nil
}

func (o ScopeOverride) Validate() error {
	if o.RecipientType != nil && *o.RecipientType != "" && !o.RecipientType.IsValid() {
		return fmt.Errorf("%w: unknown recipient_type %q", ErrInvalidConfig, *o.RecipientType)
	}
	if o.Host != nil {
		if err := validateHost(*o.Host); err != nil {
			return err
		}
	}
	return nil
}

// Merge applies o on top of base field by field and returns the result.
func (o ScopeOverride) Merge(base NotifyConfig) NotifyConfig {
	merged := base
	if o.Enabled != nil {
		merged.Enabled = *o.Enabled
	}
	if o.Host != nil {
		merged.Host = *o.Host
	}
	if o.APIKey != nil {
		merged.APIKey = *o.APIKey
	}
	if o.Instance != nil {
		merged.Instance = *o.Instance
	}
	if o.Recipient != nil {
		merged.Recipient = *o.Recipient
	}
	if o.RecipientType != nil {
		merged.RecipientType = *o.RecipientType
	}
	return merged
}

func validateHost(host string) error {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return nil
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid host %q", ErrInvalidConfig, host)
	}
	return nil
}

package adapters

import (
	"context"
	"strings"
)

// Message is the provider-facing payload for a single delivery. The
// Reference field is supplied by the caller and must be carried unchanged
// on every attempt so providers that deduplicate can do so.
type Message struct {
	ID              string
	Channel         string
	To              string
	TemplateRef     string
	Body            string
	Personalisation map[string]any
	Reference       string
	BillingCode     string
	CallbackURL     string
	Sender          string
	Metadata        map[string]any
}

// Receipt is the provider acknowledgement for an accepted message.
type Receipt struct {
	ProviderMessageID string
}

// Capability describes the channels supported by a messenger.
type Capability struct {
	Name     string
	Channels []string
}

// Supports reports whether the capability covers the channel.
func (c Capability) Supports(channel string) bool {
	key := normalizeKey(channel)
	for _, ch := range c.Channels {
		if normalizeKey(ch) == key {
			return true
		}
	}
	return false
}

// Messenger is implemented by delivery providers (AWS SNS, SES, Twilio...).
// Send performs a single outbound call; retry policy lives in the
// dispatcher, not in messengers.
type Messenger interface {
	Name() string
	Capabilities() Capability
	Send(ctx context.Context, msg Message) (Receipt, error)
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

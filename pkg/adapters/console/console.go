package console

import (
	"context"

	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/google/uuid"
)

// Adapter writes notifications to the configured logger for local
// development. It accepts every channel and fabricates a receipt.
type Adapter struct {
	name string
	base adapters.BaseAdapter
	caps adapters.Capability
}

type Option func(*Adapter)

// WithName overrides the adapter provider name (defaults to "console").
func WithName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// New constructs a console adapter.
func New(l logger.Logger, opts ...Option) *Adapter {
	adapter := &Adapter{
		name: "console",
		caps: adapters.Capability{
			Name:     "console",
			Channels: []string{"sms", "email"},
		},
	}
	adapter.base = adapters.NewBaseAdapter(l)
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

// Name implements adapters.Messenger.
func (a *Adapter) Name() string {
	return a.name
}

// Capabilities implements adapters.Messenger.
func (a *Adapter) Capabilities() adapters.Capability {
	return a.caps
}

// Send logs the message and returns a synthetic receipt.
func (a *Adapter) Send(ctx context.Context, msg adapters.Message) (adapters.Receipt, error) {
	a.base.Logger().Info("console delivery",
		logger.Field{Key: "channel", Value: msg.Channel},
		logger.Field{Key: "to", Value: msg.To},
		logger.Field{Key: "reference", Value: msg.Reference},
		logger.Field{Key: "body", Value: msg.Body},
	)
	receipt := adapters.Receipt{ProviderMessageID: uuid.NewString()}
	a.base.LogSuccess(a.name, msg, receipt)
	return receipt, nil
}

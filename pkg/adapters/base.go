package adapters

import "github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"

// BaseAdapter provides shared helpers for simple adapters.
type BaseAdapter struct {
	logger logger.Logger
}

func NewBaseAdapter(l logger.Logger) BaseAdapter {
	if l == nil {
		l = &logger.Nop{}
	}
	return BaseAdapter{logger: l}
}

func (b BaseAdapter) LogSuccess(name string, msg Message, receipt Receipt) {
	b.logger.Info("provider accepted message",
		logger.Field{Key: "provider", Value: name},
		logger.Field{Key: "channel", Value: msg.Channel},
		logger.Field{Key: "reference", Value: msg.Reference},
		logger.Field{Key: "provider_message_id", Value: receipt.ProviderMessageID},
	)
}

func (b BaseAdapter) LogFailure(name string, msg Message, err error) {
	b.logger.Error("provider call failed",
		logger.Field{Key: "provider", Value: name},
		logger.Field{Key: "channel", Value: msg.Channel},
		logger.Field{Key: "reference", Value: msg.Reference},
		logger.Field{Key: "error", Value: err},
	)
}

// Logger exposes the adapter logger for structured diagnostics.
func (b BaseAdapter) Logger() logger.Logger {
	if b.logger == nil {
		return &logger.Nop{}
	}
	return b.logger
}

package aws_ses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/google/uuid"
)

// Adapter delivers email via AWS SES.
type Adapter struct {
	name   string
	base   adapters.BaseAdapter
	caps   adapters.Capability
	cfg    Config
	client SESClient
}

// Config holds SES settings.
type Config struct {
	From             string
	Region           string
	Profile          string
	ConfigurationSet string
	DryRun           bool
}

type Option func(*Adapter)

// SESClient abstracts the SES client for testing.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// WithName overrides the adapter provider name.
func WithName(name string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(name) != "" {
			a.name = name
		}
	}
}

// WithConfig sets the adapter configuration.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) {
		a.cfg = cfg
	}
}

// WithClient injects a custom SES client.
func WithClient(c SESClient) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// New constructs the SES adapter.
func New(l logger.Logger, opts ...Option) *Adapter {
	adapter := &Adapter{
		name: "aws_ses",
		base: adapters.NewBaseAdapter(l),
		caps: adapters.Capability{
			Name:     "aws_ses",
			Channels: []string{"email"},
		},
		cfg: Config{
			Region: "us-east-1",
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Capabilities() adapters.Capability { return a.caps }

func (a *Adapter) ensureClient(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(a.cfg.Region),
	}
	if a.cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(a.cfg.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("aws_ses: load config: %w", err)
	}
	// The dispatcher owns retry policy; keep the SDK out of it.
	a.client = ses.NewFromConfig(cfg, func(o *ses.Options) {
		o.RetryMaxAttempts = 1
	})
	return nil
}

func (a *Adapter) Send(ctx context.Context, msg adapters.Message) (adapters.Receipt, error) {
	if a.cfg.DryRun {
		receipt := adapters.Receipt{ProviderMessageID: uuid.NewString()}
		a.base.LogSuccess(a.name, msg, receipt)
		return receipt, nil
	}

	if strings.TrimSpace(msg.To) == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingDestination", fmt.Errorf("aws_ses: destination required"))
	}
	from := firstNonEmpty(msg.Sender, a.cfg.From)
	if strings.TrimSpace(from) == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingSource", fmt.Errorf("aws_ses: from required"))
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "EmptyBody", fmt.Errorf("aws_ses: content empty"))
	}

	if err := a.ensureClient(ctx); err != nil {
		return adapters.Receipt{}, adapters.Permanent(a.name, "LoadConfig", err)
	}

	subject := stringValue(msg.Metadata, "subject")
	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{strings.TrimSpace(msg.To)},
		},
		Source: aws.String(from),
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}
	if cs := strings.TrimSpace(a.cfg.ConfigurationSet); cs != "" {
		input.ConfigurationSetName = aws.String(cs)
	}

	out, err := a.client.SendEmail(ctx, input)
	if err != nil {
		classified := a.classify(err)
		a.base.LogFailure(a.name, msg, classified)
		return adapters.Receipt{}, classified
	}
	receipt := adapters.Receipt{ProviderMessageID: aws.ToString(out.MessageId)}
	a.base.LogSuccess(a.name, msg, receipt)
	return receipt, nil
}

// classify maps SDK errors onto the retry taxonomy: server faults and
// throttling get another attempt, sender faults do not.
func (a *Adapter) classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "Throttling", "ThrottlingException", "TooManyRequestsException", "ServiceUnavailable", "InternalFailure", "RequestTimeout":
			return adapters.Transient(a.name, code, err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return adapters.Transient(a.name, code, err)
		}
		return adapters.Permanent(a.name, code, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return adapters.Transient(a.name, "Timeout", err)
	}
	return adapters.Transient(a.name, "RequestFailed", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func stringValue(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	raw, ok := meta[key]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

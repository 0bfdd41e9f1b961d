package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
)

// Adapter delivers SMS via Twilio's REST API. Services can pin it over the
// channel default through their provider configuration.
type Adapter struct {
	name   string
	base   adapters.BaseAdapter
	caps   adapters.Capability
	client *http.Client
	cfg    Config
}

type Option func(*Adapter)

// Config captures Twilio credentials and messaging options.
type Config struct {
	AccountSID          string
	AuthToken           string
	From                string
	MessagingServiceSID string
	APIBaseURL          string
	Timeout             time.Duration
}

func WithName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// WithConfig sets adapter configuration.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) {
		a.cfg = cfg
	}
}

// WithClient allows supplying a custom HTTP client.
func WithClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.client = client
		}
	}
}

func New(l logger.Logger, opts ...Option) *Adapter {
	adapter := &Adapter{
		name: "twilio",
		base: adapters.NewBaseAdapter(l),
		caps: adapters.Capability{
			Name:     "twilio",
			Channels: []string{"sms"},
		},
		cfg: Config{
			APIBaseURL: "https://api.twilio.com",
			Timeout:    10 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	if adapter.client == nil {
		adapter.client = &http.Client{Timeout: adapter.cfg.Timeout}
	}
	return adapter
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Capabilities() adapters.Capability { return a.caps }

func (a *Adapter) Send(ctx context.Context, msg adapters.Message) (adapters.Receipt, error) {
	if strings.TrimSpace(a.cfg.AccountSID) == "" || strings.TrimSpace(a.cfg.AuthToken) == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingCredentials", fmt.Errorf("twilio: account SID/auth token required"))
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingDestination", fmt.Errorf("twilio: destination missing"))
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "EmptyBody", fmt.Errorf("twilio: message body required"))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	if sid := strings.TrimSpace(a.cfg.MessagingServiceSID); sid != "" {
		form.Set("MessagingServiceSid", sid)
	} else if from := firstNonEmpty(msg.Sender, a.cfg.From); from != "" {
		form.Set("From", from)
	} else {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingSource", fmt.Errorf("twilio: from or messaging service required"))
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(a.cfg.APIBaseURL, "/"), url.PathEscape(a.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return adapters.Receipt{}, adapters.Permanent(a.name, "BuildRequest", err)
	}
	req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return adapters.Receipt{}, adapters.Transient(a.name, "RequestFailed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal(payload, &out); err != nil || out.SID == "" {
			return adapters.Receipt{}, adapters.Transient(a.name, "MalformedResponse", fmt.Errorf("twilio: parse response: %v", err))
		}
		receipt := adapters.Receipt{ProviderMessageID: out.SID}
		a.base.LogSuccess(a.name, msg, receipt)
		return receipt, nil
	}

	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &apiErr)
	wrapped := fmt.Errorf("twilio: status %d code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
	code := fmt.Sprintf("%d", apiErr.Code)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		err = adapters.Transient(a.name, code, wrapped)
	} else {
		err = adapters.Permanent(a.name, code, wrapped)
	}
	a.base.LogFailure(a.name, msg, err)
	return adapters.Receipt{}, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

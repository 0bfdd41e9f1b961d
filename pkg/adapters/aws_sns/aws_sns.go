package aws_sns

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/google/uuid"
)

// Adapter delivers SMS via Amazon SNS Publish.
type Adapter struct {
	name   string
	base   adapters.BaseAdapter
	caps   adapters.Capability
	cfg    Config
	client *http.Client
}

// Config holds SNS settings.
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	SenderID     string // optional; can be overridden per-message with Message.Sender
	DryRun       bool
	Timeout      time.Duration
}

type Option func(*Adapter)

// WithName overrides adapter name.
func WithName(name string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(name) != "" {
			a.name = name
		}
	}
}

// WithConfig sets SNS configuration.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) {
		a.cfg = cfg
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// New constructs the SNS adapter.
func New(l logger.Logger, opts ...Option) *Adapter {
	adapter := &Adapter{
		name: "aws_sns",
		base: adapters.NewBaseAdapter(l),
		caps: adapters.Capability{
			Name:     "aws_sns",
			Channels: []string{"sms"},
		},
		cfg: Config{
			Region:  "us-east-1",
			Timeout: 10 * time.Second,
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

// Error codes SNS returns for conditions worth retrying.
var transientCodes = map[string]bool{
	"Throttling":         true,
	"Throttled":          true,
	"ServiceUnavailable": true,
	"InternalError":      true,
	"InternalFailure":    true,
	"RequestTimeout":     true,
	"KMSThrottling":      true,
}

func (a *Adapter) Send(ctx context.Context, msg adapters.Message) (adapters.Receipt, error) {
	if a.cfg.DryRun {
		receipt := adapters.Receipt{ProviderMessageID: uuid.NewString()}
		a.base.LogSuccess(a.name, msg, receipt)
		return receipt, nil
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "EmptyBody", fmt.Errorf("aws_sns: message body required"))
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingDestination", fmt.Errorf("aws_sns: destination required"))
	}

	params := url.Values{}
	params.Set("Action", "Publish")
	params.Set("Message", body)
	params.Set("PhoneNumber", to)
	if sender := firstNonEmpty(msg.Sender, a.cfg.SenderID); sender != "" {
		params.Set("MessageAttributes.entry.1.Name", "AWS.SNS.SMS.SenderID")
		params.Set("MessageAttributes.entry.1.Value.DataType", "String")
		params.Set("MessageAttributes.entry.1.Value.StringValue", sender)
	}

	creds := a.loadCredentials()
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return adapters.Receipt{}, adapters.Permanent(a.name, "MissingCredentials", fmt.Errorf("aws_sns: aws credentials required"))
	}
	region := strings.TrimSpace(a.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	req, signedHeaders, err := a.signRequest(ctx, creds, region, params)
	if err != nil {
		return adapters.Receipt{}, adapters.Permanent(a.name, "SignRequest", err)
	}
	for k, v := range signedHeaders {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Network failures and timeouts are worth another attempt.
		return adapters.Receipt{}, adapters.Transient(a.name, "RequestFailed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := parseErrorResponse(payload)
		wrapped := fmt.Errorf("aws_sns: status %d: %s", resp.StatusCode, perr.Message)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || transientCodes[perr.Code] {
			err = adapters.Transient(a.name, perr.Code, wrapped)
		} else {
			err = adapters.Permanent(a.name, perr.Code, wrapped)
		}
		a.base.LogFailure(a.name, msg, err)
		return adapters.Receipt{}, err
	}

	var out publishResponse
	if err := xml.Unmarshal(payload, &out); err != nil || out.MessageID == "" {
		return adapters.Receipt{}, adapters.Transient(a.name, "MalformedResponse", fmt.Errorf("aws_sns: parse publish response: %v", err))
	}
	receipt := adapters.Receipt{ProviderMessageID: out.MessageID}
	a.base.LogSuccess(a.name, msg, receipt)
	return receipt, nil
}

type publishResponse struct {
	XMLName   xml.Name `xml:"PublishResponse"`
	MessageID string   `xml:"PublishResult>MessageId"`
}

type errorResponse struct {
	Code    string
	Message string
}

func parseErrorResponse(payload []byte) errorResponse {
	var parsed struct {
		XMLName xml.Name `xml:"ErrorResponse"`
		Error   struct {
			Code    string `xml:"Code"`
			Message string `xml:"Message"`
		} `xml:"Error"`
	}
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return errorResponse{Code: "Unknown", Message: strings.TrimSpace(string(payload))}
	}
	return errorResponse{Code: parsed.Error.Code, Message: parsed.Error.Message}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

func (a *Adapter) loadCredentials() credentials {
	creds := credentials{
		AccessKey:    strings.TrimSpace(a.cfg.AccessKey),
		SecretKey:    strings.TrimSpace(a.cfg.SecretKey),
		SessionToken: strings.TrimSpace(a.cfg.SessionToken),
	}
	if creds.AccessKey == "" {
		creds.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if creds.SecretKey == "" {
		creds.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if creds.SessionToken == "" {
		creds.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	}
	return creds
}

func (a *Adapter) signRequest(ctx context.Context, creds credentials, region string, params url.Values) (*http.Request, map[string]string, error) {
	endpoint := fmt.Sprintf("https://sns.%s.amazonaws.com/", region)
	bodyStr := params.Encode()
	payloadHash := sha256Hex([]byte(bodyStr))

	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	date := now.Format("20060102")

	canonicalURI := "/"
	canonicalQuery := ""
	canonicalHeaders := fmt.Sprintf("content-type:application/x-www-form-urlencoded; charset=utf-8\nhost:sns.%s.amazonaws.com\nx-amz-date:%s\n", region, amzDate)
	if creds.SessionToken != "" {
		canonicalHeaders += fmt.Sprintf("x-amz-security-token:%s\n", creds.SessionToken)
	}
	signedHeaders := "content-type;host;x-amz-date"
	if creds.SessionToken != "" {
		signedHeaders += ";x-amz-security-token"
	}

	canonicalRequest := strings.Join([]string{
		"POST",
		canonicalURI,
		canonicalQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/sns/aws4_request", date, region)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveKey(creds.SecretKey, date, region, "sns")
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	authHeader := fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		creds.AccessKey, credentialScope, signedHeaders, signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(bodyStr))
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"Content-Type":  "application/x-www-form-urlencoded; charset=utf-8",
		"X-Amz-Date":    amzDate,
		"Authorization": authHeader,
	}
	if creds.SessionToken != "" {
		headers["X-Amz-Security-Token"] = creds.SessionToken
	}
	return req, headers, nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hmacSHA256(key []byte, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func deriveKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	kSigning := hmacSHA256(kService, []byte("aws4_request"))
	return kSigning
}

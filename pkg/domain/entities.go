package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordMeta captures identifiers and audit fields shared across entities.
type RecordMeta struct {
	ID        uuid.UUID `bun:",pk,type:uuid" json:"id"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt time.Time `bun:",soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureID assigns a UUID when the struct is about to be persisted.
func (m *RecordMeta) EnsureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// JSONMap persists arbitrary metadata fields as JSON.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if m == nil {
		return errors.New("JSONMap: Scan on nil pointer")
	}
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", value)
	}
}

// Service is a registered caller of the gateway. Rows live in the
// legacy-compatible services table.
type Service struct {
	bun.BaseModel `bun:"table:services"`
	RecordMeta

	Name        string `bun:",unique,nullzero,notnull"`
	Active      bool   `bun:",notnull,default:true"`
	RateLimit   int    `bun:",nullzero"` // requests per window; 0 uses the gateway default
	SMSSenderID string `bun:",nullzero"`
	// ProviderPins maps a channel to a provider name, overriding the
	// per-channel default (e.g. {"sms": "twilio"}).
	ProviderPins JSONMap `bun:"type:jsonb,nullzero"`
}

// ProviderPin returns the provider pinned for a channel, or "" when the
// service uses the per-channel default.
func (s *Service) ProviderPin(channel string) string {
	if s.ProviderPins == nil {
		return ""
	}
	pin, _ := s.ProviderPins[channel].(string)
	return pin
}

// APIKey is a per-service signing secret. The secret is sealed at rest;
// issuer resolution opens it on demand.
type APIKey struct {
	bun.BaseModel `bun:"table:api_keys"`
	RecordMeta

	ServiceID       uuid.UUID `bun:",nullzero,notnull,type:uuid"`
	Name            string    `bun:",nullzero"`
	SecretEncrypted []byte    `bun:",nullzero,notnull"`
	ExpiresAt       time.Time `bun:",nullzero"`
	Revoked         bool      `bun:",notnull,default:false"`
}

// Usable reports whether the key may still sign tokens.
func (k *APIKey) Usable(now time.Time) bool {
	if k.Revoked {
		return false
	}
	if !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt) {
		return false
	}
	return true
}

// CredentialClass is the category of caller identity.
type CredentialClass string

const (
	CredentialAdmin   CredentialClass = "admin"
	CredentialService CredentialClass = "service"
)

// Credential identifies an authenticated caller. Exactly one class is
// matched per request.
type Credential struct {
	Issuer    string
	Class     CredentialClass
	ServiceID uuid.UUID // zero for admin credentials
	APIKeyID  uuid.UUID // zero for admin credentials
}

// IsAdmin reports whether the credential carries the shared administrative
// secret.
func (c Credential) IsAdmin() bool { return c.Class == CredentialAdmin }

// Notification channels accepted by the gateway.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// KnownChannel reports whether the gateway can dispatch on the channel.
func KnownChannel(channel string) bool {
	switch channel {
	case ChannelSMS, ChannelEmail:
		return true
	default:
		return false
	}
}

// DispatchRequest is a validated, admitted send request. It is owned by a
// single in-flight dispatch and never mutated once admitted.
type DispatchRequest struct {
	Channel         string
	Recipient       string
	TemplateRef     string
	Content         string
	Personalisation map[string]any
	Reference       string
	BillingCode     string
	CallbackURL     string
	Sender          string
}

// Dispatch outcomes.
const (
	OutcomeAccepted      = "accepted"
	OutcomeRejected      = "rejected"
	OutcomeProviderError = "provider_error"
)

// Failure classes attached to provider_error outcomes.
const (
	FailureTransient = "transient"
	FailurePermanent = "permanent"
)

// DispatchResult is produced exactly once per dispatch and handed to the
// caller and the notification store.
type DispatchResult struct {
	Outcome           string
	Provider          string
	ProviderMessageID string
	Attempts          int
	FailureClass      string
	ErrorDetail       string
}

// Accepted reports whether the provider took the message.
func (r DispatchResult) Accepted() bool { return r.Outcome == OutcomeAccepted }

// Lifecycle statuses recorded on notification rows. "sending" means the
// provider accepted the message; delivery confirmation arrives later via
// provider callbacks.
const (
	StatusCreated          = "created"
	StatusSending          = "sending"
	StatusTemporaryFailure = "temporary-failure"
	StatusPermanentFailure = "permanent-failure"
)

// StatusForResult maps a dispatch result onto the stored lifecycle status.
func StatusForResult(result DispatchResult) string {
	switch {
	case result.Accepted():
		return StatusSending
	case result.FailureClass == FailurePermanent:
		return StatusPermanentFailure
	default:
		return StatusTemporaryFailure
	}
}

// NotificationRecord is the audit row written for every request that
// reaches the dispatch stage. Rows live in the legacy notifications table
// so delivery-status callbacks can correlate by provider message id.
type NotificationRecord struct {
	bun.BaseModel `bun:"table:notifications"`
	RecordMeta

	ServiceID         uuid.UUID `bun:",nullzero,type:uuid"`
	Channel           string    `bun:",nullzero,notnull"`
	Recipient         string    `bun:",nullzero,notnull"`
	TemplateRef       string    `bun:",nullzero"`
	Personalisation   JSONMap   `bun:"type:jsonb,nullzero"`
	Reference         string    `bun:",nullzero"`
	BillingCode       string    `bun:",nullzero"`
	CallbackURL       string    `bun:",nullzero"`
	Status            string    `bun:",nullzero,notnull"`
	Provider          string    `bun:",nullzero"`
	ProviderMessageID string    `bun:",nullzero"`
	Attempts          int       `bun:",nullzero"`
	ErrorDetail       string    `bun:",nullzero"`
}

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/google/uuid"
)

// Authentication failures surfaced to callers. Each maps to exactly one
// rejection reason; none is ever retried.
var (
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrMissingIssuer    = errors.New("auth: missing issuer")
	ErrUnknownIssuer    = errors.New("auth: unknown issuer")
)

// DefaultAdminIssuer is the reserved issuer name for the shared
// administrative secret.
const DefaultAdminIssuer = "notify-admin"

// ServiceKey is a decrypted signing secret candidate for an issuer.
type ServiceKey struct {
	APIKeyID  uuid.UUID
	ServiceID uuid.UUID
	Secret    []byte
}

// KeyResolver looks up the active signing keys for a service issuer.
// Expired and revoked keys are never returned.
type KeyResolver interface {
	ResolveIssuer(ctx context.Context, issuer string) ([]ServiceKey, error)
}

// Verifier validates bearer tokens against the administrative secret and
// per-service API keys. It is the sole trust boundary of the gateway: it
// issues no tokens and keeps no state between calls.
type Verifier struct {
	adminSecret []byte
	adminIssuer string
	resolver    KeyResolver
	maxAge      time.Duration
	parser      *jwt.Parser
	now         func() time.Time
}

type Option func(*Verifier)

// WithAdminIssuer overrides the reserved administrative issuer name.
func WithAdminIssuer(issuer string) Option {
	return func(v *Verifier) {
		if strings.TrimSpace(issuer) != "" {
			v.adminIssuer = issuer
		}
	}
}

// WithMaxAge caps the accepted distance between iat and now. Zero disables
// the cap.
func WithMaxAge(d time.Duration) Option {
	return func(v *Verifier) {
		v.maxAge = d
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// New constructs a verifier. The admin secret is injected once at
// construction and never mutated; resolver supplies per-service keys.
func New(adminSecret []byte, resolver KeyResolver, opts ...Option) *Verifier {
	v := &Verifier{
		adminSecret: adminSecret,
		adminIssuer: DefaultAdminIssuer,
		resolver:    resolver,
		maxAge:      60 * time.Second,
		// Claim checks run manually below so each failure maps onto one
		// error; the parser only verifies structure and signature.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify decodes and validates a bearer token, returning the matched
// credential. Signature candidates are tried in order: the administrative
// secret, then the keys resolved for the issuer claim.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Credential, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := v.parser.ParseUnverified(token, claims); err != nil {
		return domain.Credential{}, ErrMalformedToken
	}
	issuer := strings.TrimSpace(claims.Issuer)

	if len(v.adminSecret) > 0 {
		ok, err := v.signatureMatches(token, v.adminSecret)
		if err != nil {
			return domain.Credential{}, err
		}
		if ok {
			if issuer == "" {
				return domain.Credential{}, ErrMissingIssuer
			}
			if err := v.checkTimes(claims); err != nil {
				return domain.Credential{}, err
			}
			return domain.Credential{Issuer: issuer, Class: domain.CredentialAdmin}, nil
		}
	}

	if issuer == "" {
		return domain.Credential{}, ErrMissingIssuer
	}
	if v.resolver == nil {
		return domain.Credential{}, ErrUnknownIssuer
	}
	keys, err := v.resolver.ResolveIssuer(ctx, issuer)
	if err != nil {
		return domain.Credential{}, err
	}
	if len(keys) == 0 {
		return domain.Credential{}, ErrUnknownIssuer
	}
	for _, key := range keys {
		ok, err := v.signatureMatches(token, key.Secret)
		if err != nil {
			return domain.Credential{}, err
		}
		if !ok {
			continue
		}
		if err := v.checkTimes(claims); err != nil {
			return domain.Credential{}, err
		}
		return domain.Credential{
			Issuer:    issuer,
			Class:     domain.CredentialService,
			ServiceID: key.ServiceID,
			APIKeyID:  key.APIKeyID,
		}, nil
	}
	return domain.Credential{}, ErrInvalidSignature
}

func (v *Verifier) signatureMatches(token string, secret []byte) (bool, error) {
	_, err := v.parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return false, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return false, ErrMalformedToken
	default:
		return false, ErrMalformedToken
	}
}

// checkTimes enforces exp with zero grace, plus the configured iat cap so
// long-lived tokens are rejected even when exp lies far in the future.
func (v *Verifier) checkTimes(claims *jwt.RegisteredClaims) error {
	now := v.now()
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	if v.maxAge > 0 && claims.IssuedAt != nil && now.Sub(claims.IssuedAt.Time) > v.maxAge {
		return ErrTokenExpired
	}
	return nil
}

// IsAuthError reports whether err belongs to the authentication taxonomy.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrMissingIssuer) ||
		errors.Is(err, ErrUnknownIssuer)
}

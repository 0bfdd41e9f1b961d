package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/goliatone/go-notify-gateway/pkg/secrets"
)

var (
	errNameRequired    = errors.New("storage: service name is required")
	errKeyringRequired = errors.New("storage: keyring is required")

	// ErrServiceExists is returned when provisioning a name already taken.
	ErrServiceExists = errors.New("storage: service already exists")
)

// ProvisionInput describes a service to register.
type ProvisionInput struct {
	Name         string
	RateLimit    int
	SMSSenderID  string
	ProviderPins map[string]string
	KeyTTL       time.Duration // zero means the key never expires
}

// ProvisionResult carries the created records plus the plaintext key
// secret. The secret is shown once; only its sealed form is stored.
type ProvisionResult struct {
	Service *domain.Service
	Key     *domain.APIKey
	Secret  string
}

// Provisioner registers caller services. The service record and its
// first signing key are written in a single transaction so a service
// never exists without a usable credential.
type Provisioner struct {
	providers Providers
	keyring   *secrets.Keyring
	now       func() time.Time
}

// NewProvisioner builds a provisioner over the given repositories.
func NewProvisioner(providers Providers, keyring *secrets.Keyring) (*Provisioner, error) {
	if keyring == nil {
		return nil, errKeyringRequired
	}
	return &Provisioner{
		providers: providers,
		keyring:   keyring,
		now:       time.Now,
	}, nil
}

// CreateService registers a service and mints its first API key.
func (p *Provisioner) CreateService(ctx context.Context, input ProvisionInput) (ProvisionResult, error) {
	if input.Name == "" {
		return ProvisionResult{}, errNameRequired
	}
	if _, err := p.providers.Services.GetByName(ctx, input.Name); err == nil {
		return ProvisionResult{}, ErrServiceExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return ProvisionResult{}, fmt.Errorf("storage: lookup %q: %w", input.Name, err)
	}

	secret, err := newKeySecret()
	if err != nil {
		return ProvisionResult{}, err
	}
	sealed, err := p.keyring.Seal([]byte(secret))
	if err != nil {
		return ProvisionResult{}, err
	}

	svc := &domain.Service{
		Name:        input.Name,
		Active:      true,
		RateLimit:   input.RateLimit,
		SMSSenderID: input.SMSSenderID,
	}
	if len(input.ProviderPins) > 0 {
		svc.ProviderPins = domain.JSONMap{}
		for channel, provider := range input.ProviderPins {
			svc.ProviderPins[channel] = provider
		}
	}

	key := &domain.APIKey{
		Name:            "default",
		SecretEncrypted: sealed,
	}
	if input.KeyTTL > 0 {
		key.ExpiresAt = p.now().UTC().Add(input.KeyTTL)
	}

	err = p.providers.Transaction.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := p.providers.Services.Create(ctx, svc); err != nil {
			return fmt.Errorf("storage: create service: %w", err)
		}
		key.ServiceID = svc.ID
		if err := p.providers.APIKeys.Create(ctx, key); err != nil {
			return fmt.Errorf("storage: create api key: %w", err)
		}
		return nil
	})
	if err != nil {
		return ProvisionResult{}, err
	}
	return ProvisionResult{Service: svc, Key: key, Secret: secret}, nil
}

func newKeySecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("storage: key secret: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

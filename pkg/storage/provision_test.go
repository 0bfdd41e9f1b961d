package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-notify-gateway/pkg/auth"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/goliatone/go-notify-gateway/pkg/secrets"
)

type countingTxManager struct {
	inner store.TransactionManager
	calls int
}

func (c *countingTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	return c.inner.WithinTransaction(ctx, fn)
}

func testKeyring(t *testing.T) *secrets.Keyring {
	t.Helper()
	keyring, err := secrets.NewKeyring(bytes.Repeat([]byte{0x42}, secrets.KeySize))
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	return keyring
}

func TestProvisionCreatesServiceAndKey(t *testing.T) {
	providers := NewMemoryProviders()
	tx := &countingTxManager{inner: providers.Transaction}
	providers.Transaction = tx
	keyring := testKeyring(t)

	provisioner, err := NewProvisioner(providers, keyring)
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}

	result, err := provisioner.CreateService(context.Background(), ProvisionInput{
		Name:         "checkout",
		RateLimit:    50,
		ProviderPins: map[string]string{"sms": "twilio"},
		KeyTTL:       24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if tx.calls != 1 {
		t.Fatalf("expected one transaction, got %d", tx.calls)
	}

	svc, err := providers.Services.GetByName(context.Background(), "checkout")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if !svc.Active || svc.RateLimit != 50 {
		t.Fatalf("unexpected service record: %+v", svc)
	}
	if svc.ProviderPin("sms") != "twilio" {
		t.Fatalf("expected sms pin, got %q", svc.ProviderPin("sms"))
	}

	keys, err := providers.APIKeys.ListByService(context.Background(), svc.ID)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %d", len(keys))
	}
	if !keys[0].Usable(time.Now()) {
		t.Fatal("fresh key must be usable")
	}

	opened, err := keyring.Open(keys[0].SecretEncrypted)
	if err != nil {
		t.Fatalf("open sealed secret: %v", err)
	}
	if string(opened) != result.Secret {
		t.Fatal("stored secret does not match the returned one")
	}
}

func TestProvisionRejectsDuplicateName(t *testing.T) {
	providers := NewMemoryProviders()
	provisioner, err := NewProvisioner(providers, testKeyring(t))
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}

	if _, err := provisioner.CreateService(context.Background(), ProvisionInput{Name: "checkout"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err = provisioner.CreateService(context.Background(), ProvisionInput{Name: "checkout"})
	if !errors.Is(err, ErrServiceExists) {
		t.Fatalf("expected ErrServiceExists, got %v", err)
	}
}

func TestProvisionRequiresKeyring(t *testing.T) {
	if _, err := NewProvisioner(NewMemoryProviders(), nil); err == nil {
		t.Fatal("expected keyring requirement error")
	}
}

// The minted secret must sign tokens the verifier accepts for the new
// service, straight out of provisioning.
func TestProvisionedSecretSignsTokens(t *testing.T) {
	providers := NewMemoryProviders()
	keyring := testKeyring(t)
	provisioner, err := NewProvisioner(providers, keyring)
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}

	result, err := provisioner.CreateService(context.Background(), ProvisionInput{Name: "checkout"})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:   result.Service.ID.String(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}).SignedString([]byte(result.Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	verifier := auth.New([]byte("admin-secret"), auth.NewStoreKeyResolver(providers.APIKeys, keyring))
	cred, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if cred.Class != domain.CredentialService {
		t.Fatalf("expected service credential, got %s", cred.Class)
	}
	if cred.ServiceID != result.Service.ID {
		t.Fatalf("credential bound to wrong service: %s", cred.ServiceID)
	}
}

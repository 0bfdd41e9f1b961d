package auth

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-notify-gateway/internal/storage/memory"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/secrets"
	"github.com/google/uuid"
)

func newResolverFixture(t *testing.T) (*StoreKeyResolver, *memory.APIKeyRepository, *secrets.Keyring) {
	t.Helper()
	keys := memory.NewAPIKeyRepository()
	keyring, err := secrets.NewKeyring(bytes.Repeat([]byte{0x07}, secrets.KeySize))
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	return NewStoreKeyResolver(keys, keyring), keys, keyring
}

func sealSecret(t *testing.T, keyring *secrets.Keyring, secret string) []byte {
	t.Helper()
	sealed, err := keyring.Seal([]byte(secret))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return sealed
}

func TestResolveIssuerReturnsOpenedSecrets(t *testing.T) {
	resolver, repo, keyring := newResolverFixture(t)
	serviceID := uuid.New()

	key := &domain.APIKey{
		ServiceID:       serviceID,
		Name:            "primary",
		SecretEncrypted: sealSecret(t, keyring, "plain-secret"),
	}
	if err := repo.Create(context.Background(), key); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := resolver.ResolveIssuer(context.Background(), serviceID.String())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 key, got %d", len(out))
	}
	if string(out[0].Secret) != "plain-secret" {
		t.Fatalf("expected opened secret, got %q", out[0].Secret)
	}
	if out[0].APIKeyID != key.ID || out[0].ServiceID != serviceID {
		t.Fatalf("identity mismatch: %+v", out[0])
	}
}

func TestResolveIssuerSkipsUnusableKeys(t *testing.T) {
	resolver, repo, keyring := newResolverFixture(t)
	serviceID := uuid.New()
	ctx := context.Background()

	fixtures := []*domain.APIKey{
		{ServiceID: serviceID, Name: "revoked", Revoked: true, SecretEncrypted: sealSecret(t, keyring, "a")},
		{ServiceID: serviceID, Name: "expired", ExpiresAt: time.Now().Add(-time.Hour), SecretEncrypted: sealSecret(t, keyring, "b")},
		{ServiceID: serviceID, Name: "corrupt", SecretEncrypted: []byte("not-a-sealed-box")},
		{ServiceID: serviceID, Name: "good", SecretEncrypted: sealSecret(t, keyring, "c")},
	}
	for _, key := range fixtures {
		if err := repo.Create(ctx, key); err != nil {
			t.Fatalf("create %s: %v", key.Name, err)
		}
	}

	out, err := resolver.ResolveIssuer(ctx, serviceID.String())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected only the good key, got %d", len(out))
	}
	if string(out[0].Secret) != "c" {
		t.Fatalf("expected secret c, got %q", out[0].Secret)
	}
}

func TestResolveIssuerNonUUID(t *testing.T) {
	resolver, _, _ := newResolverFixture(t)

	out, err := resolver.ResolveIssuer(context.Background(), "not-a-uuid")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil for non-uuid issuer, got %v", out)
	}
}

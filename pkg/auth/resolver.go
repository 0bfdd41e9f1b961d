package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/google/uuid"
)

// SecretOpener decrypts API-key secrets sealed at rest.
type SecretOpener interface {
	Open(sealed []byte) ([]byte, error)
}

// StoreKeyResolver resolves service issuers against the API-key
// repository. Issuers are service UUIDs; anything else is unknown.
type StoreKeyResolver struct {
	keys    store.APIKeyRepository
	keyring SecretOpener
	now     func() time.Time
}

// NewStoreKeyResolver builds a resolver over the given repository and
// keyring.
func NewStoreKeyResolver(keys store.APIKeyRepository, keyring SecretOpener) *StoreKeyResolver {
	return &StoreKeyResolver{keys: keys, keyring: keyring, now: time.Now}
}

// ResolveIssuer returns the usable signing keys for the issuer, decrypted.
// A non-UUID issuer or a service with no usable keys resolves to nothing.
func (r *StoreKeyResolver) ResolveIssuer(ctx context.Context, issuer string) ([]ServiceKey, error) {
	serviceID, err := uuid.Parse(issuer)
	if err != nil {
		return nil, nil
	}
	records, err := r.keys.ListByService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("auth: resolve issuer %s: %w", issuer, err)
	}

	var out []ServiceKey
	for i := range records {
		key := &records[i]
		if !key.Usable(r.now()) {
			continue
		}
		secret := key.SecretEncrypted
		if r.keyring != nil {
			secret, err = r.keyring.Open(key.SecretEncrypted)
			if err != nil {
				// A key that cannot be opened never matches; skip it
				// rather than failing the whole lookup.
				continue
			}
		}
		out = append(out, ServiceKey{
			APIKeyID:  key.ID,
			ServiceID: key.ServiceID,
			Secret:    secret,
		})
	}
	return out, nil
}

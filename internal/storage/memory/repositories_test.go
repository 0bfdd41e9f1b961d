package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
)

func TestServiceRepositoryMemory(t *testing.T) {
	repo := NewServiceRepository()
	ctx := context.Background()

	svc := &domain.Service{
		Name:      "billing",
		Active:    true,
		RateLimit: 10,
	}
	if err := repo.Create(ctx, svc); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByName(ctx, "billing")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if got.ID != svc.ID {
		t.Fatalf("expected id %s, got %s", svc.ID, got.ID)
	}

	if _, err := repo.GetByName(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.SoftDelete(ctx, svc.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, svc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAPIKeyRepositoryMemoryListByService(t *testing.T) {
	services := NewServiceRepository()
	keys := NewAPIKeyRepository()
	ctx := context.Background()

	first := &domain.Service{Name: "billing", Active: true}
	second := &domain.Service{Name: "alerts", Active: true}
	if err := services.Create(ctx, first); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := services.Create(ctx, second); err != nil {
		t.Fatalf("create service: %v", err)
	}

	for _, key := range []*domain.APIKey{
		{ServiceID: first.ID, Name: "primary"},
		{ServiceID: first.ID, Name: "rotation"},
		{ServiceID: second.ID, Name: "primary"},
	} {
		if err := keys.Create(ctx, key); err != nil {
			t.Fatalf("create key: %v", err)
		}
	}

	list, err := keys.ListByService(ctx, first.ID)
	if err != nil {
		t.Fatalf("list by service: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(list))
	}
	for _, key := range list {
		if key.ServiceID != first.ID {
			t.Fatalf("key %s belongs to %s", key.Name, key.ServiceID)
		}
	}
}

func TestNotificationRepositoryMemory(t *testing.T) {
	repo := NewNotificationRepository()
	ctx := context.Background()

	svc := &domain.Service{Name: "billing", Active: true}
	svc.EnsureID()

	record := &domain.NotificationRecord{
		ServiceID:         svc.ID,
		Channel:           domain.ChannelSMS,
		Recipient:         "+15550001111",
		Status:            "delivered",
		Provider:          "aws_sns",
		ProviderMessageID: "sns-abc-123",
		Attempts:          1,
	}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be populated")
	}

	got, err := repo.GetByProviderMessageID(ctx, "sns-abc-123")
	if err != nil {
		t.Fatalf("get by provider message id: %v", err)
	}
	if got.ID != record.ID {
		t.Fatalf("expected id %s, got %s", record.ID, got.ID)
	}

	if _, err := repo.GetByProviderMessageID(ctx, "unknown"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	other := &domain.NotificationRecord{
		ServiceID: svc.ID,
		Channel:   domain.ChannelEmail,
		Recipient: "ops@example.com",
		Status:    "permanent-failure",
	}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := repo.ListByService(ctx, svc.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("list by service: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected total 2, got %d", result.Total)
	}
}

func TestNotificationRepositoryMemoryListWindow(t *testing.T) {
	repo := NewNotificationRepository()
	ctx := context.Background()

	old := &domain.NotificationRecord{Channel: domain.ChannelSMS, Recipient: "a", Status: "delivered"}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := repo.Update(ctx, old); err != nil {
		t.Fatalf("update: %v", err)
	}

	recent := &domain.NotificationRecord{Channel: domain.ChannelSMS, Recipient: "b", Status: "delivered"}
	if err := repo.Create(ctx, recent); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := repo.List(ctx, store.ListOptions{Since: time.Now().UTC().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected total 1, got %d", result.Total)
	}
}

package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
	"github.com/socialcredit/socialcredit-backend/internal/ledger/memory"
)

func newTestStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	owners := memory.New()
	if _, err := owners.CreateOwner(context.Background(), &ledger.Owner{UserID: "42", Username: "alice"}); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	return New(owners, "pepper", bcrypt.MinCost), owners
}

func TestCredentialLifecycle(t *testing.T) {
	store, owners := newTestStore(t)
	ctx := context.Background()

	if store.Verify(ctx, "42", "scp_anything") {
		t.Fatalf("verify must fail before any key is generated")
	}
	status, err := store.Status(ctx, "42")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.HasAPIKey || status.GeneratedAt != nil {
		t.Fatalf("expected no key, got %+v", status)
	}

	first, err := store.Generate(ctx, "42")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(first.APIKey, keyPrefix) {
		t.Fatalf("unexpected key format %q", first.APIKey)
	}
	if !store.Verify(ctx, "42", first.APIKey) {
		t.Fatalf("expected fresh key to verify")
	}
	if store.Verify(ctx, "43", first.APIKey) {
		t.Fatalf("key must not verify for another owner")
	}

	owner, _ := owners.FindOwner(ctx, "42")
	if strings.Contains(owner.Credential.Hash, first.APIKey) {
		t.Fatalf("plaintext key must not be stored")
	}

	second, err := store.Generate(ctx, "42")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if store.Verify(ctx, "42", first.APIKey) {
		t.Fatalf("previous key must stop verifying after regeneration")
	}
	if !store.Verify(ctx, "42", second.APIKey) {
		t.Fatalf("latest key must verify")
	}

	status, err = store.Status(ctx, "42")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.HasAPIKey || status.GeneratedAt == nil || !status.GeneratedAt.Equal(second.GeneratedAt) {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := store.Revoke(ctx, "42"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if store.Verify(ctx, "42", second.APIKey) {
		t.Fatalf("revoked key must not verify")
	}
	if err := store.Revoke(ctx, "42"); err != nil {
		t.Fatalf("second Revoke should be idempotent: %v", err)
	}
}

func TestVerifyRejectsMalformedKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	issued, err := store.Generate(ctx, "42")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, candidate := range []string{"", "scp_", "scp_!!!", strings.TrimPrefix(issued.APIKey, keyPrefix), issued.APIKey + "x"} {
		if store.Verify(ctx, "42", candidate) {
			t.Fatalf("expected %q to be rejected", candidate)
		}
	}
}

func TestSaltChangesDigest(t *testing.T) {
	owners := memory.New()
	ctx := context.Background()
	if _, err := owners.CreateOwner(ctx, &ledger.Owner{UserID: "1"}); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	a := New(owners, "salt-a", bcrypt.MinCost)
	b := New(owners, "salt-b", bcrypt.MinCost)

	issued, err := a.Generate(ctx, "1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if b.Verify(ctx, "1", issued.APIKey) {
		t.Fatalf("a different deployment salt must not verify the key")
	}
}

func TestUnknownOwner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Generate(ctx, "ghost"); !errors.Is(err, ledger.ErrOwnerNotFound) {
		t.Fatalf("expected owner not found, got %v", err)
	}
	if _, err := store.Status(ctx, "ghost"); !errors.Is(err, ledger.ErrOwnerNotFound) {
		t.Fatalf("expected owner not found, got %v", err)
	}
}

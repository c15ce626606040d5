package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

type stubOwners struct {
	owners map[string]*ledger.Owner
	err    error
}

func (s *stubOwners) FindOwner(_ context.Context, id string) (*ledger.Owner, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.owners[id], nil
}

func (s *stubOwners) Ensure(_ context.Context, id string) (*ledger.Owner, error) {
	if o, ok := s.owners[id]; ok {
		return o, nil
	}
	o := &ledger.Owner{UserID: id}
	s.owners[id] = o
	return o, nil
}

type stubKeys map[string]string

func (k stubKeys) Verify(_ context.Context, ownerID, candidate string) bool {
	key, ok := k[ownerID]
	return ok && key == candidate
}

func newTestGate() (*Gate, *Manager, *stubOwners) {
	mgr := NewManager("secret")
	owners := &stubOwners{owners: map[string]*ledger.Owner{"1": {UserID: "1"}}}
	keys := stubKeys{"1": "scp_one", "2": "scp_two"}
	return NewGate(mgr, owners, owners, keys), mgr, owners
}

func TestSessionActor(t *testing.T) {
	gate, mgr, _ := newTestGate()
	ctx := context.Background()

	token, _ := mgr.IssueToken("1", time.Minute)
	actor, err := gate.SessionActor(ctx, token)
	if err != nil || actor != "1" {
		t.Fatalf("expected actor 1, got %q err=%v", actor, err)
	}

	unknown, _ := mgr.IssueToken("99", time.Minute)
	if _, err := gate.SessionActor(ctx, unknown); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown owner, got %v", err)
	}
	if _, err := gate.SessionActor(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for empty token, got %v", err)
	}
	if _, err := gate.SessionActor(ctx, "not-a-jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
}

func TestPluginActor(t *testing.T) {
	gate, _, owners := newTestGate()
	ctx := context.Background()

	if _, err := gate.PluginActor(ctx, "1", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without key, got %v", err)
	}
	if _, err := gate.PluginActor(ctx, "", "scp_one"); !errors.Is(err, ErrMissingActor) {
		t.Fatalf("expected missing actor, got %v", err)
	}
	if _, err := gate.PluginActor(ctx, "1", "scp_two"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for another user's key, got %v", err)
	}
	actor, err := gate.PluginActor(ctx, "1", "scp_one")
	if err != nil || actor != "1" {
		t.Fatalf("expected actor 1, got %q err=%v", actor, err)
	}

	// first plugin use creates the owner before the key check
	if _, err := gate.PluginActor(ctx, "2", "scp_two"); err != nil {
		t.Fatalf("PluginActor: %v", err)
	}
	if _, ok := owners.owners["2"]; !ok {
		t.Fatalf("expected owner 2 to be ensured")
	}
}

func TestRequireActor(t *testing.T) {
	if err := RequireActor("1", "1"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := RequireActor("1", "2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := RequireActor("1", " 1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for padded id, got %v", err)
	}
	if err := RequireActor("", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for empty identity, got %v", err)
	}
}

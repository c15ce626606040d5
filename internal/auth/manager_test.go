package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStateLifecycle(t *testing.T) {
	mgr := NewManager("secret")
	state, expires, err := mgr.CreateState()
	if err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	if expires.Before(time.Now()) {
		t.Fatalf("expires in past")
	}
	if err := mgr.ConsumeState(state); err != nil {
		t.Fatalf("ConsumeState: %v", err)
	}
	if err := mgr.ConsumeState(state); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected error after state consumed, got %v", err)
	}
}

func TestSweepExpiredStates(t *testing.T) {
	mgr := NewManager("secret")
	mgr.ttl = -time.Second
	stale, _, _ := mgr.CreateState()
	mgr.ttl = time.Minute
	fresh, _, _ := mgr.CreateState()

	if n := mgr.SweepExpired(); n != 1 {
		t.Fatalf("expected one expired state, got %d", n)
	}
	if err := mgr.ConsumeState(stale); err == nil {
		t.Fatalf("expected stale state to be gone")
	}
	if err := mgr.ConsumeState(fresh); err != nil {
		t.Fatalf("fresh state should survive sweep: %v", err)
	}
}

func TestTokenValidation(t *testing.T) {
	mgr := NewManager("secret")
	token, err := mgr.IssueToken("80351110224678912", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	userID, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != "80351110224678912" {
		t.Fatalf("unexpected user id %s", userID)
	}
}

func TestTokenRejectsTamperingAndForeignSecret(t *testing.T) {
	mgr := NewManager("secret")
	token, err := mgr.IssueToken("1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	other := NewManager("other-secret")
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := mgr.ValidateToken(tampered); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
	if _, err := mgr.ValidateToken("garbage"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}
}

func TestExpiredToken(t *testing.T) {
	mgr := NewManager("secret")
	token, err := mgr.IssueToken("1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Fatalf("expected expiration error")
	}
}

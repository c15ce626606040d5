package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

var (
	ErrUnauthorized = errors.New("authentication required")
	ErrMissingActor = errors.New("missing acting user header")
	ErrForbidden    = errors.New("acting user does not match credentials")
)

// TokenValidator verifies session tokens.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// OwnerFinder reads owner records.
type OwnerFinder interface {
	FindOwner(ctx context.Context, userID string) (*ledger.Owner, error)
}

// KeyVerifier checks a plugin key against an owner.
type KeyVerifier interface {
	Verify(ctx context.Context, ownerID, candidate string) bool
}

// Gate turns request credentials into a confirmed actor id.
type Gate struct {
	tokens   TokenValidator
	owners   OwnerFinder
	resolver ledger.Resolver
	keys     KeyVerifier
}

func NewGate(tokens TokenValidator, owners OwnerFinder, resolver ledger.Resolver, keys KeyVerifier) *Gate {
	return &Gate{tokens: tokens, owners: owners, resolver: resolver, keys: keys}
}

// SessionActor confirms a session token. The owner must already exist;
// sessions never create owners.
func (g *Gate) SessionActor(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	userID, err := g.tokens.ValidateToken(token)
	if err != nil {
		return "", ErrUnauthorized
	}
	owner, err := g.owners.FindOwner(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load session owner: %w", err)
	}
	if owner == nil {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// PluginActor confirms an asserted actor with its plugin key. The actor is
// created on first use so a brand new plugin user can be verified.
func (g *Gate) PluginActor(ctx context.Context, actorHeader, key string) (string, error) {
	actor, key, err := PluginHeaders(actorHeader, key)
	if err != nil {
		return "", err
	}
	if _, err := g.resolver.Ensure(ctx, actor); err != nil {
		return "", fmt.Errorf("resolve plugin actor: %w", err)
	}
	if !g.keys.Verify(ctx, actor, key) {
		return "", ErrForbidden
	}
	return actor, nil
}

// PluginHeaders checks that both plugin headers are present without touching
// storage. The key is checked first.
func PluginHeaders(actorHeader, key string) (string, string, error) {
	key = strings.TrimSpace(key)
	actor := strings.TrimSpace(actorHeader)
	if key == "" {
		return "", "", ErrUnauthorized
	}
	if actor == "" {
		return "", "", ErrMissingActor
	}
	return actor, key, nil
}

// RequireActor rejects requests whose asserted actor differs from the
// confirmed one. The comparison is exact; padded ids do not match.
func RequireActor(confirmed, asserted string) error {
	if confirmed == "" || confirmed != asserted {
		return ErrForbidden
	}
	return nil
}

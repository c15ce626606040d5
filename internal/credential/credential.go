// Package credential manages the per-user plugin API key.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

const (
	keyPrefix    = "scp_"
	keyRandBytes = 32
)

// Status describes whether an owner has an active key, without exposing it.
type Status struct {
	HasAPIKey   bool       `json:"has_api_key"`
	GeneratedAt *time.Time `json:"generated_at"`
}

// Issued is the one-time response to key generation.
type Issued struct {
	APIKey      string    `json:"api_key"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Store issues and verifies plugin keys stored on owner documents.
type Store struct {
	owners ledger.Store
	salt   string
	cost   int
	now    func() time.Time
}

// New builds a credential store. salt is mixed into every key before hashing.
func New(owners ledger.Store, salt string, cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{
		owners: owners,
		salt:   salt,
		cost:   cost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Generate replaces any previous key for the owner and returns the new plaintext.
func (s *Store) Generate(ctx context.Context, ownerID string) (Issued, error) {
	token, err := newToken()
	if err != nil {
		return Issued{}, fmt.Errorf("generate key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.digest(token)), s.cost)
	if err != nil {
		return Issued{}, fmt.Errorf("hash key: %w", err)
	}
	generated := s.now()
	_, err = ledger.MutateOwner(ctx, s.owners, ownerID, func(o *ledger.Owner) error {
		o.Credential = &ledger.Credential{Hash: string(hash), GeneratedAt: generated}
		return nil
	})
	if err != nil {
		return Issued{}, err
	}
	log.WithField("user_id", ownerID).Info("plugin api key generated")
	return Issued{APIKey: token, GeneratedAt: generated}, nil
}

// Verify reports whether candidate is the owner's current key. It never
// returns an error: lookups that fail are treated as a mismatch.
func (s *Store) Verify(ctx context.Context, ownerID, candidate string) bool {
	if !wellFormed(candidate) {
		return false
	}
	owner, err := s.owners.FindOwner(ctx, ownerID)
	if err != nil {
		log.WithError(err).WithField("user_id", ownerID).Warn("credential lookup failed")
		return false
	}
	if owner == nil || owner.Credential == nil || owner.Credential.Hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(owner.Credential.Hash), []byte(s.digest(candidate))) == nil
}

// Revoke clears the owner's key. Revoking when none exists succeeds.
func (s *Store) Revoke(ctx context.Context, ownerID string) error {
	_, err := ledger.MutateOwner(ctx, s.owners, ownerID, func(o *ledger.Owner) error {
		if o.Credential == nil {
			return ledger.ErrNoChange
		}
		o.Credential = nil
		return nil
	})
	if err != nil {
		return err
	}
	log.WithField("user_id", ownerID).Info("plugin api key revoked")
	return nil
}

// Status reports key presence and generation time.
func (s *Store) Status(ctx context.Context, ownerID string) (Status, error) {
	owner, err := s.owners.FindOwner(ctx, ownerID)
	if err != nil {
		return Status{}, err
	}
	if owner == nil {
		return Status{}, ledger.ErrOwnerNotFound
	}
	if owner.Credential == nil || owner.Credential.Hash == "" {
		return Status{}, nil
	}
	at := owner.Credential.GeneratedAt
	return Status{HasAPIKey: true, GeneratedAt: &at}, nil
}

// digest folds the deployment salt into the key. The hex sha256 keeps the
// bcrypt input under its 72 byte limit.
func (s *Store) digest(token string) string {
	sum := sha256.Sum256([]byte(token + s.salt))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	var buf [keyRandBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

var errMalformed = errors.New("malformed key")

func parseToken(token string) ([]byte, error) {
	if !strings.HasPrefix(token, keyPrefix) {
		return nil, errMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, keyPrefix))
	if err != nil || len(raw) != keyRandBytes {
		return nil, errMalformed
	}
	return raw, nil
}

func wellFormed(token string) bool {
	_, err := parseToken(token)
	return err == nil
}

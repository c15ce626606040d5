// Package identity maps external user ids onto ledger owners.
package identity

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/socialcredit/socialcredit-backend/internal/discord"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

// ProfileSource fetches a user's public profile.
type ProfileSource interface {
	FetchUser(ctx context.Context, userID string) (*discord.User, error)
}

// Profile is the data the login flow knows about the signed-in user.
type Profile struct {
	UserID    string
	Username  string
	AvatarURL string
}

// Resolver implements ledger.Resolver.
type Resolver struct {
	store    ledger.Store
	profiles ProfileSource
}

// NewResolver builds a resolver. profiles may be nil.
func NewResolver(store ledger.Store, profiles ProfileSource) *Resolver {
	return &Resolver{store: store, profiles: profiles}
}

// Ensure returns the owner for userID, creating a record on first contact.
// Only storage failures are returned as errors.
func (r *Resolver) Ensure(ctx context.Context, userID string) (*ledger.Owner, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledger.ErrInvalidUserID
	}
	owner, err := r.store.FindOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find owner %s: %w", userID, err)
	}
	if owner != nil {
		return owner, nil
	}

	candidate := r.placeholder(ctx, userID)
	created, err := r.store.CreateOwner(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("create owner %s: %w", userID, err)
	}
	if created {
		log.WithFields(log.Fields{"user_id": userID, "username": candidate.Username}).Info("owner created")
		return candidate, nil
	}

	// lost a concurrent first contact; keep whatever the winner wrote
	owner, err = r.store.FindOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find owner %s: %w", userID, err)
	}
	if owner == nil {
		return nil, fmt.Errorf("owner %s vanished after insert conflict", userID)
	}
	return owner, nil
}

// Refresh creates or updates the owner with profile data from login.
func (r *Resolver) Refresh(ctx context.Context, p Profile) (*ledger.Owner, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, ledger.ErrInvalidUserID
	}
	created, err := r.store.CreateOwner(ctx, &ledger.Owner{
		UserID:            p.UserID,
		Username:          p.Username,
		ProfilePictureURL: p.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create owner %s: %w", p.UserID, err)
	}
	if created {
		log.WithField("user_id", p.UserID).Info("owner created from login")
		return r.store.FindOwner(ctx, p.UserID)
	}
	return ledger.MutateOwner(ctx, r.store, p.UserID, func(o *ledger.Owner) error {
		if o.Username == p.Username && o.ProfilePictureURL == p.AvatarURL {
			return ledger.ErrNoChange
		}
		o.Username = p.Username
		o.ProfilePictureURL = p.AvatarURL
		return nil
	})
}

func (r *Resolver) placeholder(ctx context.Context, userID string) *ledger.Owner {
	owner := &ledger.Owner{UserID: userID, Username: "user_" + userID}
	if r.profiles == nil {
		return owner
	}
	profile, err := r.profiles.FetchUser(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("profile enrichment skipped")
		return owner
	}
	if name := profile.DisplayName(); name != "" {
		owner.Username = name
	}
	owner.ProfilePictureURL = profile.AvatarURL
	return owner
}

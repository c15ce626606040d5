package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoChange may be returned by a MutateOwner callback to skip the write.
var ErrNoChange = errors.New("no change")

const maxMutateAttempts = 10

// MutateOwner loads the owner, applies fn and writes the whole document back.
// A concurrent write to the same owner causes the full read-modify-write to
// be replayed against the fresh document.
func MutateOwner(ctx context.Context, store Store, userID string, fn func(*Owner) error) (*Owner, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		owner, err := store.FindOwner(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load owner %s: %w", userID, err)
		}
		if owner == nil {
			return nil, ErrOwnerNotFound
		}
		if err := fn(owner); err != nil {
			if errors.Is(err, ErrNoChange) {
				return owner, nil
			}
			return nil, err
		}
		owner.UpdatedAt = time.Now().UTC()
		err = store.UpdateOwner(ctx, owner)
		if err == nil {
			return owner, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("persist owner %s: %w", userID, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("persist owner %s: %w", userID, ErrVersionConflict)
}

package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MaxSnippetRunes bounds the message snippet kept with an entry.
const MaxSnippetRunes = 200

var ErrInvalidUserID = errors.New("user id required")

// Resolver returns the owner for a user id, creating it on first contact.
type Resolver interface {
	Ensure(ctx context.Context, userID string) (*Owner, error)
}

// MembershipEnqueuer receives servers observed in rating context that the
// actor is not yet known to belong to.
type MembershipEnqueuer interface {
	Enqueue(ownerID, serverID string)
}

// Rating is a single give_credit request from a confirmed actor.
type Rating struct {
	ActorID  string
	TargetID string
	Delta    float64
	Reason   string
	Context  *EntryContext
}

// Engine applies credit operations to owner documents.
type Engine struct {
	store    Store
	resolver Resolver
	members  MembershipEnqueuer

	now   func() time.Time
	newID func() string
}

// NewEngine builds an engine. members may be nil to disable enrichment.
func NewEngine(store Store, resolver Resolver, members MembershipEnqueuer) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		members:  members,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

// GiveCredit appends delta to the actor's history for the target and returns
// the full relation.
func (e *Engine) GiveCredit(ctx context.Context, r Rating) (*Relation, error) {
	actor, target, err := normalizePair(r.ActorID, r.TargetID)
	if err != nil {
		return nil, err
	}
	if actor == target {
		return nil, ErrSelfRating
	}
	if math.IsNaN(r.Delta) || math.IsInf(r.Delta, 0) {
		return nil, ErrInvalidDelta
	}
	if _, err := e.resolver.Ensure(ctx, actor); err != nil {
		return nil, err
	}
	if _, err := e.resolver.Ensure(ctx, target); err != nil {
		return nil, err
	}

	entryCtx := normalizeContext(r.Context)
	var out Relation
	owner, err := MutateOwner(ctx, e.store, actor, func(o *Owner) error {
		rel := o.ensureRelation(target)
		total := rel.Score() + r.Delta
		if math.IsInf(total, 0) {
			return ErrInvalidDelta
		}
		rel.ScoresHistory = append(rel.ScoresHistory, ScoreEntry{
			ID:         e.newID(),
			Timestamp:  e.now(),
			ScoreDelta: r.Delta,
			ScoreValue: total,
			Reason:     strings.TrimSpace(r.Reason),
			Context:    entryCtx,
		})
		out = copyRelation(rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"actor":  actor,
		"target": target,
		"delta":  r.Delta,
		"score":  out.Score(),
	}).Debug("credit recorded")

	if e.members != nil && entryCtx != nil {
		sid := entryCtx.ServerID
		if sid != "" && sid != DirectMessageServerID && !owner.HasServer(sid) {
			e.members.Enqueue(actor, sid)
		}
	}
	return &out, nil
}

// DeleteLatest pops the most recently appended entry. A relation emptied this
// way is removed from the owner.
func (e *Engine) DeleteLatest(ctx context.Context, actorID, targetID string) (*Relation, error) {
	actorID, targetID, err := normalizePair(actorID, targetID)
	if err != nil {
		return nil, err
	}
	var out Relation
	_, err = MutateOwner(ctx, e.store, actorID, func(o *Owner) error {
		rel := o.Relation(targetID)
		if rel == nil || len(rel.ScoresHistory) == 0 {
			return ErrRelationNotFound
		}
		rel.ScoresHistory = rel.ScoresHistory[:len(rel.ScoresHistory)-1]
		out = copyRelation(rel)
		if len(rel.ScoresHistory) == 0 {
			o.removeRelation(targetID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Untrack removes the relation entirely. It succeeds when none exists.
func (e *Engine) Untrack(ctx context.Context, actorID, targetID string) error {
	actorID, targetID, err := normalizePair(actorID, targetID)
	if err != nil {
		return err
	}
	_, err = MutateOwner(ctx, e.store, actorID, func(o *Owner) error {
		if !o.removeRelation(targetID) {
			return ErrNoChange
		}
		return nil
	})
	if errors.Is(err, ErrOwnerNotFound) {
		return nil
	}
	return err
}

// GetGiven lists every relation the user holds, in insertion order.
func (e *Engine) GetGiven(ctx context.Context, userID string) ([]Relation, error) {
	owner, err := e.store.FindOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}
	out := make([]Relation, 0, len(owner.Relations))
	for i := range owner.Relations {
		out = append(out, copyRelation(&owner.Relations[i]))
	}
	return out, nil
}

// GetGivenTo returns the user's relation to a single target.
func (e *Engine) GetGivenTo(ctx context.Context, userID, targetID string) (*Relation, error) {
	owner, err := e.store.FindOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}
	rel := owner.Relation(targetID)
	if rel == nil {
		return nil, ErrRelationNotFound
	}
	out := copyRelation(rel)
	return &out, nil
}

// normalizePair trims both ids and rejects blanks.
func normalizePair(actorID, targetID string) (string, string, error) {
	actorID = strings.TrimSpace(actorID)
	targetID = strings.TrimSpace(targetID)
	if actorID == "" || targetID == "" {
		return "", "", ErrInvalidUserID
	}
	return actorID, targetID, nil
}

func copyRelation(rel *Relation) Relation {
	out := Relation{TargetUserID: rel.TargetUserID, ScoresHistory: make([]ScoreEntry, len(rel.ScoresHistory))}
	copy(out.ScoresHistory, rel.ScoresHistory)
	return out
}

func normalizeContext(c *EntryContext) *EntryContext {
	if c == nil {
		return nil
	}
	out := EntryContext{
		ServerID:       strings.TrimSpace(c.ServerID),
		ChannelID:      strings.TrimSpace(c.ChannelID),
		MessageID:      strings.TrimSpace(c.MessageID),
		MessageSnippet: truncateRunes(c.MessageSnippet, MaxSnippetRunes),
	}
	if out == (EntryContext{}) {
		return nil
	}
	return &out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

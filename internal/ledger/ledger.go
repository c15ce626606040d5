package ledger

import (
	"context"
	"errors"
	"time"
)

// DirectMessageServerID marks plugin activity that happened outside a guild.
const DirectMessageServerID = "@me"

var (
	ErrSelfRating       = errors.New("users cannot give credit to themselves")
	ErrInvalidDelta     = errors.New("score delta must be a finite number")
	ErrOwnerNotFound    = errors.New("user not found")
	ErrRelationNotFound = errors.New("no credit history for target")
	ErrServerNotFound   = errors.New("server not found")
	ErrVersionConflict  = errors.New("owner record modified concurrently")
)

// ScoreEntry is one immutable step in a rater's history for a target.
type ScoreEntry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	ScoreDelta float64       `json:"score_delta"`
	ScoreValue float64       `json:"score_value"`
	Reason     string        `json:"reason,omitempty"`
	Context    *EntryContext `json:"context,omitempty"`
}

// EntryContext carries the Discord location a rating was given from.
type EntryContext struct {
	ServerID       string `json:"server_id,omitempty"`
	ChannelID      string `json:"channel_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	MessageSnippet string `json:"message_snippet,omitempty"`
}

// Relation is the ordered score history one owner keeps about one target.
type Relation struct {
	TargetUserID  string       `json:"target_user_id"`
	ScoresHistory []ScoreEntry `json:"scores_history"`
}

// Score returns the running total, taken from the last appended entry.
func (r *Relation) Score() float64 {
	if r == nil || len(r.ScoresHistory) == 0 {
		return 0
	}
	return r.ScoresHistory[len(r.ScoresHistory)-1].ScoreValue
}

// Membership records a guild the owner belongs to.
type Membership struct {
	ServerID string `json:"server_id"`
	Name     string `json:"server_name,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

// Credential is the salted hash of a plugin API key.
type Credential struct {
	Hash        string    `json:"hash"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Owner is the per-identity ledger document.
type Owner struct {
	UserID            string       `json:"user_id"`
	Username          string       `json:"username"`
	ProfilePictureURL string       `json:"profile_picture_url,omitempty"`
	Relations         []Relation   `json:"social_credits_given"`
	Servers           []Membership `json:"servers"`
	Credential        *Credential  `json:"-"`
	Version           int64        `json:"-"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`

	index map[string]int
}

// Relation returns the relation for target, or nil.
func (o *Owner) Relation(target string) *Relation {
	if o.index == nil || len(o.index) != len(o.Relations) {
		o.reindex()
	}
	i, ok := o.index[target]
	if !ok {
		return nil
	}
	return &o.Relations[i]
}

func (o *Owner) ensureRelation(target string) *Relation {
	if rel := o.Relation(target); rel != nil {
		return rel
	}
	o.Relations = append(o.Relations, Relation{TargetUserID: target, ScoresHistory: []ScoreEntry{}})
	o.index[target] = len(o.Relations) - 1
	return &o.Relations[len(o.Relations)-1]
}

func (o *Owner) removeRelation(target string) bool {
	if o.Relation(target) == nil {
		return false
	}
	i := o.index[target]
	o.Relations = append(o.Relations[:i], o.Relations[i+1:]...)
	o.reindex()
	return true
}

func (o *Owner) reindex() {
	o.index = make(map[string]int, len(o.Relations))
	for i, rel := range o.Relations {
		o.index[rel.TargetUserID] = i
	}
}

// HasServer reports whether serverID is among the owner's memberships.
func (o *Owner) HasServer(serverID string) bool {
	for _, m := range o.Servers {
		if m.ServerID == serverID {
			return true
		}
	}
	return false
}

// Server is the coarse roster index of a guild.
type Server struct {
	ServerID  string    `json:"server_id"`
	Name      string    `json:"server_name"`
	Icon      string    `json:"icon,omitempty"`
	MemberIDs []string  `json:"user_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddMember appends userID to the roster if absent and reports whether it changed.
func (s *Server) AddMember(userID string) bool {
	for _, id := range s.MemberIDs {
		if id == userID {
			return false
		}
	}
	s.MemberIDs = append(s.MemberIDs, userID)
	return true
}

// Store persists owner documents and server rosters.
//
// FindOwner and FindServer return (nil, nil) when the record does not exist.
// CreateOwner inserts only if absent and reports whether it did. UpdateOwner
// succeeds only when owner.Version matches the stored version, and bumps it.
type Store interface {
	FindOwner(ctx context.Context, userID string) (*Owner, error)
	CreateOwner(ctx context.Context, owner *Owner) (bool, error)
	UpdateOwner(ctx context.Context, owner *Owner) error
	FindServer(ctx context.Context, serverID string) (*Server, error)
	UpsertServer(ctx context.Context, server *Server) error
	ListServers(ctx context.Context) ([]Server, error)
	Ping(ctx context.Context) error
	Close() error
}

package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// document is the persisted form of an Owner. Unlike the API form it keeps
// the credential hash.
type document struct {
	UserID            string       `json:"user_id"`
	Username          string       `json:"username"`
	ProfilePictureURL string       `json:"profile_picture_url,omitempty"`
	Relations         []Relation   `json:"social_credits_given"`
	Servers           []Membership `json:"servers"`
	Credential        *Credential  `json:"credential,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// EncodeOwner serialises an owner for storage. The version lives outside the
// document so stores can compare it atomically.
func EncodeOwner(o *Owner) ([]byte, error) {
	doc := document{
		UserID:            o.UserID,
		Username:          o.Username,
		ProfilePictureURL: o.ProfilePictureURL,
		Relations:         o.Relations,
		Servers:           o.Servers,
		Credential:        o.Credential,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if doc.Relations == nil {
		doc.Relations = []Relation{}
	}
	if doc.Servers == nil {
		doc.Servers = []Membership{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode owner %s: %w", o.UserID, err)
	}
	return data, nil
}

// DecodeOwner restores an owner from its stored document and version.
func DecodeOwner(data []byte, version int64) (*Owner, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	o := &Owner{
		UserID:            doc.UserID,
		Username:          doc.Username,
		ProfilePictureURL: doc.ProfilePictureURL,
		Relations:         doc.Relations,
		Servers:           doc.Servers,
		Credential:        doc.Credential,
		Version:           version,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
	if o.Relations == nil {
		o.Relations = []Relation{}
	}
	for i := range o.Relations {
		if o.Relations[i].ScoresHistory == nil {
			o.Relations[i].ScoresHistory = []ScoreEntry{}
		}
	}
	if o.Servers == nil {
		o.Servers = []Membership{}
	}
	o.reindex()
	return o, nil
}

// CloneServer returns a deep copy of s.
func CloneServer(s *Server) *Server {
	if s == nil {
		return nil
	}
	out := *s
	out.MemberIDs = append([]string(nil), s.MemberIDs...)
	return &out
}

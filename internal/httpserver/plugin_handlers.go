package httpserver

import (
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/socialcredit/socialcredit-backend/internal/auth"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

var errActorMismatch = errors.New("acting_user_id does not match " + pluginUserHeader)

type pluginRatingRequest struct {
	ActingUserID   string   `json:"acting_user_id"`
	TargetUserID   string   `json:"target_user_id"`
	ServerID       string   `json:"server_id"`
	ChannelID      string   `json:"channel_id"`
	MessageID      string   `json:"message_id"`
	ScoreDelta     *float64 `json:"score_delta"`
	MessageSnippet string   `json:"message_snippet"`
	Reason         string   `json:"reason"`
}

// handlePluginRating accepts a rating from the client plugin. Everything
// that can be rejected without storage is rejected before the actor is
// resolved. The per-actor limit applies only once the key is verified.
func (s *Server) handlePluginRating(w http.ResponseWriter, r *http.Request) {
	headerActor, key, err := auth.PluginHeaders(r.Header.Get(pluginUserHeader), r.Header.Get(pluginKeyHeader))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req pluginRatingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.ActingUserID) != headerActor {
		log.WithFields(log.Fields{"header": headerActor, "payload": req.ActingUserID}).Warn("plugin actor mismatch")
		s.fail(w, r, errActorMismatch)
		return
	}
	if req.ScoreDelta == nil {
		s.fail(w, r, ledger.ErrInvalidDelta)
		return
	}
	target := strings.TrimSpace(req.TargetUserID)
	if target == "" {
		s.fail(w, r, ledger.ErrInvalidUserID)
		return
	}
	if target == headerActor {
		s.fail(w, r, ledger.ErrSelfRating)
		return
	}

	actor, err := s.gate.PluginActor(r.Context(), headerActor, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.pluginLimit.Check(w, r, pluginActorKey(actor)) {
		return
	}
	rel, err := s.engine.GiveCredit(r.Context(), ledger.Rating{
		ActorID:  actor,
		TargetID: target,
		Delta:    *req.ScoreDelta,
		Reason:   req.Reason,
		Context: &ledger.EntryContext{
			ServerID:       req.ServerID,
			ChannelID:      req.ChannelID,
			MessageID:      req.MessageID,
			MessageSnippet: req.MessageSnippet,
		},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.RecordRating("plugin")
	s.respondJSON(w, http.StatusCreated, rel)
}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialcredit/socialcredit-backend/internal/auth"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

type creditRequest struct {
	ScoreDelta *float64 `json:"score_delta"`
	Reason     *string  `json:"reason"`
}

// actingUser confirms that the session owns the {acting} path segment and
// returns the confirmed id.
func (s *Server) actingUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	confirmed := sessionUserFromContext(r.Context())
	if err := auth.RequireActor(confirmed, chi.URLParam(r, "acting")); err != nil {
		s.fail(w, r, err)
		return "", false
	}
	return confirmed, true
}

func (s *Server) handleGiveCredit(w http.ResponseWriter, r *http.Request) {
	acting, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	var req creditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ScoreDelta == nil {
		s.fail(w, r, ledger.ErrInvalidDelta)
		return
	}
	rating := ledger.Rating{
		ActorID:  acting,
		TargetID: chi.URLParam(r, "target"),
		Delta:    *req.ScoreDelta,
	}
	if req.Reason != nil {
		rating.Reason = *req.Reason
	}
	rel, err := s.engine.GiveCredit(r.Context(), rating)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.RecordRating("session")
	s.respondJSON(w, http.StatusOK, rel)
}

func (s *Server) handleDeleteLatest(w http.ResponseWriter, r *http.Request) {
	acting, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	rel, err := s.engine.DeleteLatest(r.Context(), acting, chi.URLParam(r, "target"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.RecordDelete()
	s.respondJSON(w, http.StatusOK, rel)
}

func (s *Server) handleUntrack(w http.ResponseWriter, r *http.Request) {
	acting, ok := s.actingUser(w, r)
	if !ok {
		return
	}
	if err := s.engine.Untrack(r.Context(), acting, chi.URLParam(r, "target")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.RecordUntrack()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetGiven(w http.ResponseWriter, r *http.Request) {
	rels, err := s.engine.GetGiven(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rels)
}

func (s *Server) handleGetGivenTo(w http.ResponseWriter, r *http.Request) {
	rel, err := s.engine.GetGivenTo(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "target"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rel)
}

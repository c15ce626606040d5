package httpserver

import (
	"net/http"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	owner, err := s.store.FindOwner(r.Context(), sessionUserFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if owner == nil {
		s.fail(w, r, ledger.ErrOwnerNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, owner)
}

func (s *Server) handleCurrentUserServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.members.Memberships(r.Context(), sessionUserFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if servers == nil {
		servers = []ledger.Membership{}
	}
	s.respondJSON(w, http.StatusOK, servers)
}

// handleGenerateKey returns the plaintext key exactly once; any previous key
// stops verifying.
func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	issued, err := s.credentials.Generate(r.Context(), sessionUserFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, issued)
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.credentials.Status(r.Context(), sessionUserFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := s.credentials.Revoke(r.Context(), sessionUserFromContext(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

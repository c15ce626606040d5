package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.ListServers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if servers == nil {
		servers = []ledger.Server{}
	}
	s.respondJSON(w, http.StatusOK, servers)
}

func (s *Server) handleServerUsers(w http.ResponseWriter, r *http.Request) {
	owners, err := s.members.Roster(r.Context(), chi.URLParam(r, "server"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, owners)
}

func (s *Server) handleDiscordUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.discord.FetchUser(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleDiscordMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.discord.FetchGuildMember(r.Context(), chi.URLParam(r, "server"), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, member)
}

func (s *Server) handleDiscordMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.discord.FetchMessage(r.Context(), chi.URLParam(r, "channel"), chi.URLParam(r, "message"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}

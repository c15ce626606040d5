package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/socialcredit/socialcredit-backend/internal/identity"
)

var errOAuthDisabled = errors.New("discord login is not configured")

func (s *Server) handleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || !s.oauth.Configured() {
		s.respondError(w, http.StatusServiceUnavailable, errOAuthDisabled)
		return
	}
	state, _, err := s.auth.CreateState()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleDiscordCallback completes the login: it refreshes the owner's
// profile, replaces their memberships and hands the session token to the
// frontend.
func (s *Server) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || !s.oauth.Configured() {
		s.respondError(w, http.StatusServiceUnavailable, errOAuthDisabled)
		return
	}
	q := r.URL.Query()
	if reason := strings.TrimSpace(q.Get("error")); reason != "" {
		s.redirectToFrontend(w, r, url.Values{"error": {reason}})
		return
	}
	if err := s.auth.ConsumeState(q.Get("state")); err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := r.Context()
	accessToken, err := s.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.discord.CurrentUser(ctx, accessToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := s.resolver.Refresh(ctx, identity.Profile{
		UserID:    user.ID,
		Username:  user.DisplayName(),
		AvatarURL: user.AvatarURL,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	guilds, err := s.discord.CurrentUserGuilds(ctx, accessToken)
	if err != nil {
		log.WithField("user_id", owner.UserID).WithError(err).Warn("guild list unavailable at login, keeping previous memberships")
	} else if err := s.members.SyncFromOAuth(ctx, owner.UserID, guilds); err != nil {
		log.WithField("user_id", owner.UserID).WithError(err).Warn("membership sync failed")
	}

	token, err := s.auth.IssueToken(owner.UserID, s.sessionTTL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies,
		Expires:  time.Now().Add(s.sessionTTL),
	})
	log.WithFields(log.Fields{"user_id": owner.UserID, "guilds": len(guilds)}).Info("discord login completed")
	s.redirectToFrontend(w, r, url.Values{"token": {token}})
}

func (s *Server) redirectToFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, s.frontendURL+"/auth/callback?"+params.Encode(), http.StatusFound)
}

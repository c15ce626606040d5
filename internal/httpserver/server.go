package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/socialcredit/socialcredit-backend/internal/auth"
	"github.com/socialcredit/socialcredit-backend/internal/credential"
	"github.com/socialcredit/socialcredit-backend/internal/discord"
	"github.com/socialcredit/socialcredit-backend/internal/health"
	"github.com/socialcredit/socialcredit-backend/internal/identity"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
	"github.com/socialcredit/socialcredit-backend/internal/membership"
	"github.com/socialcredit/socialcredit-backend/internal/metrics"
	"github.com/socialcredit/socialcredit-backend/internal/ratelimit"
	"github.com/socialcredit/socialcredit-backend/internal/version"
)

const (
	sessionCookieName = "socialcredit_session"
	pluginKeyHeader   = "X-Plugin-API-Key"
	pluginUserHeader  = "X-Plugin-User-ID"
	maxBodyBytes      = 64 << 10
)

// Deps are the collaborators the HTTP surface dispatches to.
type Deps struct {
	Store       ledger.Store
	Engine      *ledger.Engine
	Resolver    *identity.Resolver
	Credentials *credential.Store
	Members     *membership.Cache
	Discord     *discord.Client
	OAuth       *discord.OAuth
	Auth        *auth.Manager
	Limiter     *ratelimit.Limiter // nil disables plugin rate limiting
	Health      *health.Checker
	Metrics     *metrics.Collector
}

// Options tune session handling and redirects.
type Options struct {
	FrontendURL   string
	SessionTTL    time.Duration
	SecureCookies bool
}

// Server exposes the ledger over HTTP.
type Server struct {
	store       ledger.Store
	engine      *ledger.Engine
	resolver    *identity.Resolver
	credentials *credential.Store
	members     *membership.Cache
	discord     *discord.Client
	oauth       *discord.OAuth
	auth        *auth.Manager
	gate        *auth.Gate
	pluginLimit *ratelimit.Middleware
	health      *health.Checker
	metrics     *metrics.Collector

	frontendURL   string
	sessionTTL    time.Duration
	secureCookies bool
}

// New wires a server from its collaborators.
func New(deps Deps, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	s := &Server{
		store:         deps.Store,
		engine:        deps.Engine,
		resolver:      deps.Resolver,
		credentials:   deps.Credentials,
		members:       deps.Members,
		discord:       deps.Discord,
		oauth:         deps.OAuth,
		auth:          deps.Auth,
		gate:          auth.NewGate(deps.Auth, deps.Store, deps.Resolver, deps.Credentials),
		pluginLimit:   ratelimit.NewMiddleware(deps.Limiter, deps.Limiter != nil, pluginClientKey),
		health:        deps.Health,
		metrics:       deps.Metrics,
		frontendURL:   strings.TrimRight(opts.FrontendURL, "/"),
		sessionTTL:    opts.SessionTTL,
		secureCookies: opts.SecureCookies,
	}
	s.pluginLimit.OnLimit = s.metrics.RecordRateLimitHit
	return s
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	root := s.newBaseRouter()
	root.Get("/health", s.HandleHealth)
	root.Get("/metrics", s.handleMetrics)

	root.Group(func(r chi.Router) {
		r.Use(s.instrument)

		r.Get("/auth/discord/login", s.handleDiscordLogin)
		r.Get("/auth/discord/callback", s.handleDiscordCallback)

		// Reads stay public.
		r.Get("/users/{user}/credit/given", s.handleGetGiven)
		r.Get("/users/{user}/credit/given/{target}", s.handleGetGivenTo)
		r.Get("/servers", s.handleListServers)
		r.Get("/servers/{server}/users", s.handleServerUsers)

		r.Group(func(private chi.Router) {
			private.Use(s.sessionMiddleware)

			private.Get("/users/me", s.handleCurrentUser)
			private.Get("/users/me/servers", s.handleCurrentUserServers)
			private.Post("/users/me/plugin-api-key", s.handleGenerateKey)
			private.Get("/users/me/plugin-api-key-status", s.handleKeyStatus)
			private.Delete("/users/me/plugin-api-key", s.handleRevokeKey)

			private.Post("/users/{acting}/credit/{target}", s.handleGiveCredit)
			private.Delete("/users/{acting}/credit/{target}/latest", s.handleDeleteLatest)
			private.Delete("/users/{acting}/credit/{target}", s.handleUntrack)

			private.Get("/discord/users/{user}", s.handleDiscordUser)
			private.Get("/discord/guilds/{server}/members/{user}", s.handleDiscordMember)
			private.Get("/discord/channels/{channel}/messages/{message}", s.handleDiscordMessage)
		})

		r.Group(func(plugin chi.Router) {
			plugin.Use(s.pluginLimit.Wrap)
			plugin.Post("/plugin/ratings", s.handlePluginRating)
		})
	})

	return root
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	return r
}

// requestLogger writes one access log line per request through logrus.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
		})
		switch {
		case ww.Status() >= 500:
			entry.Error("request failed")
		case ww.Status() >= 400:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
	})
}

// instrument records per-route counters. It runs inside the routed group so
// the matched pattern is known.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		s.metrics.RecordRequestStart(route)
		defer func() {
			s.metrics.RecordRequestEnd(route, time.Since(start), ww.Status() >= http.StatusInternalServerError)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.metrics.GetSnapshot())))
}

type sessionContextKey struct{}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.gate.SessionActor(r.Context(), sessionToken(r))
		if err != nil {
			s.respondError(w, statusForError(err), err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionUserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(sessionContextKey{}).(string)
	return userID
}

// sessionToken prefers the bearer header over the session cookie.
func sessionToken(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// pluginClientKey buckets unauthenticated plugin traffic by client address.
// The asserted actor header is not trusted until the key is verified.
func pluginClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func pluginActorKey(actor string) string {
	return "plugin:" + actor
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": version.Info(),
	}
	status := http.StatusOK
	if s.health != nil {
		report := s.health.Check(r.Context())
		payload["status"] = report.Status
		payload["components"] = report.Components
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
	}
	s.respondJSON(w, status, payload)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return &badRequestError{err: err}
	}
	return nil
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, discord.ErrInvalidAuth):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden),
		errors.Is(err, discord.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrMissingActor),
		errors.Is(err, auth.ErrStateNotFound),
		errors.Is(err, errActorMismatch),
		errors.Is(err, ledger.ErrSelfRating),
		errors.Is(err, ledger.ErrInvalidDelta),
		errors.Is(err, ledger.ErrInvalidUserID):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrOwnerNotFound),
		errors.Is(err, ledger.ErrRelationNotFound),
		errors.Is(err, ledger.ErrServerNotFound),
		errors.Is(err, discord.ErrNotFound),
		errors.Is(err, discord.ErrNotMember):
		return http.StatusNotFound
	case errors.Is(err, discord.ErrNoBotToken),
		errors.Is(err, discord.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, discord.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail logs unexpected errors and writes the mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request error")
	}
	s.respondError(w, status, err)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

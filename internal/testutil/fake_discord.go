// Package testutil provides an in-process stand-in for the Discord API.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// FakeDiscord serves the Discord REST and OAuth endpoints used by the
// service from in-memory fixtures. Bot calls must carry BotToken.
type FakeDiscord struct {
	URL      string
	BotToken string

	listener net.Listener
	server   *http.Server

	mu       sync.Mutex
	users    map[string]map[string]any
	guilds   map[string]map[string]any
	members  map[string]map[string]bool
	messages map[string]map[string]any
	codes    map[string]string // code -> access token
	tokens   map[string]string // access token -> user id
	hits     map[string]int
	failAll  bool
}

// NewFakeDiscord starts the fake on an IPv4 loopback port and stops it when
// the test ends.
func NewFakeDiscord(t *testing.T, botToken string) *FakeDiscord {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	f := &FakeDiscord{
		URL:      "http://" + l.Addr().String(),
		BotToken: botToken,
		listener: l,
		users:    map[string]map[string]any{},
		guilds:   map[string]map[string]any{},
		members:  map[string]map[string]bool{},
		messages: map[string]map[string]any{},
		codes:    map[string]string{},
		tokens:   map[string]string{},
		hits:     map[string]int{},
	}
	f.server = &http.Server{Handler: f.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := f.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fake discord serve error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = f.server.Shutdown(context.Background()) })
	return f
}

// TokenURL is the OAuth token endpoint of the fake.
func (f *FakeDiscord) TokenURL() string { return f.URL + "/oauth2/token" }

// AuthURL is the OAuth authorize endpoint of the fake.
func (f *FakeDiscord) AuthURL() string { return f.URL + "/oauth2/authorize" }

func (f *FakeDiscord) AddUser(id, username, globalName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := map[string]any{"id": id, "username": username, "discriminator": "0"}
	if globalName != "" {
		u["global_name"] = globalName
	}
	f.users[id] = u
}

func (f *FakeDiscord) AddGuild(id, name, icon string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := map[string]any{"id": id, "name": name}
	if icon != "" {
		g["icon"] = icon
	}
	f.guilds[id] = g
}

func (f *FakeDiscord) AddMember(guildID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[guildID] == nil {
		f.members[guildID] = map[string]bool{}
	}
	f.members[guildID][userID] = true
}

func (f *FakeDiscord) AddMessage(channelID, messageID, authorID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[channelID+"/"+messageID] = map[string]any{
		"id":         messageID,
		"channel_id": channelID,
		"content":    content,
		"author":     f.users[authorID],
		"timestamp":  "2024-05-01T12:00:00Z",
	}
}

// AddLogin makes code exchangeable for an access token belonging to userID.
func (f *FakeDiscord) AddLogin(code, accessToken, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = accessToken
	f.tokens[accessToken] = userID
}

// FailAll makes every endpoint answer 500.
func (f *FakeDiscord) FailAll(fail bool) {
	f.mu.Lock()
	f.failAll = fail
	f.mu.Unlock()
}

// Hits returns how many requests reached the named route pattern.
func (f *FakeDiscord) Hits(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[pattern]
}

func (f *FakeDiscord) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.count)
	r.Post("/oauth2/token", f.handleToken)
	r.Get("/users/@me", f.handleCurrentUser)
	r.Get("/users/@me/guilds", f.handleCurrentUserGuilds)

	r.Group(func(bot chi.Router) {
		bot.Use(f.requireBot)
		bot.Get("/users/{user}", f.handleUser)
		bot.Get("/guilds/{guild}", f.handleGuild)
		bot.Get("/guilds/{guild}/members/{user}", f.handleMember)
		bot.Get("/channels/{channel}/messages/{message}", f.handleMessage)
	})
	return r
}

func (f *FakeDiscord) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		f.mu.Lock()
		f.hits[pattern]++
		f.mu.Unlock()
	})
}

func (f *FakeDiscord) requireBot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot "+f.BotToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized", "code": 0})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeDiscord) failing(w http.ResponseWriter) bool {
	f.mu.Lock()
	fail := f.failAll
	f.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal"})
	}
	return fail
}

func (f *FakeDiscord) handleToken(w http.ResponseWriter, r *http.Request) {
	if f.failing(w) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}
	f.mu.Lock()
	token, ok := f.codes[r.PostForm.Get("code")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   604800,
		"scope":        "identify guilds",
	})
}

func (f *FakeDiscord) userForToken(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	return id, ok
}

func (f *FakeDiscord) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if f.failing(w) {
		return
	}
	id, ok := f.userForToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized"})
		return
	}
	f.mu.Lock()
	u := f.users[id]
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (f *FakeDiscord) handleCurrentUserGuilds(w http.ResponseWriter, r *http.Request) {
	if f.failing(w) {
		return
	}
	id, ok := f.userForToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized"})
		return
	}
	f.mu.Lock()
	out := []map[string]any{}
	for guildID, members := range f.members {
		if members[id] && f.guilds[guildID] != nil {
			out = append(out, f.guilds[guildID])
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeDiscord) handleUser(w http.ResponseWriter, r *http.Request) {
	f.lookup(w, f.users, chi.URLParam(r, "user"))
}

func (f *FakeDiscord) handleGuild(w http.ResponseWriter, r *http.Request) {
	f.lookup(w, f.guilds, chi.URLParam(r, "guild"))
}

func (f *FakeDiscord) handleMessage(w http.ResponseWriter, r *http.Request) {
	f.lookup(w, f.messages, chi.URLParam(r, "channel")+"/"+chi.URLParam(r, "message"))
}

func (f *FakeDiscord) handleMember(w http.ResponseWriter, r *http.Request) {
	if f.failing(w) {
		return
	}
	guildID, userID := chi.URLParam(r, "guild"), chi.URLParam(r, "user")
	f.mu.Lock()
	member := f.members[guildID][userID]
	user := f.users[userID]
	f.mu.Unlock()
	if !member {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Unknown Member", "code": 10007})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user,
		"roles":     []string{},
		"joined_at": "2023-01-01T00:00:00Z",
	})
}

func (f *FakeDiscord) lookup(w http.ResponseWriter, table map[string]map[string]any, key string) {
	if f.failing(w) {
		return
	}
	f.mu.Lock()
	v, ok := table[key]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Unknown", "code": 10000})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var auth []string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/80351110224678912", func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "80351110224678912", "username": "nelly", "discriminator": "1337", "avatar": "8342729096ea3675442027381ff50dfe",
		})
	})
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "175928847299117063", "username": "me", "global_name": "Me Myself"})
	})
	mux.HandleFunc("/users/@me/guilds", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "41771983423143937", "name": "Gaming Crew", "icon": "abc"},
			{"id": "41771983423143938", "name": "Study Group"},
		})
	})
	mux.HandleFunc("/guilds/41771983423143937/members/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/80351110224678912") {
			_ = json.NewEncoder(w).Encode(map[string]any{"nick": "nells", "roles": []string{}, "joined_at": "2020-01-02T03:04:05Z"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/channels/1/messages/2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/guilds/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &auth
}

func TestFetchUserWithBotToken(t *testing.T) {
	srv, auth := newTestAPI(t)
	c := NewClient(srv.URL, "bot-secret")

	u, err := c.FetchUser(context.Background(), "80351110224678912")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if u.Username != "nelly" || !strings.HasSuffix(u.AvatarURL, "/avatars/80351110224678912/8342729096ea3675442027381ff50dfe.png") {
		t.Fatalf("unexpected user %+v", u)
	}
	if (*auth)[0] != "Bot bot-secret" {
		t.Fatalf("expected bot authorization, got %q", (*auth)[0])
	}
	want := time.Date(2015, 8, 15, 0, 0, 0, 0, time.UTC)
	if u.CreatedAt.Year() != want.Year() || u.CreatedAt.Month() != want.Month() {
		t.Fatalf("unexpected creation time %v", u.CreatedAt)
	}
}

func TestBotLookupsWithoutTokenOrBadID(t *testing.T) {
	srv, auth := newTestAPI(t)
	c := NewClient(srv.URL, "")
	if c.HasBotToken() {
		t.Fatalf("expected no bot token")
	}
	if _, err := c.FetchUser(context.Background(), "80351110224678912"); !errors.Is(err, ErrNoBotToken) {
		t.Fatalf("expected ErrNoBotToken, got %v", err)
	}

	c = NewClient(srv.URL, "bot-secret")
	if _, err := c.FetchUser(context.Background(), "not-a-snowflake"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
	if len(*auth) != 0 {
		t.Fatalf("no request should reach the api, got %d", len(*auth))
	}
}

func TestGuildMemberAndMessageErrors(t *testing.T) {
	srv, _ := newTestAPI(t)
	c := NewClient(srv.URL, "bot-secret")
	ctx := context.Background()

	m, err := c.FetchGuildMember(ctx, "41771983423143937", "80351110224678912")
	if err != nil {
		t.Fatalf("FetchGuildMember: %v", err)
	}
	if m.Nick != "nells" {
		t.Fatalf("unexpected member %+v", m)
	}
	if _, err := c.FetchGuildMember(ctx, "41771983423143937", "175928847299117063"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := c.FetchMessage(ctx, "1", "2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := c.FetchGuild(ctx, "500"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestCurrentUserAndGuilds(t *testing.T) {
	srv, _ := newTestAPI(t)
	c := NewClient(srv.URL, "")
	ctx := context.Background()

	if _, err := c.CurrentUser(ctx, "bad"); !errors.Is(err, ErrInvalidAuth) {
		t.Fatalf("expected ErrInvalidAuth, got %v", err)
	}
	u, err := c.CurrentUser(ctx, "good")
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.DisplayName() != "Me Myself" {
		t.Fatalf("unexpected display name %q", u.DisplayName())
	}
	guilds, err := c.CurrentUserGuilds(ctx, "good")
	if err != nil {
		t.Fatalf("CurrentUserGuilds: %v", err)
	}
	if len(guilds) != 2 || guilds[0].IconURL == "" || guilds[1].IconURL != "" {
		t.Fatalf("unexpected guilds %+v", guilds)
	}
}

func TestUnreachableAPI(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "bot-secret")
	if _, err := c.FetchUser(context.Background(), "80351110224678912"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

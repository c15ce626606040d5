package membership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/socialcredit/socialcredit-backend/internal/discord"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
	"github.com/socialcredit/socialcredit-backend/internal/ledger/memory"
)

type stubGuilds struct {
	mu     sync.Mutex
	guilds map[string]discord.Guild
	calls  int
}

func (s *stubGuilds) FetchGuild(_ context.Context, id string) (*discord.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	g, ok := s.guilds[id]
	if !ok {
		return nil, discord.ErrForbidden
	}
	return &g, nil
}

func seedOwner(t *testing.T, store ledger.Store, id string) {
	t.Helper()
	if _, err := store.CreateOwner(context.Background(), &ledger.Owner{UserID: id, Username: "user_" + id}); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
}

func TestRecordIfUnknownEnrichesOrStubs(t *testing.T) {
	store := memory.New()
	seedOwner(t, store, "1")
	guilds := &stubGuilds{guilds: map[string]discord.Guild{"g1": {ID: "g1", Name: "Gaming Crew", IconURL: "icon.png"}}}
	cache := NewCache(store, guilds)
	ctx := context.Background()

	cache.RecordIfUnknown(ctx, "1", "g1")
	cache.RecordIfUnknown(ctx, "1", "g2")
	cache.RecordIfUnknown(ctx, "1", "g1")
	cache.RecordIfUnknown(ctx, "1", ledger.DirectMessageServerID)
	cache.RecordIfUnknown(ctx, "ghost", "g1")

	servers, err := cache.Memberships(ctx, "1")
	if err != nil {
		t.Fatalf("Memberships: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected two memberships, got %+v", servers)
	}
	if servers[0].Name != "Gaming Crew" || servers[0].Icon != "icon.png" {
		t.Fatalf("expected enriched record, got %+v", servers[0])
	}
	if servers[1].ServerID != "g2" || servers[1].Name != "" {
		t.Fatalf("expected stub record for g2, got %+v", servers[1])
	}
	if guilds.calls != 2 {
		t.Fatalf("expected lookups only for unseen servers, got %d", guilds.calls)
	}

	roster, err := cache.Roster(ctx, "g1")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster) != 1 || roster[0].UserID != "1" {
		t.Fatalf("unexpected roster %+v", roster)
	}
}

func TestSyncFromOAuthReplacesWholesale(t *testing.T) {
	store := memory.New()
	seedOwner(t, store, "1")
	seedOwner(t, store, "2")
	cache := NewCache(store, nil)
	ctx := context.Background()

	cache.RecordIfUnknown(ctx, "1", "old")
	if err := cache.SyncFromOAuth(ctx, "1", []discord.Guild{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}); err != nil {
		t.Fatalf("SyncFromOAuth: %v", err)
	}
	if err := cache.SyncFromOAuth(ctx, "2", []discord.Guild{{ID: "a", Name: "A"}}); err != nil {
		t.Fatalf("SyncFromOAuth: %v", err)
	}

	servers, _ := cache.Memberships(ctx, "1")
	if len(servers) != 2 || servers[0].ServerID != "a" || servers[1].ServerID != "b" {
		t.Fatalf("expected memberships replaced, got %+v", servers)
	}

	roster, err := cache.Roster(ctx, "a")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected both owners in roster, got %d", len(roster))
	}
	if _, err := cache.Roster(ctx, "missing"); !errors.Is(err, ledger.ErrServerNotFound) {
		t.Fatalf("expected server not found, got %v", err)
	}
	if err := cache.SyncFromOAuth(ctx, "ghost", nil); !errors.Is(err, ledger.ErrOwnerNotFound) {
		t.Fatalf("expected owner not found, got %v", err)
	}
}

func TestRefreshServersUpdatesMetadata(t *testing.T) {
	store := memory.New()
	seedOwner(t, store, "1")
	guilds := &stubGuilds{guilds: map[string]discord.Guild{}}
	cache := NewCache(store, guilds)
	ctx := context.Background()

	cache.RecordIfUnknown(ctx, "1", "g1")
	guilds.guilds["g1"] = discord.Guild{ID: "g1", Name: "Renamed", IconURL: "new.png"}

	n, err := cache.RefreshServers(ctx)
	if err != nil {
		t.Fatalf("RefreshServers: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one refreshed server, got %d", n)
	}
	srv, _ := store.FindServer(ctx, "g1")
	if srv.Name != "Renamed" || len(srv.MemberIDs) != 1 {
		t.Fatalf("unexpected server after refresh %+v", srv)
	}
}

func TestEnricherDrainsOnClose(t *testing.T) {
	store := memory.New()
	seedOwner(t, store, "1")
	cache := NewCache(store, &stubGuilds{guilds: map[string]discord.Guild{}})
	enricher := NewEnricher(cache, EnricherConfig{Workers: 2, Buffer: 16})

	for _, id := range []string{"g1", "g2", "g3"} {
		enricher.Enqueue("1", id)
	}
	enricher.Close()
	enricher.Enqueue("1", "late")

	servers, err := cache.Memberships(context.Background(), "1")
	if err != nil {
		t.Fatalf("Memberships: %v", err)
	}
	if len(servers) != 3 {
		t.Fatalf("expected queued jobs to be drained, got %+v", servers)
	}
}

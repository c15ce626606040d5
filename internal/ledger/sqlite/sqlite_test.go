package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateOwnerIsInsertIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateOwner(ctx, &ledger.Owner{UserID: "100", Username: "alice"})
	if err != nil || !created {
		t.Fatalf("CreateOwner: created=%v err=%v", created, err)
	}
	created, err = store.CreateOwner(ctx, &ledger.Owner{UserID: "100", Username: "user_100"})
	if err != nil {
		t.Fatalf("second CreateOwner: %v", err)
	}
	if created {
		t.Fatalf("expected second insert to be a no-op")
	}

	owner, err := store.FindOwner(ctx, "100")
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if owner == nil || owner.Username != "alice" {
		t.Fatalf("expected original record to survive, got %+v", owner)
	}
	if owner.Version != 1 {
		t.Fatalf("expected version 1, got %d", owner.Version)
	}

	missing, err := store.FindOwner(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil owner for unknown id, got %+v err=%v", missing, err)
	}
}

func TestUpdateOwnerDetectsStaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateOwner(ctx, &ledger.Owner{UserID: "1", Username: "a"}); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	first, _ := store.FindOwner(ctx, "1")
	second, _ := store.FindOwner(ctx, "1")

	first.Relations = append(first.Relations, ledger.Relation{
		TargetUserID:  "2",
		ScoresHistory: []ledger.ScoreEntry{{ID: "e1", Timestamp: time.Now().UTC(), ScoreDelta: 3, ScoreValue: 3}},
	})
	first.Credential = &ledger.Credential{Hash: "h", GeneratedAt: time.Now().UTC()}
	if err := store.UpdateOwner(ctx, first); err != nil {
		t.Fatalf("UpdateOwner: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", first.Version)
	}

	second.Username = "stale"
	if err := store.UpdateOwner(ctx, second); !errors.Is(err, ledger.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	reloaded, _ := store.FindOwner(ctx, "1")
	rel := reloaded.Relation("2")
	if rel == nil || rel.Score() != 3 {
		t.Fatalf("expected persisted relation with score 3, got %+v", rel)
	}
	if reloaded.Credential == nil || reloaded.Credential.Hash != "h" {
		t.Fatalf("expected credential to round trip through storage")
	}

	ghost := &ledger.Owner{UserID: "ghost", Version: 1}
	if err := store.UpdateOwner(ctx, ghost); !errors.Is(err, ledger.ErrOwnerNotFound) {
		t.Fatalf("expected not found for unknown owner, got %v", err)
	}
}

func TestServerUpsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertServer(ctx, &ledger.Server{ServerID: "s2", Name: "Study"}); err != nil {
		t.Fatalf("UpsertServer: %v", err)
	}
	if err := store.UpsertServer(ctx, &ledger.Server{ServerID: "s1", Name: "Gaming", MemberIDs: []string{"u1", "u2"}}); err != nil {
		t.Fatalf("UpsertServer: %v", err)
	}
	if err := store.UpsertServer(ctx, &ledger.Server{ServerID: "s1", Name: "Gaming Crew", MemberIDs: []string{"u1", "u2", "u3"}}); err != nil {
		t.Fatalf("UpsertServer update: %v", err)
	}

	srv, err := store.FindServer(ctx, "s1")
	if err != nil {
		t.Fatalf("FindServer: %v", err)
	}
	if srv.Name != "Gaming Crew" || len(srv.MemberIDs) != 3 {
		t.Fatalf("unexpected server %+v", srv)
	}

	list, err := store.ListServers(ctx)
	if err != nil {
		t.Fatalf("ListServers: %v", err)
	}
	if len(list) != 2 || list[0].ServerID != "s1" || list[1].ServerID != "s2" {
		t.Fatalf("unexpected listing %+v", list)
	}
	if len(list[1].MemberIDs) != 0 {
		t.Fatalf("expected empty roster for s2, got %v", list[1].MemberIDs)
	}

	if missing, err := store.FindServer(ctx, "none"); err != nil || missing != nil {
		t.Fatalf("expected nil server, got %+v err=%v", missing, err)
	}
}

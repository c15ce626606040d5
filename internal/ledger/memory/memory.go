package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

type ownerRow struct {
	doc     []byte
	version int64
}

// Store is an in-process ledger.Store. Documents are kept encoded so callers
// never share memory with stored state.
type Store struct {
	mu      sync.RWMutex
	owners  map[string]ownerRow
	servers map[string]*ledger.Server
}

// New returns an empty store.
func New() *Store {
	return &Store{
		owners:  make(map[string]ownerRow),
		servers: make(map[string]*ledger.Server),
	}
}

func (s *Store) FindOwner(_ context.Context, userID string) (*ledger.Owner, error) {
	s.mu.RLock()
	row, ok := s.owners[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return ledger.DecodeOwner(row.doc, row.version)
}

func (s *Store) CreateOwner(_ context.Context, owner *ledger.Owner) (bool, error) {
	now := time.Now().UTC()
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = now
	}
	owner.UpdatedAt = now
	doc, err := ledger.EncodeOwner(owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.owners[owner.UserID]; exists {
		return false, nil
	}
	s.owners[owner.UserID] = ownerRow{doc: doc, version: 1}
	owner.Version = 1
	return true, nil
}

func (s *Store) UpdateOwner(_ context.Context, owner *ledger.Owner) error {
	doc, err := ledger.EncodeOwner(owner)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.owners[owner.UserID]
	if !ok {
		return ledger.ErrOwnerNotFound
	}
	if row.version != owner.Version {
		return ledger.ErrVersionConflict
	}
	s.owners[owner.UserID] = ownerRow{doc: doc, version: row.version + 1}
	owner.Version = row.version + 1
	return nil
}

func (s *Store) FindServer(_ context.Context, serverID string) (*ledger.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger.CloneServer(s.servers[serverID]), nil
}

func (s *Store) UpsertServer(_ context.Context, server *ledger.Server) error {
	cp := ledger.CloneServer(server)
	cp.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.servers[server.ServerID] = cp
	s.mu.Unlock()
	return nil
}

func (s *Store) ListServers(_ context.Context) ([]ledger.Server, error) {
	s.mu.RLock()
	out := make([]ledger.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, *ledger.CloneServer(srv))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

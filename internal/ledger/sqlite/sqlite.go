package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single writer connection keeps version checks and inserts serialised
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS owners (
	user_id TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS servers (
	server_id TEXT PRIMARY KEY,
	server_name TEXT NOT NULL DEFAULT '',
	icon TEXT NOT NULL DEFAULT '',
	member_ids TEXT NOT NULL DEFAULT '[]',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindOwner loads an owner document, returning nil when absent.
func (s *Store) FindOwner(ctx context.Context, userID string) (*ledger.Owner, error) {
	var (
		doc     string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT doc, version FROM owners WHERE user_id = ?`, userID).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ledger.DecodeOwner([]byte(doc), version)
}

// CreateOwner inserts the owner unless a record already exists.
func (s *Store) CreateOwner(ctx context.Context, owner *ledger.Owner) (bool, error) {
	now := time.Now().UTC()
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = now
	}
	owner.UpdatedAt = now
	doc, err := ledger.EncodeOwner(owner)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO owners(user_id, doc, version, created_at, updated_at)
VALUES(?, ?, 1, ?, ?)
ON CONFLICT(user_id) DO NOTHING`, owner.UserID, string(doc), owner.CreatedAt, owner.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	owner.Version = 1
	return true, nil
}

// UpdateOwner replaces the document if the stored version still matches.
func (s *Store) UpdateOwner(ctx context.Context, owner *ledger.Owner) error {
	doc, err := ledger.EncodeOwner(owner)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE owners SET doc = ?, version = version + 1, updated_at = ?
WHERE user_id = ? AND version = ?`, string(doc), time.Now().UTC(), owner.UserID, owner.Version)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOrConflict(ctx, owner.UserID)
	}
	owner.Version++
	return nil
}

func (s *Store) missingOrConflict(ctx context.Context, userID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM owners WHERE user_id = ?`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrOwnerNotFound
	}
	if err != nil {
		return err
	}
	return ledger.ErrVersionConflict
}

// FindServer loads a roster, returning nil when absent.
func (s *Store) FindServer(ctx context.Context, serverID string) (*ledger.Server, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT server_id, server_name, icon, member_ids, updated_at FROM servers WHERE server_id = ?`, serverID)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return srv, err
}

// UpsertServer writes the full roster record.
func (s *Store) UpsertServer(ctx context.Context, server *ledger.Server) error {
	members := server.MemberIDs
	if members == nil {
		members = []string{}
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO servers(server_id, server_name, icon, member_ids, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(server_id) DO UPDATE SET
	server_name = excluded.server_name,
	icon = excluded.icon,
	member_ids = excluded.member_ids,
	updated_at = excluded.updated_at`,
		server.ServerID, server.Name, server.Icon, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert server: %w", err)
	}
	return nil
}

// ListServers returns every roster ordered by id.
func (s *Store) ListServers(ctx context.Context) ([]ledger.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT server_id, server_name, icon, member_ids, updated_at FROM servers ORDER BY server_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *srv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (*ledger.Server, error) {
	var (
		srv     ledger.Server
		members string
	)
	if err := row.Scan(&srv.ServerID, &srv.Name, &srv.Icon, &members, &srv.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &srv.MemberIDs); err != nil {
		return nil, fmt.Errorf("decode members for %s: %w", srv.ServerID, err)
	}
	return &srv, nil
}

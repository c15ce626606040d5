package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger store using the provided DSN and connection pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
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
	doc JSONB NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS servers (
	server_id TEXT PRIMARY KEY,
	server_name TEXT NOT NULL DEFAULT '',
	icon TEXT NOT NULL DEFAULT '',
	member_ids TEXT[] NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_servers_member_ids ON servers USING GIN (member_ids);
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

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindOwner(ctx context.Context, userID string) (*ledger.Owner, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT doc, version FROM owners WHERE user_id = $1`, userID).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ledger.DecodeOwner(doc, version)
}

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
		INSERT INTO owners (user_id, doc, version, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, owner.UserID, doc, owner.CreatedAt, owner.UpdatedAt)
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

func (s *Store) UpdateOwner(ctx context.Context, owner *ledger.Owner) error {
	doc, err := ledger.EncodeOwner(owner)
	if err != nil {
		return err
	}
	var version int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE owners SET doc = $1, version = version + 1, updated_at = NOW()
		WHERE user_id = $2 AND version = $3
		RETURNING version
	`, doc, owner.UserID, owner.Version).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM owners WHERE user_id = $1)`, owner.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ledger.ErrOwnerNotFound
		}
		return ledger.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	owner.Version = version
	return nil
}

func (s *Store) FindServer(ctx context.Context, serverID string) (*ledger.Server, error) {
	var srv ledger.Server
	err := s.db.QueryRowContext(ctx, `
		SELECT server_id, server_name, icon, member_ids, updated_at
		FROM servers WHERE server_id = $1
	`, serverID).Scan(&srv.ServerID, &srv.Name, &srv.Icon, pq.Array(&srv.MemberIDs), &srv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *Store) UpsertServer(ctx context.Context, server *ledger.Server) error {
	members := server.MemberIDs
	if members == nil {
		members = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (server_id, server_name, icon, member_ids, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (server_id) DO UPDATE SET
			server_name = EXCLUDED.server_name,
			icon = EXCLUDED.icon,
			member_ids = EXCLUDED.member_ids,
			updated_at = NOW()
	`, server.ServerID, server.Name, server.Icon, pq.Array(members))
	if err != nil {
		return fmt.Errorf("upsert server: %w", err)
	}
	return nil
}

func (s *Store) ListServers(ctx context.Context) ([]ledger.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, server_name, icon, member_ids, updated_at
		FROM servers ORDER BY server_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Server
	for rows.Next() {
		var srv ledger.Server
		if err := rows.Scan(&srv.ServerID, &srv.Name, &srv.Icon, pq.Array(&srv.MemberIDs), &srv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// Package peerstore persists resolved Telegram peers (entity ID plus
// access hash) in SQLite. It is the local equivalent of the platform
// session's entity cache: by-ID message retrieval needs an access hash,
// and the store saves a full dialog rescan on every such request.
package peerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/tgchanapi/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// ErrNotFound indicates that no cached peer matches the query.
var ErrNotFound = errors.New("peer not found in cache")

// Kind values stored for cached peers.
const (
	KindChannel = "channel"
	KindUser    = "user"
	KindChat    = "chat"
)

// Peer is a cached Telegram entity reference.
type Peer struct {
	ID         int64     `db:"id"`
	AccessHash int64     `db:"access_hash"`
	Kind       string    `db:"kind"`
	Username   string    `db:"username"`
	Title      string    `db:"title"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Store provides access to the peer cache.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New opens (or creates) the peer cache at dbPath and applies
// migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to peer cache: %w", err)
	}

	// SQLite doesn't support concurrent writes, so max open conns = 1.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := applyMigrations(db.DB); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Error closing peer cache after migration failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Peer cache opened and migrations applied", "path", dbPath)
	return &Store{db: db, logger: logger.With("component", "peerstore")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or refreshes the given peers in one transaction.
func (s *Store) Upsert(ctx context.Context, peers []Peer) error {
	if len(peers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin peer upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const query = `
		INSERT INTO peers (id, access_hash, kind, username, title, updated_at)
		VALUES (:id, :access_hash, :kind, :username, :title, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			access_hash = excluded.access_hash,
			kind        = excluded.kind,
			username    = excluded.username,
			title       = excluded.title,
			updated_at  = excluded.updated_at`

	now := time.Now().UTC()
	for _, p := range peers {
		p.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return fmt.Errorf("failed to upsert peer %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit peer upsert: %w", err)
	}

	s.logger.Debug("Upserted peers", "count", len(peers))
	return nil
}

// ChannelByID returns the cached channel with the given ID, or
// ErrNotFound.
func (s *Store) ChannelByID(ctx context.Context, id int64) (Peer, error) {
	var p Peer
	err := s.db.GetContext(ctx, &p,
		`SELECT id, access_hash, kind, username, title, updated_at
		 FROM peers WHERE id = ? AND kind = ?`, id, KindChannel)
	if errors.Is(err, sql.ErrNoRows) {
		return Peer{}, ErrNotFound
	}
	if err != nil {
		return Peer{}, fmt.Errorf("failed to query peer by id: %w", err)
	}
	return p, nil
}

// ChannelByUsername returns the cached channel with the given username
// (case-insensitive), or ErrNotFound.
func (s *Store) ChannelByUsername(ctx context.Context, username string) (Peer, error) {
	var p Peer
	err := s.db.GetContext(ctx, &p,
		`SELECT id, access_hash, kind, username, title, updated_at
		 FROM peers WHERE username = ? COLLATE NOCASE AND kind = ?`, username, KindChannel)
	if errors.Is(err, sql.ErrNoRows) {
		return Peer{}, ErrNotFound
	}
	if err != nil {
		return Peer{}, fmt.Errorf("failed to query peer by username: %w", err)
	}
	return p, nil
}

func applyMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create embed source driver: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 database driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Package projects persists organization repositories as dashboard projects
// in Postgres. A repository is inserted once, keyed by its GitHub id, and
// never overwritten afterwards.
package projects

import (
	"context"
	"time"

	"github.com/cam3ron2/devcoins/internal/contrib"
	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// StatusOpen is the status given to newly synced projects.
const StatusOpen = "open"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id          BIGSERIAL PRIMARY KEY,
	github_id   BIGINT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	language    TEXT NOT NULL DEFAULT '',
	stars       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertSQL = `
INSERT INTO projects (github_id, name, description, url, status, language, stars, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (github_id) DO NOTHING`

const listSQL = `
SELECT id, github_id, name, description, url, status, language, stars, created_at, updated_at
FROM projects
ORDER BY name, github_id`

// Project is one stored project row.
type Project struct {
	ID          int64     `json:"id"`
	GitHubID    int64     `json:"githubId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	Language    string    `json:"language"`
	Stars       int       `json:"stars"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads and writes project rows.
type Store struct {
	db     querier
	close  func()
	logger *zap.Logger

	// Now is injected for testability.
	Now func() time.Time
}

// PoolConfig tunes the connection pool opened by Open.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

var newPool = pgxpool.NewWithConfig

// Open connects to databaseURL, verifies the connection and creates the
// projects table when missing.
func Open(ctx context.Context, databaseURL string, poolCfg PoolConfig, logger *zap.Logger) (*Store, error) {
	const op = "open projects store"

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, perr.WithOp(perr.Wrap(err, perr.ErrorCodeConfiguration, "invalid projects database url"), op)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, perr.WithOp(perr.FromPostgres(err, "connect to projects database"), op)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, perr.WithOp(perr.FromPostgres(err, "ping projects database"), op)
	}

	store := newStore(pool, pool.Close, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newStore(db querier, closeFn func(), logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, close: closeFn, logger: logger, Now: time.Now}
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// EnsureSchema creates the projects table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return perr.WithOp(perr.FromPostgres(err, "create projects table"), "ensure projects schema")
	}
	return nil
}

// Sync inserts every repository not stored yet and returns how many rows
// were added. Existing rows are left untouched.
func (s *Store) Sync(ctx context.Context, repos []contrib.Repository) (int, error) {
	const op = "sync projects"

	inserted := 0
	now := s.Now().UTC()
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		updatedAt := repo.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		tag, err := s.db.Exec(
			ctx,
			insertSQL,
			repo.ID,
			repo.Name,
			repo.Description,
			repo.URL,
			StatusOpen,
			repo.Language,
			repo.Stars,
			now,
			updatedAt,
		)
		if err != nil {
			return inserted, perr.WithOp(perr.FromPostgres(err, "insert project "+repo.Name), op)
		}
		inserted += int(tag.RowsAffected())
	}

	s.logger.Info("projects synced", zap.Int("repositories", len(repos)), zap.Int("inserted", inserted))
	return inserted, nil
}

// List returns every stored project ordered by name.
func (s *Store) List(ctx context.Context) ([]Project, error) {
	const op = "list projects"

	rows, err := s.db.Query(ctx, listSQL)
	if err != nil {
		return nil, perr.WithOp(perr.FromPostgres(err, "query projects"), op)
	}
	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Project, error) {
		var p Project
		err := row.Scan(
			&p.ID,
			&p.GitHubID,
			&p.Name,
			&p.Description,
			&p.URL,
			&p.Status,
			&p.Language,
			&p.Stars,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		return p, err
	})
	if err != nil {
		return nil, perr.WithOp(perr.FromPostgres(err, "scan projects"), op)
	}
	return projects, nil
}

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listing_history (
	id          BIGSERIAL PRIMARY KEY,
	entity_id   TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS listing_history_entity_idx ON listing_history (entity_id);

CREATE TABLE IF NOT EXISTS listings (
	entity_id  TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	brand      TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore keeps history and summaries in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, entityID string, payload []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO listing_history (entity_id, payload) VALUES ($1, $2)`,
		entityID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to record history for %s: %w", entityID, err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entityID, title, brand, url string) error {
	query := `
		INSERT INTO listings (entity_id, title, brand, url, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (entity_id) DO UPDATE SET
			title = EXCLUDED.title,
			brand = EXCLUDED.brand,
			url = EXCLUDED.url,
			updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.db.Exec(ctx, query, entityID, title, brand, url); err != nil {
		return fmt.Errorf("failed to upsert listing %s: %w", entityID, err)
	}
	return nil
}

// TrimHistory deletes the oldest history rows beyond maxEntries.
func (s *PostgresStore) TrimHistory(ctx context.Context, maxEntries int) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM listing_history
		WHERE id IN (
			SELECT id FROM listing_history
			ORDER BY recorded_at DESC, id DESC
			OFFSET $1
		)`, maxEntries)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("Trimmed listing history", "backend", "postgres", "deleted", n)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/domain"
)

// Repository keeps durable snapshots of the directory and of player profiles
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS grandmasters (
			username VARCHAR(64) PRIMARY KEY,
			position INT NOT NULL,
			first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS player_profiles (
			username VARCHAR(64) PRIMARY KEY,
			payload JSONB NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grandmasters_position ON grandmasters(position)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// ReplaceDirectory stores usernames as the current directory, in order, and
// reports which usernames were added and removed relative to the previous
// snapshot.
func (r *Repository) ReplaceDirectory(ctx context.Context, usernames []string) (added, removed []string, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	previous, err := previousUsernames(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	added, removed = domain.DiffDirectory(previous, usernames)

	now := r.now()
	batch := &pgx.Batch{}
	for i, username := range usernames {
		batch.Queue(`
			INSERT INTO grandmasters (username, position, first_seen, last_seen)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (username)
			DO UPDATE SET position = $2, last_seen = $3
		`, username, i, now)
	}
	if len(removed) > 0 {
		batch.Queue(`DELETE FROM grandmasters WHERE username = ANY($1)`, removed)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, nil, fmt.Errorf("replacing directory: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, nil, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing directory: %w", err)
	}
	return added, removed, nil
}

// ListDirectory returns the stored directory in its original order and the
// time it was last synchronized
func (r *Repository) ListDirectory(ctx context.Context) ([]string, time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT username, last_seen FROM grandmasters ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("listing directory: %w", err)
	}
	defer rows.Close()

	var (
		usernames []string
		syncedAt  time.Time
	)
	for rows.Next() {
		var (
			username string
			lastSeen time.Time
		)
		if err := rows.Scan(&username, &lastSeen); err != nil {
			return nil, time.Time{}, fmt.Errorf("scanning directory: %w", err)
		}
		usernames = append(usernames, username)
		if lastSeen.After(syncedAt) {
			syncedAt = lastSeen
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("iterating directory: %w", err)
	}

	if len(usernames) == 0 {
		return nil, time.Time{}, domain.ErrSnapshotNotFound
	}
	return usernames, syncedAt, nil
}

// UpsertProfile stores the latest fetched profile of a player
func (r *Repository) UpsertProfile(ctx context.Context, profile *domain.PlayerProfile, fetchedAt time.Time) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	query := `
		INSERT INTO player_profiles (username, payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username)
		DO UPDATE SET payload = $2, fetched_at = $3
	`
	if _, err := r.pool.Exec(ctx, query, domain.CacheKey(profile.Username), payload, fetchedAt); err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// GetProfile returns the stored profile of username and when it was fetched
func (r *Repository) GetProfile(ctx context.Context, username string) (*domain.PlayerProfile, time.Time, error) {
	query := `SELECT payload, fetched_at FROM player_profiles WHERE username = $1`

	var (
		payload   []byte
		fetchedAt time.Time
	)
	err := r.pool.QueryRow(ctx, query, domain.CacheKey(username)).Scan(&payload, &fetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, domain.ErrSnapshotNotFound
		}
		return nil, time.Time{}, fmt.Errorf("getting profile: %w", err)
	}

	var profile domain.PlayerProfile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, time.Time{}, fmt.Errorf("unmarshaling profile: %w", err)
	}
	return &profile, fetchedAt, nil
}

// DeleteProfiles removes stored profiles of the given usernames
func (r *Repository) DeleteProfiles(ctx context.Context, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	keys := make([]string, len(usernames))
	for i, u := range usernames {
		keys[i] = domain.CacheKey(u)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM player_profiles WHERE username = ANY($1)`, keys); err != nil {
		return fmt.Errorf("deleting profiles: %w", err)
	}
	return nil
}

func previousUsernames(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT username FROM grandmasters`)
	if err != nil {
		return nil, fmt.Errorf("reading previous directory: %w", err)
	}
	usernames, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning previous directory: %w", err)
	}
	return usernames, nil
}

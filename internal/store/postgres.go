package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS repositories (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT 'main',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			priority INTEGER NOT NULL DEFAULT 0,
			last_synced TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS target_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			force_mock_mode BOOLEAN NOT NULL DEFAULT FALSE,
			api_key_sealed BYTEA,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deploy_logs (
			id TEXT PRIMARY KEY,
			app_id TEXT NOT NULL,
			stack_name TEXT NOT NULL,
			status TEXT NOT NULL,
			stack_id INTEGER,
			error TEXT NOT NULL DEFAULT '',
			deployed_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateRepository(ctx context.Context, repo *api.RepositorySource) error {
	if _, err := s.GetRepositoryByName(ctx, repo.Name); err == nil {
		return ErrRepositoryExists
	}

	now := time.Now().UTC()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	query := `
	INSERT INTO repositories (name, url, branch, enabled, priority, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`
	return s.pool.QueryRow(ctx, query, repo.Name, repo.URL, repo.Branch, repo.Enabled, repo.Priority, repo.CreatedAt, repo.UpdatedAt).Scan(&repo.ID)
}

func (s *PostgresStore) getRepository(ctx context.Context, where string, arg any) (*api.RepositorySource, error) {
	query := `SELECT id, name, url, branch, enabled, priority, last_synced, created_at, updated_at FROM repositories WHERE ` + where
	row := s.pool.QueryRow(ctx, query, arg)

	var repo api.RepositorySource
	var lastSynced *time.Time
	err := row.Scan(&repo.ID, &repo.Name, &repo.URL, &repo.Branch, &repo.Enabled, &repo.Priority, &lastSynced, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRepositoryNotFound
		}
		return nil, err
	}
	if lastSynced != nil {
		repo.LastSynced = *lastSynced
	}
	return &repo, nil
}

func (s *PostgresStore) GetRepository(ctx context.Context, id int64) (*api.RepositorySource, error) {
	return s.getRepository(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetRepositoryByName(ctx context.Context, name string) (*api.RepositorySource, error) {
	return s.getRepository(ctx, `name = $1`, name)
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*api.RepositorySource, error) {
	return s.listRepositories(ctx, ``)
}

func (s *PostgresStore) ListEnabledRepositories(ctx context.Context) ([]*api.RepositorySource, error) {
	return s.listRepositories(ctx, `WHERE enabled = TRUE`)
}

func (s *PostgresStore) listRepositories(ctx context.Context, where string) ([]*api.RepositorySource, error) {
	query := `SELECT id, name, url, branch, enabled, priority, last_synced, created_at, updated_at FROM repositories ` + where + ` ORDER BY priority DESC, name ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*api.RepositorySource
	for rows.Next() {
		var repo api.RepositorySource
		var lastSynced *time.Time
		if err := rows.Scan(&repo.ID, &repo.Name, &repo.URL, &repo.Branch, &repo.Enabled, &repo.Priority, &lastSynced, &repo.CreatedAt, &repo.UpdatedAt); err != nil {
			return nil, err
		}
		if lastSynced != nil {
			repo.LastSynced = *lastSynced
		}
		repos = append(repos, &repo)
	}
	return repos, rows.Err()
}

func (s *PostgresStore) UpdateRepository(ctx context.Context, id int64, update api.RepositoryUpdate) (*api.RepositorySource, error) {
	repo, err := s.GetRepository(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Enabled != nil {
		repo.Enabled = *update.Enabled
	}
	if update.Priority != nil {
		repo.Priority = *update.Priority
	}
	repo.UpdatedAt = time.Now().UTC()

	query := `UPDATE repositories SET enabled = $1, priority = $2, updated_at = $3 WHERE id = $4`
	if _, err := s.pool.Exec(ctx, query, repo.Enabled, repo.Priority, repo.UpdatedAt, id); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *PostgresStore) UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE repositories SET last_synced = $1 WHERE id = $2`, syncedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *PostgresStore) GetTargetSettings(ctx context.Context) (*TargetSettings, error) {
	row := s.pool.QueryRow(ctx, `SELECT force_mock_mode, api_key_sealed, updated_at FROM target_settings WHERE id = 1`)

	var settings TargetSettings
	if err := row.Scan(&settings.ForceMockMode, &settings.APIKeySealed, &settings.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &TargetSettings{}, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (s *PostgresStore) SaveTargetSettings(ctx context.Context, settings *TargetSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	query := `
	INSERT INTO target_settings (id, force_mock_mode, api_key_sealed, updated_at)
	VALUES (1, $1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET
		force_mock_mode = EXCLUDED.force_mock_mode,
		api_key_sealed = EXCLUDED.api_key_sealed,
		updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query, settings.ForceMockMode, settings.APIKeySealed, settings.UpdatedAt)
	return err
}

func (s *PostgresStore) CreateDeployLog(ctx context.Context, log *api.DeployLog) error {
	query := `
	INSERT INTO deploy_logs (id, app_id, stack_name, status, stack_id, error, deployed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query, log.ID, log.AppID, log.StackName, log.Status, log.StackID, log.Error, log.DeployedAt)
	return err
}

func (s *PostgresStore) ListDeployLogs(ctx context.Context, appID string, limit int) ([]*api.DeployLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, app_id, stack_name, status, stack_id, error, deployed_at FROM deploy_logs`
	args := []any{}
	if appID != "" {
		query += ` WHERE app_id = $1 ORDER BY deployed_at DESC LIMIT $2`
		args = append(args, appID, limit)
	} else {
		query += ` ORDER BY deployed_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*api.DeployLog
	for rows.Next() {
		var entry api.DeployLog
		var stackID *int
		if err := rows.Scan(&entry.ID, &entry.AppID, &entry.StackName, &entry.Status, &stackID, &entry.Error, &entry.DeployedAt); err != nil {
			return nil, err
		}
		if stackID != nil {
			entry.StackID = *stackID
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

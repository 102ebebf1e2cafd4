package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the SQLite database and creates necessary tables.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT 'main',
		enabled INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		last_synced DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create repositories table: %w", err)
	}

	settingsQuery := `
	CREATE TABLE IF NOT EXISTS target_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		force_mock_mode INTEGER NOT NULL DEFAULT 0,
		api_key_sealed BLOB,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(settingsQuery); err != nil {
		return nil, fmt.Errorf("failed to create target_settings table: %w", err)
	}

	logsQuery := `
	CREATE TABLE IF NOT EXISTS deploy_logs (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL,
		stack_name TEXT NOT NULL,
		status TEXT NOT NULL,
		stack_id INTEGER,
		error TEXT NOT NULL DEFAULT '',
		deployed_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(logsQuery); err != nil {
		return nil, fmt.Errorf("failed to create deploy_logs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateRepository(ctx context.Context, repo *api.RepositorySource) error {
	if existing, err := s.GetRepositoryByName(ctx, repo.Name); err == nil && existing != nil {
		return ErrRepositoryExists
	}

	now := time.Now().UTC()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	query := `
	INSERT INTO repositories (name, url, branch, enabled, priority, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, repo.Name, repo.URL, repo.Branch, repo.Enabled, repo.Priority, repo.CreatedAt, repo.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	repo.ID = id
	return nil
}

const repositoryColumns = `id, name, url, branch, enabled, priority, last_synced, created_at, updated_at`

func scanRepository(row interface{ Scan(...any) error }) (*api.RepositorySource, error) {
	var repo api.RepositorySource
	var lastSynced sql.NullTime
	err := row.Scan(&repo.ID, &repo.Name, &repo.URL, &repo.Branch, &repo.Enabled, &repo.Priority, &lastSynced, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		repo.LastSynced = lastSynced.Time
	}
	return &repo, nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, id int64) (*api.RepositorySource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, ErrRepositoryNotFound
	}
	return repo, err
}

func (s *SQLiteStore) GetRepositoryByName(ctx context.Context, name string) (*api.RepositorySource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE name = ?`, name)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, ErrRepositoryNotFound
	}
	return repo, err
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*api.RepositorySource, error) {
	return s.listRepositories(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY priority DESC, name ASC`)
}

func (s *SQLiteStore) ListEnabledRepositories(ctx context.Context) ([]*api.RepositorySource, error) {
	return s.listRepositories(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE enabled = 1 ORDER BY priority DESC, name ASC`)
}

func (s *SQLiteStore) listRepositories(ctx context.Context, query string) ([]*api.RepositorySource, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*api.RepositorySource
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteStore) UpdateRepository(ctx context.Context, id int64, update api.RepositoryUpdate) (*api.RepositorySource, error) {
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

	query := `UPDATE repositories SET enabled = ?, priority = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, repo.Enabled, repo.Priority, repo.UpdatedAt, id); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *SQLiteStore) UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE repositories SET last_synced = ? WHERE id = ?`, syncedAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteRepository(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *SQLiteStore) GetTargetSettings(ctx context.Context) (*TargetSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT force_mock_mode, api_key_sealed, updated_at FROM target_settings WHERE id = 1`)

	var settings TargetSettings
	var sealed []byte
	if err := row.Scan(&settings.ForceMockMode, &sealed, &settings.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return &TargetSettings{}, nil
		}
		return nil, err
	}
	settings.APIKeySealed = sealed
	return &settings, nil
}

func (s *SQLiteStore) SaveTargetSettings(ctx context.Context, settings *TargetSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	query := `
	INSERT INTO target_settings (id, force_mock_mode, api_key_sealed, updated_at)
	VALUES (1, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		force_mock_mode = excluded.force_mock_mode,
		api_key_sealed = excluded.api_key_sealed,
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, settings.ForceMockMode, settings.APIKeySealed, settings.UpdatedAt)
	return err
}

func (s *SQLiteStore) CreateDeployLog(ctx context.Context, log *api.DeployLog) error {
	query := `
	INSERT INTO deploy_logs (id, app_id, stack_name, status, stack_id, error, deployed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, log.ID, log.AppID, log.StackName, log.Status, log.StackID, log.Error, log.DeployedAt)
	return err
}

func (s *SQLiteStore) ListDeployLogs(ctx context.Context, appID string, limit int) ([]*api.DeployLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, app_id, stack_name, status, stack_id, error, deployed_at FROM deploy_logs`
	args := []any{}
	if appID != "" {
		query += ` WHERE app_id = ?`
		args = append(args, appID)
	}
	query += ` ORDER BY deployed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*api.DeployLog
	for rows.Next() {
		var entry api.DeployLog
		var stackID sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.AppID, &entry.StackName, &entry.Status, &stackID, &entry.Error, &entry.DeployedAt); err != nil {
			return nil, err
		}
		if stackID.Valid {
			entry.StackID = int(stackID.Int64)
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dockhand/dockhand/internal/api"
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrRepositoryExists   = errors.New("repository already exists")
)

// Store defines the interface for data persistence.
type Store interface {
	CreateRepository(ctx context.Context, repo *api.RepositorySource) error
	GetRepository(ctx context.Context, id int64) (*api.RepositorySource, error)
	GetRepositoryByName(ctx context.Context, name string) (*api.RepositorySource, error)
	ListRepositories(ctx context.Context) ([]*api.RepositorySource, error)
	ListEnabledRepositories(ctx context.Context) ([]*api.RepositorySource, error)
	UpdateRepository(ctx context.Context, id int64, update api.RepositoryUpdate) (*api.RepositorySource, error)
	UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error
	DeleteRepository(ctx context.Context, id int64) error

	GetTargetSettings(ctx context.Context) (*TargetSettings, error)
	SaveTargetSettings(ctx context.Context, settings *TargetSettings) error

	CreateDeployLog(ctx context.Context, log *api.DeployLog) error
	ListDeployLogs(ctx context.Context, appID string, limit int) ([]*api.DeployLog, error)

	Close()
}

// TargetSettings persists deployment-target preferences. The API key is
// stored sealed by the credentials service; an empty slice means no key has
// been saved.
type TargetSettings struct {
	ForceMockMode bool
	APIKeySealed  []byte
	UpdatedAt     time.Time
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRepositoryCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repo := &api.RepositorySource{
		Name:     "official",
		URL:      "https://github.com/example/appstore",
		Branch:   "main",
		Enabled:  true,
		Priority: 10,
	}
	require.NoError(t, s.CreateRepository(ctx, repo))
	assert.NotZero(t, repo.ID)
	assert.False(t, repo.CreatedAt.IsZero())

	// Duplicate names are rejected.
	dup := &api.RepositorySource{Name: "official", URL: "https://elsewhere.example"}
	assert.ErrorIs(t, s.CreateRepository(ctx, dup), ErrRepositoryExists)

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "official", got.Name)
	assert.Equal(t, "https://github.com/example/appstore", got.URL)
	assert.True(t, got.Enabled)
	assert.True(t, got.LastSynced.IsZero())

	byName, err := s.GetRepositoryByName(ctx, "official")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, byName.ID)

	_, err = s.GetRepository(ctx, 9999)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)

	enabled := false
	priority := 5
	updated, err := s.UpdateRepository(ctx, repo.ID, api.RepositoryUpdate{Enabled: &enabled, Priority: &priority})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
	assert.Equal(t, 5, updated.Priority)

	_, err = s.UpdateRepository(ctx, 9999, api.RepositoryUpdate{Enabled: &enabled})
	assert.ErrorIs(t, err, ErrRepositoryNotFound)

	require.NoError(t, s.DeleteRepository(ctx, repo.ID))
	assert.ErrorIs(t, s.DeleteRepository(ctx, repo.ID), ErrRepositoryNotFound)
}

func TestListRepositoriesOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, repo := range []*api.RepositorySource{
		{Name: "beta", URL: "https://b.example", Branch: "main", Enabled: true, Priority: 5},
		{Name: "alpha", URL: "https://a.example", Branch: "main", Enabled: true, Priority: 5},
		{Name: "gamma", URL: "https://c.example", Branch: "main", Enabled: false, Priority: 10},
	} {
		require.NoError(t, s.CreateRepository(ctx, repo))
	}

	all, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gamma", all[0].Name, "priority descending first")
	assert.Equal(t, "alpha", all[1].Name, "name ascending as tiebreak")
	assert.Equal(t, "beta", all[2].Name)

	enabled, err := s.ListEnabledRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	for _, repo := range enabled {
		assert.True(t, repo.Enabled)
	}
}

func TestListRepositoriesCorruptRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRepository(ctx, &api.RepositorySource{
		Name: "good", URL: "https://example.com/good.git", Branch: "main", Enabled: true,
	}))

	// A timestamp that cannot scan into time.Time must surface as an error,
	// not silently shrink the result set.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (name, url, branch, enabled, priority, created_at, updated_at)
		VALUES ('broken', 'https://example.com/broken.git', 'main', 1, 0, 'not a timestamp', 'not a timestamp')`)
	require.NoError(t, err)

	_, err = s.ListRepositories(ctx)
	assert.Error(t, err)
}

func TestUpdateRepositorySyncTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repo := &api.RepositorySource{Name: "official", URL: "https://a.example", Branch: "main", Enabled: true}
	require.NoError(t, s.CreateRepository(ctx, repo))

	syncedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateRepositorySyncTime(ctx, repo.ID, syncedAt))

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, syncedAt, got.LastSynced, time.Second)

	assert.ErrorIs(t, s.UpdateRepositorySyncTime(ctx, 9999, syncedAt), ErrRepositoryNotFound)
}

func TestTargetSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No row yet: zero-value settings, not an error.
	settings, err := s.GetTargetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.ForceMockMode)
	assert.Empty(t, settings.APIKeySealed)

	require.NoError(t, s.SaveTargetSettings(ctx, &TargetSettings{
		ForceMockMode: true,
		APIKeySealed:  []byte{0x01, 0x02, 0x03},
	}))

	settings, err = s.GetTargetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.ForceMockMode)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, settings.APIKeySealed)

	// Saving again overwrites the singleton row.
	require.NoError(t, s.SaveTargetSettings(ctx, &TargetSettings{ForceMockMode: false}))
	settings, err = s.GetTargetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.ForceMockMode)
}

func TestDeployLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, appID := range []string{"jellyfin", "jellyfin", "gitea"} {
		require.NoError(t, s.CreateDeployLog(ctx, &api.DeployLog{
			ID:         string(rune('a' + i)),
			AppID:      appID,
			StackName:  appID + "-stack",
			Status:     "success",
			StackID:    i + 1,
			DeployedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListDeployLogs(ctx, "", 50)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gitea", all[0].AppID, "newest first")

	byApp, err := s.ListDeployLogs(ctx, "jellyfin", 50)
	require.NoError(t, err)
	require.Len(t, byApp, 2)
	for _, entry := range byApp {
		assert.Equal(t, "jellyfin", entry.AppID)
	}

	limited, err := s.ListDeployLogs(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

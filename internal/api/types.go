package api

import "time"

// RepositorySource describes one git-hosted app catalog to track.
// The sync layer treats it as read-only input; it is owned by the store.
type RepositorySource struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Branch     string    `json:"branch"`
	Enabled    bool      `json:"enabled"`
	Priority   int       `json:"priority"`
	LastSynced time.Time `json:"last_synced,omitzero"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// RepositoryCreate is the request body for registering a repository.
type RepositoryCreate struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Branch   string `json:"branch"`
	Priority int    `json:"priority"`
}

// RepositoryUpdate carries the mutable repository fields. Pointers
// distinguish "not provided" from zero values.
type RepositoryUpdate struct {
	Enabled  *bool `json:"enabled,omitempty"`
	Priority *int  `json:"priority,omitempty"`
}

// SyncResult summarizes one full catalog sync cycle.
type SyncResult struct {
	ReposSynced int      `json:"repositories_synced"`
	AppsLoaded  int      `json:"apps_loaded"`
	Errors      []string `json:"errors"`
}

// DeployRequest asks for an app to be submitted to the deployment target.
type DeployRequest struct {
	AppID           string            `json:"app_id,omitempty"`
	StackName       string            `json:"stack_name"`
	EndpointID      int               `json:"endpoint_id,omitempty"`
	EnvOverrides    map[string]string `json:"env_overrides,omitempty"`
	VolumeOverrides map[string]string `json:"volume_overrides,omitempty"`
}

// DeployResponse reports the outcome of a stack submission.
type DeployResponse struct {
	Success bool           `json:"success"`
	StackID int            `json:"stack_id,omitempty"`
	Message string         `json:"message"`
	Target  map[string]any `json:"target_response,omitempty"`
}

// DeployLog is one persisted deployment attempt.
type DeployLog struct {
	ID         string    `json:"id"`
	AppID      string    `json:"app_id"`
	StackName  string    `json:"stack_name"`
	Status     string    `json:"status"` // success, error
	StackID    int       `json:"stack_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	DeployedAt time.Time `json:"deployed_at"`
}

// APIResponse is a standard wrapper for API responses.
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

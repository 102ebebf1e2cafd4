// Package controller wires the catalog, sync coordinator, store, and
// deployment client into the HTTP API and the background sync scheduler.
package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/dockhand/dockhand/internal/catalog"
	"github.com/dockhand/dockhand/internal/compose"
	"github.com/dockhand/dockhand/internal/credentials"
	"github.com/dockhand/dockhand/internal/deploy"
	"github.com/dockhand/dockhand/internal/gitsync"
	"github.com/dockhand/dockhand/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for the catalog service.
type Handler struct {
	Store       store.Store
	Coordinator *gitsync.Coordinator
	Catalog     *catalog.Catalog
	Deployer    deploy.Client
	Logger      *slog.Logger

	// Credentials seals the deployment-target API key before it is
	// persisted. Optional; without it settings updates reject API keys.
	Credentials *credentials.Service

	// DefaultEndpointID is used when a deploy request carries none.
	DefaultEndpointID int
}

// NewHandler creates a controller handler.
func NewHandler(s store.Store, coordinator *gitsync.Coordinator, deployer deploy.Client, logger *slog.Logger) *Handler {
	return &Handler{
		Store:             s,
		Coordinator:       coordinator,
		Catalog:           coordinator.Catalog(),
		Deployer:          deployer,
		Logger:            logger,
		DefaultEndpointID: 1,
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

// appSummary is the list/search view of an app, without the manifest body.
type appSummary struct {
	AppID       string   `json:"app_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Icon        string   `json:"icon,omitempty"`
	Category    string   `json:"category,omitempty"`
	Repository  string   `json:"repository_source"`
	Tags        []string `json:"tags,omitempty"`
}

func summarize(app *compose.App) appSummary {
	return appSummary{
		AppID:       app.ID,
		Title:       app.Title,
		Description: app.Description,
		Icon:        app.Icon,
		Category:    app.Category,
		Repository:  app.Repository,
		Tags:        app.Tags,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	targetOK := true
	if h.Deployer != nil {
		targetOK = h.Deployer.Validate(r.Context())
	}

	status := "ok"
	if !targetOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"service":          "dockhand",
		"target_connected": targetOK,
		"apps_loaded":      h.Catalog.Len(),
	})
}

// Status handles GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	apps := h.Catalog.All()
	repos := make(map[string]bool)
	for _, app := range apps {
		repos[app.Repository] = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"last_sync":           h.Catalog.LastSync(),
		"apps_loaded":         len(apps),
		"repositories_synced": len(repos),
		"healthy":             len(apps) > 0,
	})
}

// ListApps handles GET /apps with optional category/repository filters and
// pagination. Results are ordered by app id so pages are stable.
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	repository := r.URL.Query().Get("repository")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be non-negative", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	var filtered []*compose.App
	for _, app := range h.Catalog.All() {
		if category != "" && !strings.EqualFold(app.Category, category) {
			continue
		}
		if repository != "" && !strings.EqualFold(app.Repository, repository) {
			continue
		}
		filtered = append(filtered, app)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })

	total := len(filtered)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	summaries := make([]appSummary, 0, end-offset)
	for _, app := range filtered[offset:end] {
		summaries = append(summaries, summarize(app))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"offset": offset,
		"limit":  limit,
		"apps":   summaries,
	})
}

// SearchApps handles GET /apps/search?q=
func (h *Handler) SearchApps(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	needle := strings.ToLower(query)

	var matches []*compose.App
	for _, app := range h.Catalog.All() {
		if strings.Contains(strings.ToLower(app.Title), needle) ||
			strings.Contains(strings.ToLower(app.Description), needle) ||
			tagMatches(app.Tags, needle) {
			matches = append(matches, app)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	if len(matches) > 50 {
		matches = matches[:50]
	}

	summaries := make([]appSummary, 0, len(matches))
	for _, app := range matches {
		summaries = append(summaries, summarize(app))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":         query,
		"results_count": len(summaries),
		"apps":          summaries,
	})
}

func tagMatches(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// GetApp handles GET /apps/{id} returning the full record including the
// raw manifest.
func (h *Handler) GetApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, ok := h.Catalog.Get(id)
	if !ok {
		http.Error(w, "App not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// GetAppSchema handles GET /apps/{id}/schema returning the customizable
// parameter and bind-mount schema derived from the app's raw manifest.
func (h *Handler) GetAppSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, ok := h.Catalog.Get(id)
	if !ok {
		http.Error(w, "App not found", http.StatusNotFound)
		return
	}

	parameters := compose.ExtractSchema(app.Manifest)
	volumes := compose.ExtractVolumes(app.Manifest)
	if parameters == nil {
		parameters = []compose.ComposeParameter{}
	}
	if volumes == nil {
		volumes = []compose.VolumeParameter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app_id":     id,
		"parameters": parameters,
		"volumes":    volumes,
	})
}

// DeployApp handles POST /apps/{id}/deploy
func (h *Handler) DeployApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, ok := h.Catalog.Get(id)
	if !ok {
		http.Error(w, "App not found", http.StatusNotFound)
		return
	}

	var req api.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.StackName) == "" {
		http.Error(w, "stack_name is required", http.StatusBadRequest)
		return
	}
	req.AppID = id

	// Override values must satisfy the types the schema declares for them.
	if err := validateOverrides(app.Manifest, req.EnvOverrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	manifest, err := deploy.Prepare(app.Manifest, req.EnvOverrides, req.VolumeOverrides)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	endpointID := req.EndpointID
	if endpointID == 0 {
		endpointID = h.DefaultEndpointID
	}

	response, err := h.Deployer.DeployStack(r.Context(), deploy.StackRequest{
		Name:       req.StackName,
		Manifest:   manifest,
		EndpointID: endpointID,
		Env:        req.EnvOverrides,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.recordDeploy(r, &req, response)
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) recordDeploy(r *http.Request, req *api.DeployRequest, response *api.DeployResponse) {
	status := "success"
	errMessage := ""
	if !response.Success {
		status = "error"
		errMessage = response.Message
	}
	entry := &api.DeployLog{
		ID:         uuid.NewString(),
		AppID:      req.AppID,
		StackName:  req.StackName,
		Status:     status,
		StackID:    response.StackID,
		Error:      errMessage,
		DeployedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateDeployLog(r.Context(), entry); err != nil && h.Logger != nil {
		h.Logger.Warn("Failed to record deploy log", "app_id", req.AppID, "error", err)
	}
}

func validateOverrides(manifest string, overrides map[string]string) error {
	if len(overrides) == 0 {
		return nil
	}
	schema := compose.ExtractSchema(manifest)
	byName := make(map[string]compose.ComposeParameter, len(schema))
	for _, param := range schema {
		byName[param.Name] = param
	}
	for name, value := range overrides {
		param, known := byName[name]
		if !known {
			continue
		}
		if err := param.Validate(value); err != nil {
			return err
		}
	}
	return nil
}

// ListDeployLogs handles GET /apps/{id}/deployments
func (h *Handler) ListDeployLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logs, err := h.Store.ListDeployLogs(r.Context(), id, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []*api.DeployLog{}
	}
	writeJSON(w, http.StatusOK, api.APIResponse{Data: logs})
}

// ListCategories handles GET /api/v1/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, app := range h.Catalog.All() {
		if app.Category != "" {
			counts[app.Category]++
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]map[string]any, 0, len(names))
	for _, name := range names {
		categories = append(categories, map[string]any{"name": name, "count": counts[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      len(categories),
		"categories": categories,
	})
}

// ListRepositories handles GET /api/v1/repositories
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.Store.ListRepositories(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if repos == nil {
		repos = []*api.RepositorySource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":        len(repos),
		"repositories": repos,
	})
}

// CreateRepository handles POST /api/v1/repositories
func (h *Handler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var req api.RepositoryCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.URL == "" {
		http.Error(w, "name and url are required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.URL, "http") {
		http.Error(w, "Invalid URL format", http.StatusBadRequest)
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}

	repo := &api.RepositorySource{
		Name:     req.Name,
		URL:      req.URL,
		Branch:   req.Branch,
		Enabled:  true,
		Priority: req.Priority,
	}
	if err := h.Store.CreateRepository(r.Context(), repo); err != nil {
		if errors.Is(err, store.ErrRepositoryExists) {
			http.Error(w, "Repository already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.Logger != nil {
		h.Logger.Info("Repository created", "name", repo.Name, "url", repo.URL)
	}
	writeJSON(w, http.StatusCreated, api.APIResponse{Message: "Repository created", Data: repo})
}

// UpdateRepository handles PUT /api/v1/repositories/{id}
func (h *Handler) UpdateRepository(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid repository id", http.StatusBadRequest)
		return
	}

	var update api.RepositoryUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	repo, err := h.Store.UpdateRepository(r.Context(), id, update)
	if err != nil {
		if errors.Is(err, store.ErrRepositoryNotFound) {
			http.Error(w, "Repository not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, api.APIResponse{Message: "Repository updated", Data: repo})
}

// DeleteRepository handles DELETE /api/v1/repositories/{id}
func (h *Handler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid repository id", http.StatusBadRequest)
		return
	}

	repo, err := h.Store.GetRepository(r.Context(), id)
	if err != nil {
		http.Error(w, "Repository not found", http.StatusNotFound)
		return
	}
	if err := h.Store.DeleteRepository(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("Repository deleted", "name", repo.Name)
	}
	writeJSON(w, http.StatusOK, api.APIResponse{Message: "Repository '" + repo.Name + "' deleted"})
}

// SyncRepository handles POST /api/v1/repositories/{id}/sync forcing an
// on-demand reconcile and rescan of one repository.
func (h *Handler) SyncRepository(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid repository id", http.StatusBadRequest)
		return
	}

	repo, err := h.Store.GetRepository(r.Context(), id)
	if err != nil {
		http.Error(w, "Repository not found", http.StatusNotFound)
		return
	}
	if !repo.Enabled {
		http.Error(w, "Repository is disabled", http.StatusBadRequest)
		return
	}

	loaded, err := h.Coordinator.SyncOne(r.Context(), repo)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("Repository sync failed", "name", repo.Name, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": "Failed to sync repository '" + repo.Name + "'",
		})
		return
	}

	if err := h.Store.UpdateRepositorySyncTime(r.Context(), id, time.Now().UTC()); err != nil && h.Logger != nil {
		h.Logger.Warn("Failed to record repository sync time", "name", repo.Name, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"message":     "Repository '" + repo.Name + "' synced",
		"apps_loaded": loaded,
	})
}

// ClearCache handles POST /api/v1/cache/clear: wipe every checkout, then
// resync all enabled repositories from scratch.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Coordinator.ClearCache()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sources, err := h.Store.ListEnabledRepositories(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result := h.Coordinator.SyncAll(r.Context(), sources)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Cache cleared and repositories resynced",
		"deleted_repos": removed,
		"sync_result":   result,
	})
}

// GetSettings handles GET /api/v1/settings. The API key itself is never
// returned, only whether one is stored.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetTargetSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"force_mock_mode":    settings.ForceMockMode,
		"api_key_configured": len(settings.APIKeySealed) > 0,
		"updated_at":         settings.UpdatedAt,
	})
}

// SaveSettings handles PUT /api/v1/settings. An omitted api_key keeps the
// stored one; a provided key is sealed before persisting.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ForceMockMode bool   `json:"force_mock_mode"`
		APIKey        string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	current, err := h.Store.GetTargetSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	next := &store.TargetSettings{
		ForceMockMode: req.ForceMockMode,
		APIKeySealed:  current.APIKeySealed,
	}
	if req.APIKey != "" {
		if !h.Credentials.Enabled() {
			http.Error(w, "Credential encryption is not configured", http.StatusBadRequest)
			return
		}
		sealed, err := h.Credentials.SealString(req.APIKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		next.APIKeySealed = sealed
	}

	if err := h.Store.SaveTargetSettings(r.Context(), next); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("Target settings saved", "force_mock_mode", next.ForceMockMode, "api_key_updated", req.APIKey != "")
	}
	writeJSON(w, http.StatusOK, api.APIResponse{Message: "Settings saved. Restart to apply target changes."})
}

// CacheStatus handles GET /api/v1/cache/status
func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Coordinator.Status())
}

// MockStacks handles GET /api/v1/mock/stacks (mock mode only).
func (h *Handler) MockStacks(w http.ResponseWriter, r *http.Request) {
	mock, ok := h.Deployer.(*deploy.MockClient)
	if !ok {
		http.Error(w, "Not in mock mode", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   "mock",
		"stats":  mock.Stats(),
		"stacks": mock.ListStacks(),
	})
}

// MockForceError handles POST /api/v1/mock/force-error (mock mode only).
// It arms or clears a simulated deploy failure for one endpoint.
func (h *Handler) MockForceError(w http.ResponseWriter, r *http.Request) {
	mock, ok := h.Deployer.(*deploy.MockClient)
	if !ok {
		http.Error(w, "Not in mock mode", http.StatusBadRequest)
		return
	}

	var req struct {
		EndpointID int    `json:"endpoint_id"`
		Message    string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mock.ForceError(req.EndpointID, req.Message)

	message := "Forced error armed"
	if req.Message == "" {
		message = "Forced error cleared"
	}
	writeJSON(w, http.StatusOK, api.APIResponse{Message: message})
}

// MockReset handles POST /api/v1/mock/reset (mock mode only).
func (h *Handler) MockReset(w http.ResponseWriter, r *http.Request) {
	mock, ok := h.Deployer.(*deploy.MockClient)
	if !ok {
		http.Error(w, "Not in mock mode", http.StatusBadRequest)
		return
	}
	mock.Reset()
	writeJSON(w, http.StatusOK, api.APIResponse{Message: "Mock target state reset"})
}

// Routes mounts every handler on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	r.Route("/apps", func(r chi.Router) {
		r.Get("/", h.ListApps)
		r.Get("/search", h.SearchApps)
		r.Get("/{id}", h.GetApp)
		r.Get("/{id}/schema", h.GetAppSchema)
		r.Get("/{id}/deployments", h.ListDeployLogs)
		r.Post("/{id}/deploy", h.DeployApp)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", h.ListRepositories)
			r.Post("/", h.CreateRepository)
			r.Put("/{id}", h.UpdateRepository)
			r.Delete("/{id}", h.DeleteRepository)
			r.Post("/{id}/sync", h.SyncRepository)
		})
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.SaveSettings)
		})
		r.Route("/cache", func(r chi.Router) {
			r.Post("/clear", h.ClearCache)
			r.Get("/status", h.CacheStatus)
		})
		r.Route("/mock", func(r chi.Router) {
			r.Get("/stacks", h.MockStacks)
			r.Post("/force-error", h.MockForceError)
			r.Post("/reset", h.MockReset)
		})
	})
}

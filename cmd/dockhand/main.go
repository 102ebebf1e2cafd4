package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/dockhand/dockhand/internal/catalog"
	"github.com/dockhand/dockhand/internal/controller"
	"github.com/dockhand/dockhand/internal/credentials"
	"github.com/dockhand/dockhand/internal/deploy"
	"github.com/dockhand/dockhand/internal/gitsync"
	"github.com/dockhand/dockhand/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dataDir := "/data"
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		// Fallback for local development if /data doesn't exist
		dataDir = "."
	}

	var dbStore store.Store
	var err error

	dbType := os.Getenv("DOCKHAND_DB_TYPE")
	if dbType == "postgres" {
		connString := os.Getenv("DOCKHAND_DB_CONNECTION_STRING")
		if connString == "" {
			logger.Error("DOCKHAND_DB_CONNECTION_STRING is required for postgres")
			os.Exit(1)
		}
		dbStore, err = store.NewPostgresStore(context.Background(), connString)
		if err != nil {
			logger.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using PostgreSQL store")
	} else {
		// Default to SQLite
		dbPath := filepath.Join(dataDir, "dockhand.db")

		dbStore, err = store.NewSQLiteStore(dbPath)
		if err != nil {
			logger.Error("Failed to initialize sqlite store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite store")
	}
	defer dbStore.Close()

	credentialService, err := credentials.NewServiceFromEnv(filepath.Join(dataDir, "dockhand-encryption.key"))
	if err != nil {
		logger.Error("Failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}
	logger.Info("Credential encryption is enabled", "source", credentialService.KeySource())

	cacheDir := os.Getenv("DOCKHAND_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = filepath.Join(dataDir, "cache")
	}
	coordinator := gitsync.NewCoordinator(cacheDir, catalog.New(), logger)
	coordinator.OnRepoSynced = func(source *api.RepositorySource, appsLoaded int) {
		if err := dbStore.UpdateRepositorySyncTime(context.Background(), source.ID, time.Now().UTC()); err != nil {
			logger.Warn("Failed to record repository sync time", "repository", source.Name, "error", err)
		}
	}

	deployer := selectDeployer(context.Background(), dbStore, credentialService, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulerCfg, err := controller.LoadSchedulerConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load scheduler config", "error", err)
		os.Exit(1)
	}
	scheduler := controller.NewScheduler(dbStore, coordinator, logger, schedulerCfg)
	go scheduler.Run(ctx)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	handler := controller.NewHandler(dbStore, coordinator, deployer, logger)
	handler.Credentials = credentialService
	if raw := os.Getenv("DOCKHAND_DEFAULT_ENDPOINT_ID"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil && id > 0 {
			handler.DefaultEndpointID = id
		}
	}
	handler.Routes(r)

	addr := os.Getenv("DOCKHAND_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("Starting dockhand", "addr", addr, "cache_dir", cacheDir)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// selectDeployer picks the deployment target client. Mode "mock" and "real"
// are explicit; "auto" (the default) uses the real target only when it is
// configured, reachable, and not overridden by persisted settings.
func selectDeployer(ctx context.Context, dbStore store.Store, creds *credentials.Service, logger *slog.Logger) deploy.Client {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("DOCKHAND_TARGET_MODE")))
	if mode == "" {
		mode = "auto"
	}
	if mode == "mock" {
		logger.Info("Using mock deployment target", "reason", "DOCKHAND_TARGET_MODE=mock")
		return deploy.NewMockClient(logger)
	}

	settings, err := dbStore.GetTargetSettings(ctx)
	if err != nil {
		logger.Warn("Failed to load target settings", "error", err)
	}
	if settings != nil && settings.ForceMockMode && mode != "real" {
		logger.Info("Using mock deployment target", "reason", "force_mock_mode setting")
		return deploy.NewMockClient(logger)
	}

	targetURL := strings.TrimSpace(os.Getenv("DOCKHAND_TARGET_URL"))
	apiKey := strings.TrimSpace(os.Getenv("DOCKHAND_TARGET_API_KEY"))
	if apiKey == "" && settings != nil && len(settings.APIKeySealed) > 0 {
		opened, err := creds.OpenString(settings.APIKeySealed)
		if err != nil {
			logger.Warn("Failed to decrypt stored target API key", "error", err)
		} else {
			apiKey = opened
		}
	}

	if targetURL == "" || apiKey == "" {
		if mode == "real" {
			logger.Error("DOCKHAND_TARGET_URL and an API key are required for real mode")
			os.Exit(1)
		}
		logger.Info("Using mock deployment target", "reason", "no target configured")
		return deploy.NewMockClient(logger)
	}

	insecure := strings.EqualFold(os.Getenv("DOCKHAND_TARGET_INSECURE"), "true")
	client := deploy.NewHTTPClient(targetURL, apiKey, insecure, logger)
	if !client.Validate(ctx) {
		if mode == "real" {
			logger.Error("Deployment target is unreachable", "url", targetURL)
			os.Exit(1)
		}
		logger.Warn("Deployment target unreachable, falling back to mock", "url", targetURL)
		return deploy.NewMockClient(logger)
	}

	logger.Info("Using real deployment target", "url", targetURL)
	return client
}

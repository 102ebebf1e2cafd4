package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dockhand/dockhand/internal/compose"
)

// Scanner walks a repository checkout's app directory and parses every
// qualifying app manifest.
type Scanner struct {
	Logger *slog.Logger
}

// NewScanner creates a scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	return &Scanner{Logger: logger}
}

// Scan enumerates the immediate subdirectories of appRoot. A subdirectory
// qualifies only if it contains the recognized manifest filename; anything
// else is skipped silently. The app id is the lowercased directory name.
// Each qualifying directory is parsed independently: a parse failure is
// returned alongside the results and never aborts scanning of siblings.
// A missing or empty appRoot yields an empty map, not an error.
func (s *Scanner) Scan(appRoot, repository string) (map[string]*compose.App, []error) {
	apps := make(map[string]*compose.App)

	entries, err := os.ReadDir(appRoot)
	if err != nil {
		return apps, nil
	}

	var failures []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(appRoot, entry.Name(), compose.ManifestFilename)
		manifest, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}

		appID := strings.ToLower(entry.Name())
		app, err := compose.Parse(string(manifest), appID, repository)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("Skipping unparseable app manifest", "app_id", appID, "repository", repository, "error", err)
			}
			failures = append(failures, fmt.Errorf("app %s: %w", appID, err))
			continue
		}
		apps[appID] = app
	}
	return apps, failures
}

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dockhand/dockhand/internal/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeApp(t *testing.T, root, dir, manifest string) {
	t.Helper()
	appDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, compose.ManifestFilename), []byte(manifest), 0o644))
}

const validManifest = `services:
  app:
    image: nginx
x-casaos:
  title: Test App
`

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "Jellyfin", validManifest)
	writeApp(t, root, "gitea", validManifest)

	// An empty directory and a stray file must both be skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no-manifest"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0o644))

	scanner := NewScanner(nil)
	apps, failures := scanner.Scan(root, "official")

	assert.Empty(t, failures)
	require.Len(t, apps, 2)
	assert.Contains(t, apps, "jellyfin", "app ids are lowercased directory names")
	assert.Contains(t, apps, "gitea")
	assert.Equal(t, "official", apps["jellyfin"].Repository)
	assert.Equal(t, "Test App", apps["jellyfin"].Title)
}

func TestScanParseFailureDoesNotAbortSiblings(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "good", validManifest)
	writeApp(t, root, "broken", "services: {}\n")
	writeApp(t, root, "invalid", "services: [unclosed")

	scanner := NewScanner(nil)
	apps, failures := scanner.Scan(root, "official")

	require.Len(t, apps, 1)
	assert.Contains(t, apps, "good")
	assert.Len(t, failures, 2)
}

func TestScanMissingRoot(t *testing.T) {
	scanner := NewScanner(nil)
	apps, failures := scanner.Scan(filepath.Join(t.TempDir(), "does-not-exist"), "official")
	assert.Empty(t, failures)
	assert.NotNil(t, apps)
	assert.Empty(t, apps)
}

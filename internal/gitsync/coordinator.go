// Package gitsync reconciles local repository caches against their git
// remotes and drives catalog rebuilds from the synced checkouts.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/dockhand/dockhand/internal/catalog"
	"github.com/dockhand/dockhand/internal/compose"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// AppsSubdir is the directory inside a repository checkout that holds one
// subdirectory per app.
const AppsSubdir = "Apps"

// ErrBranchNotFound reports a configured branch missing on the remote. The
// existing checkout is left untouched so last-known-good apps stay servable.
var ErrBranchNotFound = errors.New("branch not found on remote")

// Coordinator keeps one cache directory per repository name in sync with its
// remote and rebuilds the catalog from the checkouts. Reconciliation for a
// single repository is serialized through a named lock; distinct
// repositories may be reconciled concurrently.
type Coordinator struct {
	CacheDir string
	Logger   *slog.Logger

	// CloneDepth is the history depth for fresh clones.
	CloneDepth int

	// OnRepoSynced, when set, is invoked after each successful per-repo
	// reconcile+scan, outside the repository lock.
	OnRepoSynced func(source *api.RepositorySource, appsLoaded int)

	catalog *catalog.Catalog
	scanner *catalog.Scanner

	syncMu sync.Mutex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator creates a coordinator publishing into cat.
func NewCoordinator(cacheDir string, cat *catalog.Catalog, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		CacheDir:   cacheDir,
		Logger:     logger,
		CloneDepth: 1,
		catalog:    cat,
		scanner:    catalog.NewScanner(logger),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Catalog returns the catalog this coordinator publishes into.
func (c *Coordinator) Catalog() *catalog.Catalog {
	return c.catalog
}

func (c *Coordinator) repoLock(name string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[name] = lock
	}
	return lock
}

// Reconcile brings the local cache for source in line with its remote.
// Failure never corrupts or removes an existing good checkout, except on
// the URL-mismatch path where the stale cache is deleted before re-cloning.
func (c *Coordinator) Reconcile(ctx context.Context, source *api.RepositorySource) error {
	lock := c.repoLock(source.Name)
	lock.Lock()
	defer lock.Unlock()
	return c.reconcile(ctx, source)
}

// reconcileAndScan reconciles source and scans the checkout under the same
// repository lock. Scanning outside the lock would let a concurrent
// reconcile delete the cache directory mid-scan on the URL-mismatch path
// and publish a partial app set.
func (c *Coordinator) reconcileAndScan(ctx context.Context, source *api.RepositorySource) (map[string]*compose.App, []error, error) {
	lock := c.repoLock(source.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := c.reconcile(ctx, source); err != nil {
		return nil, nil, err
	}
	apps, failures := c.scanner.Scan(filepath.Join(c.CacheDir, source.Name, AppsSubdir), source.Name)
	return apps, failures, nil
}

func (c *Coordinator) reconcile(ctx context.Context, source *api.RepositorySource) error {
	path := filepath.Join(c.CacheDir, source.Name)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return c.clone(ctx, source, path)
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open cache for %s: %w", source.Name, err)
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return fmt.Errorf("cache for %s has no origin remote: %w", source.Name, err)
	}

	// A changed remote URL invalidates the whole cache: delete and re-clone
	// rather than keeping stale history under the old remote.
	if urls := remote.Config().URLs; len(urls) > 0 && urls[0] != source.URL {
		if c.Logger != nil {
			c.Logger.Warn("Remote URL mismatch, re-cloning",
				"repository", source.Name, "cached", urls[0], "configured", source.URL)
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove stale cache for %s: %w", source.Name, err)
		}
		return c.clone(ctx, source, path)
	}

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return fmt.Errorf("list remote refs for %s: %w", source.Name, err)
	}
	branchRef := plumbing.NewBranchReferenceName(source.Branch)
	found := false
	for _, ref := range refs {
		if ref.Name() == branchRef {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s (repository %s)", ErrBranchNotFound, source.Branch, source.Name)
	}

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", source.Branch, source.Branch))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{refSpec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", source.Name, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, source.Branch), true)
	if err != nil {
		return fmt.Errorf("resolve remote branch %s for %s: %w", source.Branch, source.Name, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree for %s: %w", source.Name, err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return fmt.Errorf("checkout %s for %s: %w", remoteRef.Hash(), source.Name, err)
	}

	if c.Logger != nil {
		c.Logger.Debug("Repository updated", "repository", source.Name, "commit", remoteRef.Hash().String())
	}
	return nil
}

// clone performs a fresh shallow clone of the configured branch. Any
// failure leaves no cache directory behind.
func (c *Coordinator) clone(ctx context.Context, source *api.RepositorySource, path string) error {
	if c.Logger != nil {
		c.Logger.Info("Cloning repository", "repository", source.Name, "url", source.URL, "branch", source.Branch)
	}
	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:           source.URL,
		ReferenceName: plumbing.NewBranchReferenceName(source.Branch),
		SingleBranch:  true,
		Depth:         c.CloneDepth,
	})
	if err != nil {
		_ = os.RemoveAll(path)
		return fmt.Errorf("clone %s: %w", source.Name, err)
	}
	return nil
}

// SyncAll reconciles every enabled source and rebuilds the catalog from the
// results, publishing the replacement with a single swap. Sources are
// processed by priority (highest first, name as tiebreak); when two
// repositories produce the same app id the higher-priority repository wins.
func (c *Coordinator) SyncAll(ctx context.Context, sources []*api.RepositorySource) api.SyncResult {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	ordered := make([]*api.RepositorySource, 0, len(sources))
	for _, source := range sources {
		if source != nil && source.Enabled {
			ordered = append(ordered, source)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	result := api.SyncResult{Errors: []string{}}
	fresh := make(map[string]*compose.App)

	for _, source := range ordered {
		apps, failures, err := c.reconcileAndScan(ctx, source)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Error("Repository sync failed", "repository", source.Name, "error", err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("failed to sync %s: %v", source.Name, err))
			continue
		}
		result.ReposSynced++

		for _, failure := range failures {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", source.Name, failure))
		}

		loaded := 0
		for id, app := range apps {
			if _, taken := fresh[id]; taken {
				if c.Logger != nil {
					c.Logger.Warn("App id already provided by a higher-priority repository",
						"app_id", id, "repository", source.Name)
				}
				continue
			}
			fresh[id] = app
			loaded++
		}
		result.AppsLoaded += loaded

		if c.Logger != nil {
			c.Logger.Info("Repository synced", "repository", source.Name, "apps", loaded)
		}
		if c.OnRepoSynced != nil {
			c.OnRepoSynced(source, loaded)
		}
	}

	c.catalog.Replace(fresh)
	return result
}

// SyncOne reconciles and rescans a single repository on demand, replacing
// that repository's apps in the published catalog. Apps from other
// repositories are carried over unchanged.
func (c *Coordinator) SyncOne(ctx context.Context, source *api.RepositorySource) (int, error) {
	apps, failures, err := c.reconcileAndScan(ctx, source)
	if err != nil {
		return 0, err
	}
	for _, failure := range failures {
		if c.Logger != nil {
			c.Logger.Warn("App skipped during sync", "repository", source.Name, "error", failure)
		}
	}

	next := make(map[string]*compose.App)
	for id, app := range c.catalog.All() {
		if app.Repository != source.Name {
			next[id] = app
		}
	}
	for id, app := range apps {
		next[id] = app
	}
	c.catalog.Replace(next)

	if c.OnRepoSynced != nil {
		c.OnRepoSynced(source, len(apps))
	}
	return len(apps), nil
}

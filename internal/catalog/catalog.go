// Package catalog holds the in-memory app catalog and the repository
// checkout scanner that feeds it.
package catalog

import (
	"sync"
	"time"

	"github.com/dockhand/dockhand/internal/compose"
)

// Catalog maps app id to its normalized record. It is rebuilt wholesale on
// each sync cycle and published with a single swap, so readers always see
// either the prior complete catalog or the next complete one.
type Catalog struct {
	mu       sync.RWMutex
	apps     map[string]*compose.App
	lastSync time.Time
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{apps: make(map[string]*compose.App)}
}

// Replace publishes a fully built replacement catalog.
func (c *Catalog) Replace(apps map[string]*compose.App) {
	if apps == nil {
		apps = make(map[string]*compose.App)
	}
	c.mu.Lock()
	c.apps = apps
	c.lastSync = time.Now().UTC()
	c.mu.Unlock()
}

// All returns a snapshot of the current catalog.
func (c *Catalog) All() map[string]*compose.App {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]*compose.App, len(c.apps))
	for id, app := range c.apps {
		snapshot[id] = app
	}
	return snapshot
}

// Get looks up one app by id.
func (c *Catalog) Get(id string) (*compose.App, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	app, ok := c.apps[id]
	return app, ok
}

// Len reports how many apps are currently published.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.apps)
}

// LastSync reports when the catalog was last published. Zero until the
// first publish.
func (c *Catalog) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

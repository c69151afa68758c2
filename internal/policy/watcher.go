package policy

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

// Cache is the read-write-locked map of canonicalized workspace root to its
// currently cached policy. Writes come from the watcher goroutine's
// reloads, from Activate, and from Get's first load of a root; evaluators
// only read (§9 "per-workspace hot-reload" design note).
type Cache struct {
	mu       sync.RWMutex
	policies map[string]model.WorkspacePolicy

	watcher   *fsnotify.Watcher
	refcounts map[string]int
	watched   map[string]bool
	log       zerolog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewCache constructs a Cache with a live fsnotify watcher.
func NewCache(logger zerolog.Logger) (*Cache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &Cache{
		policies:  make(map[string]model.WorkspacePolicy),
		watcher:   w,
		refcounts: make(map[string]int),
		watched:   make(map[string]bool),
		log:       logger,
		stopCh:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c, nil
}

// Get returns the cached policy for a workspace root, loading it fresh if
// this is the first lookup.
func (c *Cache) Get(workspaceRoot string) model.WorkspacePolicy {
	root := filepath.Clean(workspaceRoot)
	c.mu.RLock()
	p, ok := c.policies[root]
	c.mu.RUnlock()
	if ok {
		return p
	}
	p = Load(root)
	c.mu.Lock()
	c.policies[root] = p
	c.mu.Unlock()
	return p
}

// Activate registers a workspace for hot-reload watching, incrementing its
// reference count. Called on first session activation for a workspace
// (§4.4). If .intercom/ does not exist yet, registration is deferred; the
// background loop retries on the next directory-create event it can see at
// the workspace root.
func (c *Cache) Activate(workspaceRoot string) {
	root := filepath.Clean(workspaceRoot)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refcounts[root]++
	c.policies[root] = Load(root)

	intercomDir := filepath.Join(root, ".intercom")
	if !c.watched[root] {
		if err := c.watcher.Add(intercomDir); err == nil {
			c.watched[root] = true
		} else {
			// .intercom/ does not exist yet; watch the workspace root itself
			// so a later mkdir is observed, then Add(intercomDir) on that event.
			_ = c.watcher.Add(root)
		}
	}
}

// Deactivate decrements a workspace's reference count and unregisters the
// watch once no session references it.
func (c *Cache) Deactivate(workspaceRoot string) {
	root := filepath.Clean(workspaceRoot)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refcounts[root]--
	if c.refcounts[root] <= 0 {
		delete(c.refcounts, root)
		delete(c.policies, root)
		if c.watched[root] {
			_ = c.watcher.Remove(filepath.Join(root, ".intercom"))
			delete(c.watched, root)
		}
	}
}

// Close stops the watch loop.
func (c *Cache) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.watcher.Close()
}

func (c *Cache) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn().Err(err).Msg("policy watcher error")
		}
	}
}

func (c *Cache) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	dir := filepath.Dir(event.Name)

	if base == ".intercom" && event.Op&fsnotify.Create != 0 {
		root := filepath.Dir(event.Name)
		c.mu.Lock()
		if _, known := c.refcounts[root]; known && !c.watched[root] {
			if err := c.watcher.Add(event.Name); err == nil {
				c.watched[root] = true
			}
		}
		c.mu.Unlock()
		return
	}

	if base != "settings.json" {
		return
	}
	root := filepath.Dir(dir)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, known := c.refcounts[root]; !known {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		c.policies[root] = model.DenyAllPolicy()
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		c.policies[root] = Load(root)
	}
	c.log.Info().Str("workspace_root", root).Msg("policy hot-reloaded")
}

// Package cache holds recent operation results so repeat runs of pure
// check operations can be answered without re-executing. Entries expire
// on a per-type TTL and are dropped early when a file they depend on
// changes on disk.
package cache

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"opsched/internal/op"
)

// #region types

type entry struct {
	result   op.ExecutionResult
	storedAt time.Time
	ttl      time.Duration
	files    []string
}

// Cache is a TTL result cache with filesystem invalidation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	// byFile maps a watched path to the keys that depend on it.
	byFile  map[string]map[string]struct{}
	watcher *fsnotify.Watcher
	done    chan struct{}

	hits   int
	misses int
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int
	Misses  int
	Entries int
}

// #endregion

// #region lifecycle

// New opens the cache and its file watcher. Close must be called to
// release the watcher.
func New() (*Cache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("open cache watcher: %w", err)
	}
	c := &Cache{
		entries: make(map[string]entry),
		byFile:  make(map[string]map[string]struct{}),
		watcher: w,
		done:    make(chan struct{}),
	}
	go c.watchLoop()
	return c, nil
}

// Close stops the watcher loop and discards all entries.
func (c *Cache) Close() error {
	close(c.done)
	err := c.watcher.Close()
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.byFile = make(map[string]map[string]struct{})
	c.mu.Unlock()
	return err
}

func (c *Cache) watchLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.InvalidateFile(ev.Name)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[CACHE] watcher error: %v", err)
		}
	}
}

// #endregion

// #region keys

// Key derives a deterministic cache key from an operation's name and
// metadata. Metadata entries are sorted so map iteration order cannot
// produce distinct keys for the same operation.
func Key(o op.Operation) string {
	if len(o.Metadata) == 0 {
		return o.Name
	}
	keys := make([]string, 0, len(o.Metadata))
	for k := range o.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(o.Name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(o.Metadata[k])
	}
	return b.String()
}

// #endregion

// #region get-set

// Get returns the cached result for key if present and unexpired.
func (c *Cache) Get(key string) (op.ExecutionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return op.ExecutionResult{}, false
	}
	if time.Since(e.storedAt) > e.ttl {
		c.dropLocked(key)
		c.misses++
		return op.ExecutionResult{}, false
	}
	c.hits++
	return e.result, true
}

// Set stores a result under key for ttl. Any paths in files are watched,
// and the entry is dropped as soon as one of them changes. Watch failures
// (a listed file that does not exist yet) degrade to TTL-only expiry.
func (c *Cache) Set(key string, result op.ExecutionResult, ttl time.Duration, files []string) {
	if ttl <= 0 {
		return
	}

	watched := make([]string, 0, len(files))
	for _, f := range files {
		if err := c.watcher.Add(f); err != nil {
			log.Printf("[CACHE] cannot watch %s: %v", f, err)
			continue
		}
		watched = append(watched, f)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(key)
	c.entries[key] = entry{result: result, storedAt: time.Now(), ttl: ttl, files: watched}
	for _, f := range watched {
		if c.byFile[f] == nil {
			c.byFile[f] = make(map[string]struct{})
		}
		c.byFile[f][key] = struct{}{}
	}
}

// #endregion

// #region invalidation

// Invalidate drops a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(key)
}

// InvalidateFile drops every entry that depends on path.
func (c *Cache) InvalidateFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.byFile[path]
	if len(keys) == 0 {
		return
	}
	log.Printf("[CACHE] %s changed, invalidating %d entries", path, len(keys))
	for key := range keys {
		c.dropLocked(key)
	}
}

// dropLocked removes key and releases file watches that no other entry
// still needs. Caller holds c.mu.
func (c *Cache) dropLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, f := range e.files {
		refs := c.byFile[f]
		delete(refs, key)
		if len(refs) == 0 {
			delete(c.byFile, f)
			if err := c.watcher.Remove(f); err != nil {
				// Already gone from disk or watcher; nothing to release.
				log.Printf("[CACHE] unwatch %s: %v", f, err)
			}
		}
	}
}

// #endregion

// #region stats

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// #endregion

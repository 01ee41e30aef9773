// Package dbcache tracks which reference databases exist under the database
// root and downloads missing ones at most once at a time per name.
//
// Information Hiding:
// - Per-name locking hidden behind Ensure
// - On-disk layout of BLAST databases (volumes, aliases, metadata) encapsulated
// - Download mechanics delegated to a tools.Invoker
package dbcache

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/richinex/biotools/model"
	"github.com/richinex/biotools/storage"
	"github.com/richinex/biotools/tools"
)

// UpdaterTool is the tool id used to fetch databases.
const UpdaterTool = tools.ToolUpdateBlastDB

var validName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// markerSuffixes are the files whose presence means a protein database exists.
var markerSuffixes = []string{".pal", ".pin", ".phr", ".psq", ".00.pin", "-prot-metadata.json"}

// Config controls a Cache.
type Config struct {
	Root       string
	AutoUpdate bool
	// Timeout bounds one updater run. Zero leaves it to the invoker.
	Timeout time.Duration
}

// Cache is the database presence table.
type Cache struct {
	cfg     Config
	invoker tools.Invoker
	store   storage.HandleStore
	logger  *log.Logger
	now     func() time.Time

	mu      sync.Mutex
	locks   map[string]chan struct{}
	trusted map[string]bool
}

// New creates a cache. A nil store gets an in-memory one.
func New(cfg Config, invoker tools.Invoker, store storage.HandleStore) *Cache {
	if store == nil {
		store = storage.NewMemoryHandleStore()
	}
	return &Cache{
		cfg:     cfg,
		invoker: invoker,
		store:   store,
		now:     time.Now,
		locks:   make(map[string]chan struct{}),
		trusted: make(map[string]bool),
	}
}

// WithLogger sets the logger for state transitions.
func (c *Cache) WithLogger(logger *log.Logger) *Cache {
	c.logger = logger
	return c
}

// Root returns the database directory.
func (c *Cache) Root() string { return c.cfg.Root }

// AutoUpdate reports whether missing databases are downloaded.
func (c *Cache) AutoUpdate() bool { return c.cfg.AutoUpdate }

// Ensure makes sure the named database is present and returns its handle.
//
// A name already confirmed present in this process returns immediately
// unless force is set. Otherwise the files are checked, and if they are
// missing (or force is set) the updater runs. Callers asking for the same
// name wait for each other, so only one updater runs per name.
func (c *Cache) Ensure(ctx context.Context, name string, force bool) (model.DatabaseHandle, error) {
	if !validName.MatchString(name) {
		return model.DatabaseHandle{}, &NameError{Name: name}
	}

	unlock, err := c.lock(ctx, name)
	if err != nil {
		return model.DatabaseHandle{}, err
	}
	defer unlock()

	h, err := c.load(ctx, name)
	if err != nil {
		return model.DatabaseHandle{}, err
	}

	if !force && c.isTrusted(name) {
		return h, nil
	}

	if err := c.transition(ctx, &h, model.StateChecking); err != nil {
		return h, err
	}
	found := c.filesPresent(name)

	if found && !force {
		h.Present = true
		if err := c.transition(ctx, &h, model.StatePresent); err != nil {
			return h, err
		}
		c.trust(name)
		c.logf("database %s present at %s", name, h.LocalPath)
		return h, nil
	}

	if !found && !force && !c.cfg.AutoUpdate {
		h.Present = false
		if err := c.transition(ctx, &h, model.StateUnknown); err != nil {
			return h, err
		}
		return h, &DatabaseNotConfiguredError{Name: name, Root: c.cfg.Root}
	}

	return c.download(ctx, h)
}

func (c *Cache) download(ctx context.Context, h model.DatabaseHandle) (model.DatabaseHandle, error) {
	h.Downloads++
	h.LastError = ""
	if err := c.transition(ctx, &h, model.StateDownloading); err != nil {
		return h, err
	}
	c.logf("downloading database %s into %s", h.Name, c.cfg.Root)

	_, err := c.invoker.Invoke(ctx, tools.Invocation{
		Tool:    UpdaterTool,
		Args:    []string{"--passive", "--decompress", h.Name},
		Dir:     c.cfg.Root,
		Timeout: c.cfg.Timeout,
	})
	if err == nil && !c.filesPresent(h.Name) {
		err = fmt.Errorf("updater finished but no database files were found in %s", c.cfg.Root)
	}
	if err != nil {
		c.untrust(h.Name)
		h.Present = false
		h.LastError = err.Error()
		// The caller's context may be done; record the failure regardless.
		if perr := c.transition(context.WithoutCancel(ctx), &h, model.StateDownloadFailed); perr != nil {
			c.logf("failed to record download failure for %s: %v", h.Name, perr)
		}
		c.logf("download of %s failed: %v", h.Name, err)
		return h, &DatabaseUnavailableError{Name: h.Name, Err: err}
	}

	h.Present = true
	if err := c.transition(ctx, &h, model.StatePresent); err != nil {
		return h, err
	}
	c.trust(h.Name)
	c.logf("database %s ready", h.Name)
	return h, nil
}

// List returns recorded handles merged with databases found on disk that
// have not been requested yet. Results are sorted by name.
func (c *Cache) List(ctx context.Context, prefix string) ([]model.DatabaseHandle, error) {
	recorded, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(recorded))
	for _, h := range recorded {
		seen[h.Name] = true
	}

	for _, name := range c.discover() {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			continue
		}
		seen[name] = true
		recorded = append(recorded, model.DatabaseHandle{
			Name:      name,
			LocalPath: filepath.Join(c.cfg.Root, name),
			Present:   true,
			State:     model.StateUnknown,
		})
	}

	sort.Slice(recorded, func(i, j int) bool { return recorded[i].Name < recorded[j].Name })
	return recorded, nil
}

func (c *Cache) load(ctx context.Context, name string) (model.DatabaseHandle, error) {
	h, ok, err := c.store.Get(ctx, name)
	if err != nil {
		return model.DatabaseHandle{}, fmt.Errorf("failed to read state of %s: %w", name, err)
	}
	if !ok {
		h = model.DatabaseHandle{Name: name, State: model.StateUnknown}
	}
	h.LocalPath = filepath.Join(c.cfg.Root, name)
	return h, nil
}

func (c *Cache) transition(ctx context.Context, h *model.DatabaseHandle, state model.DatabaseState) error {
	h.State = state
	h.LastChecked = c.now()
	if err := c.store.Put(ctx, *h); err != nil {
		return fmt.Errorf("failed to record state of %s: %w", h.Name, err)
	}
	return nil
}

// lock acquires the per-name lock or gives up when ctx is done.
func (c *Cache) lock(ctx context.Context, name string) (func(), error) {
	c.mu.Lock()
	ch, ok := c.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		c.locks[name] = ch
	}
	c.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for database %s: %w", name, ctx.Err())
	}
}

func (c *Cache) isTrusted(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trusted[name]
}

func (c *Cache) trust(name string) {
	c.mu.Lock()
	c.trusted[name] = true
	c.mu.Unlock()
}

func (c *Cache) untrust(name string) {
	c.mu.Lock()
	delete(c.trusted, name)
	c.mu.Unlock()
}

func (c *Cache) filesPresent(name string) bool {
	for _, suffix := range markerSuffixes {
		if _, err := os.Stat(filepath.Join(c.cfg.Root, name+suffix)); err == nil {
			return true
		}
	}
	return false
}

// discover lists database names under the root by their alias or index files.
func (c *Cache) discover() []string {
	entries, err := os.ReadDir(c.cfg.Root)
	if err != nil {
		return nil
	}

	names := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := databaseName(e.Name()); ok {
			names[name] = true
		}
	}

	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var volumeSuffix = regexp.MustCompile(`\.\d{2,3}$`)

// databaseName maps a file such as "nr.05.pin" or "swissprot.pal" to its
// database name.
func databaseName(file string) (string, bool) {
	if strings.HasSuffix(file, "-prot-metadata.json") {
		return strings.TrimSuffix(file, "-prot-metadata.json"), true
	}
	ext := filepath.Ext(file)
	if ext != ".pal" && ext != ".pin" {
		return "", false
	}
	base := strings.TrimSuffix(file, ext)
	if ext == ".pin" {
		base = volumeSuffix.ReplaceAllString(base, "")
	}
	if base == "" {
		return "", false
	}
	return base, true
}

func (c *Cache) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

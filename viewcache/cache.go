package viewcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/registry"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// ErrDiscarded is returned when the cache was cleared while a reconciliation
// was running. The snapshot it read is dropped.
var ErrDiscarded = errors.New("reconciliation discarded after clear")

// Reader is the read side of the registry.
type Reader interface {
	ListNames(ctx context.Context) ([]string, error)
	Record(ctx context.Context, name string) (string, error)
	Owner(ctx context.Context, name string) (common.Address, error)
}

// MintEntry is one registered name as last read from the registry.
type MintEntry struct {
	// Index is the position of the name in the registry's list.
	Index int

	// Name is the registered name without suffix.
	Name string

	// Record is the name's record, possibly empty.
	Record string

	// Owner is the account that owns the name.
	Owner common.Address
}

// DisplayName returns the name with its display suffix.
func (e MintEntry) DisplayName() string {
	return registry.DisplayName(e.Name)
}

// OwnedBy reports whether account owns the entry. Addresses compare by value
// so checksum casing never matters.
func (e MintEntry) OwnedBy(account common.Address) bool {
	return e.Owner == account
}

// MarketplaceURL returns the marketplace page of the entry's token.
func (e MintEntry) MarketplaceURL(base string,
	contract common.Address) string {

	if base == "" {
		return ""
	}

	return fmt.Sprintf("%s/%s/%d", strings.TrimSuffix(base, "/"),
		contract.Hex(), e.Index)
}

// Config holds the configuration for the view cache.
type Config struct {
	// Reader fetches names, records and owners.
	Reader Reader

	// Concurrency bounds the number of lookups in flight.
	// Default: 8
	Concurrency int

	// Registerer receives the cache metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a default configuration.
func DefaultConfig(reader Reader) *Config {
	return &Config{
		Reader:      reader,
		Concurrency: 8,
	}
}

// Cache holds the last reconciled registry snapshot. A reconciliation
// replaces the snapshot wholesale or not at all.
type Cache struct {
	cfg *Config

	entries      []MintEntry
	byName       map[string]int
	reconciledAt time.Time

	// epoch is bumped by Clear so that reconciliations started before it
	// do not resurrect stale data.
	epoch uint64

	metrics *metrics

	mu sync.RWMutex
}

// New creates a new, empty cache.
func New(cfg *Config) (*Cache, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	return &Cache{
		cfg:     cfg,
		byName:  make(map[string]int),
		metrics: newMetrics(cfg.Registerer),
	}, nil
}

// Reconcile reads every name with its record and owner and replaces the
// snapshot. On any failure the previous snapshot is kept.
func (c *Cache) Reconcile(ctx context.Context) ([]MintEntry, error) {
	start := time.Now()

	c.mu.RLock()
	epoch := c.epoch
	c.mu.RUnlock()

	entries, err := c.fetch(ctx)
	c.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.reconciles.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("reconciliation failed: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.metrics.reconciles.WithLabelValues(resultDiscarded).Inc()
		return nil, ErrDiscarded
	}

	byName := make(map[string]int, len(entries))
	for i, entry := range entries {
		if _, ok := byName[entry.Name]; !ok {
			byName[entry.Name] = i
		}
	}
	c.entries = entries
	c.byName = byName
	c.reconciledAt = time.Now()
	c.mu.Unlock()

	c.metrics.reconciles.WithLabelValues(resultSuccess).Inc()
	c.metrics.entries.Set(float64(len(entries)))

	log.Debugf("Reconciled %d names in %v", len(entries),
		time.Since(start))
	log.Tracef("Snapshot: %v", newLogClosure(func() string {
		return spew.Sdump(entries)
	}))

	return copyEntries(entries), nil
}

// fetch reads one consistent snapshot. Lookups fan out and all must finish
// before the result is assembled.
func (c *Cache) fetch(ctx context.Context) ([]MintEntry, error) {
	names, err := c.cfg.Reader.ListNames(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]MintEntry, len(names))

	// A duplicated name keeps the index of its first occurrence.
	firstIndex := make(map[string]int, len(names))
	for i, name := range names {
		if _, ok := firstIndex[name]; !ok {
			firstIndex[name] = i
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, name := range names {
		i, name := i, name
		entries[i].Index = firstIndex[name]
		entries[i].Name = name

		g.Go(func() error {
			record, err := c.cfg.Reader.Record(gctx, name)
			if err != nil {
				return fmt.Errorf("record of %q: %w", name, err)
			}
			entries[i].Record = record

			return nil
		})

		g.Go(func() error {
			owner, err := c.cfg.Reader.Owner(gctx, name)
			if err != nil {
				return fmt.Errorf("owner of %q: %w", name, err)
			}
			entries[i].Owner = owner

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Entries returns a copy of the snapshot in registry order.
func (c *Cache) Entries() []MintEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return copyEntries(c.entries)
}

// Lookup returns the entry for name.
func (c *Cache) Lookup(name string) (MintEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byName[name]
	if !ok {
		return MintEntry{}, false
	}

	return c.entries[i], true
}

// ReconciledAt returns when the snapshot was taken, zero if never.
func (c *Cache) ReconciledAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.reconciledAt
}

// Clear drops the snapshot and any reconciliation in flight.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.byName = make(map[string]int)
	c.reconciledAt = time.Time{}
	c.epoch++
	c.mu.Unlock()

	c.metrics.entries.Set(0)
}

func copyEntries(entries []MintEntry) []MintEntry {
	if entries == nil {
		return []MintEntry{}
	}

	return append([]MintEntry(nil), entries...)
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akalivaty/Artale-drop-bot/internal/document"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer/index"
	"github.com/akalivaty/Artale-drop-bot/internal/store"
	"github.com/akalivaty/Artale-drop-bot/pkg/config"
	apperrors "github.com/akalivaty/Artale-drop-bot/pkg/errors"
	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
)

// Source says where a Snapshot's item index came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceBuild Source = "build"
)

// Snapshot is the immutable data every query runs against.
type Snapshot struct {
	Items        *index.ItemIndex
	Drops        *document.DropTable
	QueryAliases *document.NameTable
	Source       Source
	LoadedAt     time.Time
}

// Loader performs the one-time build-or-load of the item index.
type Loader struct {
	store   store.BlobStore
	cfg     config.DataConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	once sync.Once
	done chan struct{}
	snap *Snapshot
	err  error
}

func NewLoader(s store.BlobStore, cfg config.DataConfig, m *metrics.Metrics) *Loader {
	return &Loader{
		store:   s,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
		done:    make(chan struct{}),
	}
}

// Load returns the snapshot, initialising it on the first call. Concurrent
// callers block until that first initialisation finishes and all observe its
// result; a failed initialisation is not retried.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	l.once.Do(func() {
		l.snap, l.err = l.load(ctx)
		close(l.done)
	})
	return l.snap, l.err
}

// Ready reports whether initialisation has finished successfully.
func (l *Loader) Ready() bool {
	select {
	case <-l.done:
		return l.err == nil
	default:
		return false
	}
}

// Rebuild ignores any existing cache, builds the index from the raw
// documents and writes the cache. Unlike Load, a cache write failure is
// returned alongside the still-usable snapshot.
func (l *Loader) Rebuild(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	drops, queryAliases, err := l.readSources(ctx)
	if err != nil {
		return nil, err
	}
	items := l.build(ctx, drops)
	snap := &Snapshot{
		Items:        items,
		Drops:        drops,
		QueryAliases: queryAliases,
		Source:       SourceBuild,
		LoadedAt:     time.Now(),
	}
	l.observe(snap, start)
	if err := l.save(ctx, items); err != nil {
		l.metrics.IncCacheWriteFailure()
		return snap, err
	}
	return snap, nil
}

func (l *Loader) load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	var (
		drops        *document.DropTable
		queryAliases *document.NameTable
		cached       *index.ItemIndex
		cacheErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		drops, queryAliases, err = l.readSources(gctx)
		return err
	})
	g.Go(func() error {
		cached, cacheErr = l.readCache(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		l.logger.Error("item index initialisation failed", "error", err)
		return nil, err
	}

	snap := &Snapshot{
		Drops:        drops,
		QueryAliases: queryAliases,
	}
	if cacheErr == nil {
		if err := cached.Validate(); err != nil {
			l.logger.Warn("index cache has inconsistent entries, using it as-is",
				"cache", l.cfg.IndexCache,
				"error", err,
			)
		}
		snap.Items = cached
		snap.Source = SourceCache
		l.logger.Info("item index loaded from cache", "cache", l.cfg.IndexCache, "items", cached.Len())
	} else {
		l.logger.Info("index cache unavailable, building from drop table",
			"cache", l.cfg.IndexCache,
			"reason", cacheErr,
		)
		snap.Items = l.build(ctx, drops)
		snap.Source = SourceBuild
		if err := l.save(ctx, snap.Items); err != nil {
			l.metrics.IncCacheWriteFailure()
			l.logger.Error("index cache not saved, continuing with in-memory index", "error", err)
		}
	}
	snap.LoadedAt = time.Now()
	l.observe(snap, start)
	return snap, nil
}

// readSources loads the drop table, which is required, and the query alias
// table, which is optional.
func (l *Loader) readSources(ctx context.Context) (*document.DropTable, *document.NameTable, error) {
	drops, err := document.LoadDropTable(ctx, l.store, l.cfg.DropTable)
	if err != nil {
		return nil, nil, fmt.Errorf("loading drop table: %w", err)
	}
	queryAliases := l.optionalTable(ctx, l.cfg.QueryAliases, "query aliases")
	return drops, queryAliases, nil
}

func (l *Loader) build(ctx context.Context, drops *document.DropTable) *index.ItemIndex {
	itemAliases := l.optionalTable(ctx, l.cfg.ItemAliases, "item aliases")
	items := index.Build(drops, itemAliases)
	canonical, aliases := items.Stats()
	l.logger.Info("item index built",
		"monsters", drops.Len(),
		"items", canonical,
		"aliases", aliases,
		"aliases_dropped", itemAliases.Len()-aliases,
	)
	return items
}

// optionalTable loads an alias table, degrading to an empty table when it is
// missing or malformed.
func (l *Loader) optionalTable(ctx context.Context, name, feature string) *document.NameTable {
	if name == "" {
		return document.NewNameTable()
	}
	table, err := document.LoadNameTable(ctx, l.store, name)
	switch {
	case err == nil:
		l.logger.Debug("alias table loaded", "document", name, "entries", table.Len())
		return table
	case errors.Is(err, apperrors.ErrMissingDocument):
		l.logger.Warn("alias table missing, feature disabled", "document", name, "feature", feature)
	default:
		l.logger.Warn("alias table unreadable, feature disabled", "document", name, "feature", feature, "error", err)
	}
	return document.NewNameTable()
}

func (l *Loader) readCache(ctx context.Context) (*index.ItemIndex, error) {
	data, err := l.store.Read(ctx, l.cfg.IndexCache)
	if err != nil {
		return nil, apperrors.Missing(l.cfg.IndexCache, err)
	}
	items, err := index.Decode(data)
	if err != nil {
		return nil, apperrors.Malformed(l.cfg.IndexCache, err)
	}
	return items, nil
}

func (l *Loader) save(ctx context.Context, items *index.ItemIndex) error {
	data, err := index.Encode(items)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrCacheWrite, err)
	}
	if err := l.store.Write(ctx, l.cfg.IndexCache, data); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrCacheWrite, err)
	}
	l.logger.Info("index cache written", "cache", l.cfg.IndexCache, "bytes", len(data))
	return nil
}

func (l *Loader) observe(snap *Snapshot, start time.Time) {
	canonical, aliases := snap.Items.Stats()
	l.metrics.ObserveIndexLoad(string(snap.Source), canonical, aliases, time.Since(start))
}

// Package index maintains the per-(source, resolution) set of tiles known to
// exist at a remote source. The set is derived once from the source's
// coverage manifest, persisted, and read-only afterward; absence of an entry
// means a request for that tile is known-nonexistent and spared a network
// call.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tilecast/hgtfetch/internal/core/observability"
)

// ErrNoIndex is returned by a Store when no usable persisted index exists.
var ErrNoIndex = errors.New("no stored index")

// Version stamps persisted indexes; stores treat other versions as absent so
// a format change forces a rebuild.
const Version = 2

// Store persists the raw identifier set.
type Store interface {
	// Load returns the stored identifiers, or ErrNoIndex when absent or stale.
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, names []string) error
	Drop(ctx context.Context) error
}

// Builder derives the identifier set from the remote coverage manifest.
type Builder func(ctx context.Context) ([]string, error)

type Index struct {
	source     string
	resolution int
	store      Store
	build      Builder
	log        zerolog.Logger

	mu      sync.Mutex
	entries map[string]struct{}
}

func New(source string, resolution int, store Store, build Builder, log zerolog.Logger) *Index {
	return &Index{
		source:     source,
		resolution: resolution,
		store:      store,
		build:      build,
		log:        log,
	}
}

// Contains reports whether the tile exists at the source, loading or building
// the index on first use. Concurrent callers share a single build.
func (ix *Index) Contains(ctx context.Context, name string) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.loadLocked(ctx); err != nil {
		return false, err
	}
	_, ok := ix.entries[strings.ToUpper(name)]
	return ok, nil
}

// Len returns the number of indexed tiles, loading the index if needed.
func (ix *Index) Len(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(ix.entries), nil
}

func (ix *Index) loadLocked(ctx context.Context) error {
	if ix.entries != nil {
		return nil
	}
	names, err := ix.store.Load(ctx)
	if errors.Is(err, ErrNoIndex) {
		names, err = ix.rebuildLocked(ctx)
	}
	if err != nil {
		return err
	}
	entries := make(map[string]struct{}, len(names))
	for _, n := range names {
		entries[strings.ToUpper(n)] = struct{}{}
	}
	ix.entries = entries
	return nil
}

func (ix *Index) rebuildLocked(ctx context.Context) ([]string, error) {
	ix.log.Info().
		Str("source", ix.source).
		Int("res", ix.resolution).
		Msg("building existence index from coverage manifest")
	names, err := ix.build(ctx)
	observability.IncIndexBuild(ix.source, err)
	if err != nil {
		return nil, fmt.Errorf("build %s%d index: %w", ix.source, ix.resolution, err)
	}
	if err := ix.store.Save(ctx, names); err != nil {
		return nil, fmt.Errorf("persist %s%d index: %w", ix.source, ix.resolution, err)
	}
	ix.log.Info().
		Str("source", ix.source).
		Int("res", ix.resolution).
		Int("tiles", len(names)).
		Msg("existence index persisted")
	return names, nil
}

// Invalidate drops the stored and in-memory index; the next access rebuilds
// it from the manifest.
func (ix *Index) Invalidate(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	if err := ix.store.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s%d index: %w", ix.source, ix.resolution, err)
	}
	return nil
}

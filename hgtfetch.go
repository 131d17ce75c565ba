// Package hgtfetch resolves geographic areas to 1°×1° elevation tiles and
// acquires them from remote sources. An area is a bounding box string plus
// optional clipping polygons; the result is the ordered list of local tile
// paths, each flagged when exact polygon clipping is still required
// downstream.
package hgtfetch

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tilecast/hgtfetch/internal/core/config"
	"github.com/tilecast/hgtfetch/internal/core/model"
	"github.com/tilecast/hgtfetch/internal/core/observability"
	"github.com/tilecast/hgtfetch/internal/logger"
	"github.com/tilecast/hgtfetch/internal/source"
	_ "github.com/tilecast/hgtfetch/internal/source/srtm"
	refresh "github.com/tilecast/hgtfetch/pkg/refresh/kafka"
)

// Coordinates is a lon/lat pair in degrees.
type Coordinates = model.Coordinates

// Polygon is a ring of coordinates clipping the requested area.
type Polygon = model.Polygon

// ResolvedTile is a locally available tile. CheckPoly marks tiles the
// polygon boundary cuts through, which still need exact clipping downstream.
type ResolvedTile = model.ResolvedTile

// Fetcher wires configuration, logging and the source pool together.
type Fetcher struct {
	cfg     config.Config
	log     zerolog.Logger
	pool    *source.Pool
	refresh *refresh.Runner
}

// Option adjusts a Fetcher before the pool is built.
type Option func(*Fetcher)

// WithLogger replaces the environment-built logger.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = log }
}

// New builds a Fetcher from HGT_* environment configuration.
func New(opts ...Option) *Fetcher {
	cfg := config.FromEnv()
	f := &Fetcher{
		cfg: cfg,
		log: logger.Build(logger.Config{Level: cfg.LogLevel, Component: "hgtfetch"}, os.Stdout),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.pool = source.NewPool(f.cfg, f.log)
	return f
}

// Resolve acquires every tile covering area restricted by polys, trying the
// source codes in prefs (e.g. "srtm1", "srtm3") in order per tile. Tiles
// available from no source are omitted.
func (f *Fetcher) Resolve(ctx context.Context, area string, polys []Polygon, corrX, corrY float64, prefs []string) ([]ResolvedTile, error) {
	return f.pool.Resolve(ctx, area, polys, corrX, corrY, prefs)
}

// Invalidate drops a source's existence index at one resolution.
func (f *Fetcher) Invalidate(ctx context.Context, nickname string, resolution int) error {
	return f.pool.Invalidate(ctx, nickname, resolution)
}

// Sources lists the registered source nicknames.
func (f *Fetcher) Sources() []string {
	return source.Registered()
}

// StartRefresh begins consuming coverage-refresh events when enabled by
// HGT_REFRESH_* configuration. Events drop the matching existence indexes so
// the next resolution rebuilds them from current coverage.
func (f *Fetcher) StartRefresh(ctx context.Context) error {
	if f.refresh != nil {
		return nil
	}
	f.refresh = refresh.New(refresh.FromEnv(), f.pool, refresh.Options{
		Logger:      f.log,
		Register:    prometheus.DefaultRegisterer,
		Resolutions: f.pool,
	})
	return f.refresh.Start(ctx)
}

// StopRefresh drains and stops the refresh consumer.
func (f *Fetcher) StopRefresh() {
	if f.refresh != nil {
		f.refresh.Stop()
	}
}

// ServeObservability blocks, serving /metrics and /healthz on the configured
// address. No-op when HGT_METRICS_ADDR is unset.
func (f *Fetcher) ServeObservability(version string) error {
	if f.cfg.MetricsAddr == "" {
		return nil
	}
	observability.ExposeBuildInfo(version)
	ready := func() bool {
		if f.refresh == nil {
			return true
		}
		ok, _ := f.refresh.Readiness()
		return ok
	}
	return observability.Serve(f.cfg.MetricsAddr, ready)
}

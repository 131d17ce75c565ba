package source

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tilecast/hgtfetch/internal/core/config"
	"github.com/tilecast/hgtfetch/internal/core/model"
	"github.com/tilecast/hgtfetch/internal/core/observability"
	"github.com/tilecast/hgtfetch/internal/grid"
	"github.com/tilecast/hgtfetch/internal/logger"
)

// Pool resolves tiles against sources in caller-specified priority order.
// Source instances are constructed lazily through the registry and shared
// across requests.
type Pool struct {
	cfg config.Config
	log zerolog.Logger

	mu       sync.Mutex
	sources  map[string]Source
	bannered map[string]bool
}

func NewPool(cfg config.Config, log zerolog.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		log:      log,
		sources:  make(map[string]Source),
		bannered: make(map[string]bool),
	}
}

// sourcePref is one parsed entry of the preference list: a source code like
// "srtm1" split into nickname and arc-second resolution.
type sourcePref struct {
	nickname   string
	resolution int
	src        Source
}

func (p *Pool) parsePrefs(prefs []string) ([]sourcePref, error) {
	out := make([]sourcePref, 0, len(prefs))
	for _, s := range prefs {
		if len(s) < 2 {
			return nil, fmt.Errorf("invalid source code %q", s)
		}
		res, err := strconv.Atoi(s[len(s)-1:])
		if err != nil {
			return nil, fmt.Errorf("invalid source code %q: missing resolution digit", s)
		}
		nickname := s[:len(s)-1]
		src, err := p.source(nickname)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(src.Resolutions(), res) {
			return nil, fmt.Errorf("source %s does not provide %d arc-second tiles", nickname, res)
		}
		out = append(out, sourcePref{nickname: nickname, resolution: res, src: src})
	}
	return out, nil
}

func (p *Pool) source(nickname string) (Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok := p.sources[nickname]; ok {
		return src, nil
	}
	src, err := New(nickname, Deps{Config: p.cfg, Logger: p.log})
	if err != nil {
		return nil, err
	}
	p.sources[nickname] = src
	return src, nil
}

// Resolve computes the tiles covering the requested area and acquires each
// from the first source in prefs that has it. Tiles available from no source
// are omitted; the result preserves the bbox iteration order. An
// authentication protocol error aborts the whole resolution.
func (p *Pool) Resolve(
	ctx context.Context,
	area string,
	polys []model.Polygon,
	corrX, corrY float64,
	prefs []string,
) ([]model.ResolvedTile, error) {
	bbox, err := grid.CalcBBox(area, corrX, corrY)
	if err != nil {
		return nil, err
	}
	parsed, err := p.parsePrefs(prefs)
	if err != nil {
		return nil, err
	}
	prefixes := grid.Prefixes(bbox, polys, corrX, corrY, false)
	ctx = logger.WithRequestID(ctx, "")
	log := logger.FromContext(ctx, &p.log)
	log.Info().
		Str("area", area).
		Str("bbox", bbox.String()).
		Int("tiles", len(prefixes)).
		Strs("sources", prefs).
		Msg("resolving tiles")

	workers := p.cfg.FetchWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(prefixes) {
		workers = len(prefixes)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*model.ResolvedTile, len(prefixes))
	jobs := make(chan int)
	var (
		wg      sync.WaitGroup
		fatalMu sync.Mutex
		fatal   error
	)
	fail := func(err error) {
		fatalMu.Lock()
		if fatal == nil {
			fatal = err
		}
		fatalMu.Unlock()
		cancel()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rt, err := p.resolveOne(ctx, log, prefixes[i], parsed)
				if err != nil {
					fail(err)
					return
				}
				results[i] = rt
			}
		}()
	}

feed:
	for i := range prefixes {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.ResolvedTile, 0, len(results))
	for _, rt := range results {
		if rt != nil {
			out = append(out, *rt)
		}
	}
	return out, nil
}

// resolveOne tries each source in order for one tile. A nil, nil return means
// the tile is available nowhere. Per-attempt log lines inherit the tile and
// source fields through the context.
func (p *Pool) resolveOne(ctx context.Context, base *zerolog.Logger, tp model.TilePrefix, prefs []sourcePref) (*model.ResolvedTile, error) {
	ctx = logger.WithTile(ctx, tp.Name)
	for _, sp := range prefs {
		sctx := logger.WithSource(ctx, sp.nickname)
		log := logger.FromContext(sctx, base)
		log.Debug().Int("res", sp.resolution).Msg("trying source")
		path, err := sp.src.GetTile(sctx, tp.Name, sp.resolution)
		switch {
		case err == nil:
			observability.IncAttempt(sp.nickname, "hit")
			p.bannerOnce(sp.src)
			return &model.ResolvedTile{Path: path, CheckPoly: tp.CheckPoly}, nil
		case errors.Is(err, ErrTileNotFound):
			observability.IncAttempt(sp.nickname, "not_found")
		default:
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// inherit the caller's deadline; treat as a per-source failure
				// unless the whole resolution was cancelled
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
			}
			observability.IncAttempt(sp.nickname, "error")
			log.Warn().Err(err).Msg("source failed for tile")
		}
	}
	logger.FromContext(ctx, base).Info().Msg("no file found on any server")
	return nil, nil
}

// bannerOnce logs a source's attribution banner on its first successful use.
func (p *Pool) bannerOnce(src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bannered[src.Nickname()] {
		return
	}
	p.bannered[src.Nickname()] = true
	p.log.Info().Str("source", src.Nickname()).Msg(src.Banner())
}

// SourceResolutions reports the resolutions the named source provides.
func (p *Pool) SourceResolutions(nickname string) ([]int, error) {
	src, err := p.source(nickname)
	if err != nil {
		return nil, err
	}
	return src.Resolutions(), nil
}

// Invalidate drops the existence index of the named source at the given
// resolution so the next access rebuilds it from the coverage manifest.
func (p *Pool) Invalidate(ctx context.Context, nickname string, resolution int) error {
	src, err := p.source(nickname)
	if err != nil {
		return err
	}
	inv, ok := src.(IndexInvalidator)
	if !ok {
		return fmt.Errorf("source %s keeps no existence index", nickname)
	}
	return inv.InvalidateIndex(ctx, resolution)
}

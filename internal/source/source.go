// Package source defines the contract every elevation data source satisfies,
// a static registry of source constructors, and the pool that resolves tiles
// against an ordered list of sources.
package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tilecast/hgtfetch/internal/core/config"
)

// Source is a pluggable tile provider. GetTile must be idempotent and
// cache-aware: an already cached tile is returned without network access, a
// tile absent from the source's existence index fails with ErrTileNotFound
// without network access, and a successful download is persisted locally
// before its path is returned.
type Source interface {
	Nickname() string
	FileExtension() string
	Banner() string
	Resolutions() []int

	// GetTile returns the local path of the tile at the given arc-second
	// resolution, acquiring it first when needed.
	GetTile(ctx context.Context, tile string, resolution int) (string, error)
}

// IndexInvalidator is implemented by sources whose existence index can be
// dropped so the next access rebuilds it from the remote coverage manifest.
type IndexInvalidator interface {
	InvalidateIndex(ctx context.Context, resolution int) error
}

// Deps carries everything a source constructor may need.
type Deps struct {
	Config config.Config
	Logger zerolog.Logger

	// Client overrides the source's HTTP client; tests use this to avoid
	// dialing real servers. Nil means the source builds its own session.
	Client *http.Client
}

type Factory func(Deps) (Source, error)

var reg = map[string]Factory{}

// Register adds a source constructor under its nickname. Sources register
// themselves from package init; callers import the source package for the
// side effect.
func Register(nickname string, f Factory) {
	reg[nickname] = f
}

// Registered lists the known source nicknames, sorted.
func Registered() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs the source registered under nickname.
func New(nickname string, deps Deps) (Source, error) {
	f, ok := reg[nickname]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q (registered: %v)", nickname, Registered())
	}
	return f(deps)
}

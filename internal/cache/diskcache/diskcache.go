// Package diskcache stores downloaded tiles on the local filesystem, laid out
// as <root>/<SOURCE><RES>/<TILE>.<ext>.
package diskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

type Cache struct {
	root  string
	locks [lockStripes]sync.Mutex
}

func New(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root %s: %w", root, err)
	}
	return &Cache{root: root}, nil
}

func (c *Cache) Root() string { return c.root }

// Path returns the cache location for a tile.
func (c *Cache) Path(source string, resolution int, tile, ext string) string {
	dir := fmt.Sprintf("%s%d", strings.ToUpper(source), resolution)
	return filepath.Join(c.root, dir, tile+"."+ext)
}

// Exists reports whether the tile is already cached.
func (c *Cache) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (c *Cache) lockFor(path string) *sync.Mutex {
	return &c.locks[xxhash.Sum64String(path)%lockStripes]
}

// Write stores the payload atomically: temp file in the target directory,
// then rename. Writes to the same tile are serialized; distinct tiles need
// no coordination.
func (c *Cache) Write(path string, payload []byte) error {
	mu := c.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

package kafka

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// indexKey identifies one existence index: a source at one resolution.
type indexKey struct {
	source     string
	resolution int
}

func (k indexKey) String() string {
	return fmt.Sprintf("%s:%d", k.source, k.resolution)
}

// refreshDedupe suppresses replayed refresh events. The publisher stamps
// each event with a monotonically increasing version; an index is dropped
// only when the event's version is newer than the last one applied to it,
// so replaying the topic from the oldest offset converges instead of
// re-dropping indexes that were already rebuilt.
type refreshDedupe struct {
	mu   sync.Mutex
	seen *lru.Cache[indexKey, uint64]
}

func newRefreshDedupe(size int) *refreshDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[indexKey, uint64](size)
	return &refreshDedupe{seen: c}
}

// shouldApply reports whether version is newer than the last applied for the
// index, recording it when it is.
func (d *refreshDedupe) shouldApply(key indexKey, version uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.seen.Get(key); ok && version <= last {
		return false
	}
	d.seen.Add(key, version)
	return true
}

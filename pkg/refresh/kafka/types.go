package kafka

import (
	"errors"
	"time"
)

// Event announces that a source's published coverage changed and its
// existence indexes must be rebuilt. Version is a monotonically increasing
// publisher counter used for replay dedupe; an empty Resolutions list means
// every resolution the source provides.
type Event struct {
	Source      string    `json:"source"`
	Resolutions []int     `json:"res,omitempty"`
	Version     uint64    `json:"version"`
	TS          time.Time `json:"ts"`
	Op          string    `json:"op,omitempty"`
}

func (e Event) Validate() error {
	if e.Source == "" {
		return errors.New("refresh event: source is required")
	}
	for _, r := range e.Resolutions {
		if r <= 0 {
			return errors.New("refresh event: resolutions must be positive")
		}
	}
	return nil
}

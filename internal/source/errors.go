package source

import (
	"errors"
	"fmt"
)

// ErrTileNotFound marks a tile a source does not have. The pool falls through
// to the next source; a tile absent from all sources is omitted from the
// result, never disguised as success.
var ErrTileNotFound = errors.New("tile not available from source")

// AuthError means the remote login flow changed shape. Retrying will not
// help, so it aborts the whole resolution.
type AuthError struct {
	Source string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication protocol error: %s", e.Source, e.Reason)
}

// ContentTypeError means a download returned a payload that is neither the
// expected tile type nor a recognized not-found body. Fatal for this
// tile/source pair; the pool still tries the remaining sources.
type ContentTypeError struct {
	Source      string
	Tile        string
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("%s: unexpected content type %q for tile %s", e.Source, e.ContentType, e.Tile)
}

// IndexUnavailableError means the existence index could not be loaded or
// rebuilt, so the source cannot answer for any tile at that resolution.
type IndexUnavailableError struct {
	Source     string
	Resolution int
	Err        error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("%s%d: existence index unavailable: %v", e.Source, e.Resolution, e.Err)
}

func (e *IndexUnavailableError) Unwrap() error { return e.Err }

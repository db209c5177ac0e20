package batch

import (
	"errors"
	"fmt"

	"github.com/civicsource/fetch-helpers/pkg/status"
)

var (
	// ErrNotFound is wrapped by the error a key is rejected with when a
	// successful batch response did not contain an item for it.
	ErrNotFound = errors.New("not found in batched results")

	// ErrClosed is returned for requests made after Close.
	ErrClosed = errors.New("batch coordinator closed")

	// ErrPanic is wrapped by the error a chunk is rejected with when the
	// fetch function panicked.
	ErrPanic = errors.New("batch fetch panicked")
)

// notFoundError builds the error for a key that survived its cycle without a
// matching response item. It carries a synthetic 404 response, never the real
// transport response.
func notFoundError[K comparable](key K) error {
	return status.NotFound(fmt.Sprintf("Could not find '%v' in batched results.", key), ErrNotFound)
}

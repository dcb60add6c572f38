// Package cache stores decoded image headers between runs so unchanged
// source textures are not decoded again.
//
// Three backends implement [Cache]:
//   - [FileCache]: JSON entries under the user cache directory (the default)
//   - [RedisCache]: a shared Redis instance, for build farms
//   - [NullCache]: caching disabled
//
// [HeaderCache] sits on top of any backend and implements
// imageio.HeaderReader. Entries are keyed by the source path, size and
// modification time, so editing a texture invalidates its entry without any
// explicit bookkeeping.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer derives cache keys.
type Keyer interface {
	// HeaderKey returns the key of the header entry for an image file in a
	// given state.
	HeaderKey(path string, size int64, modTime time.Time) string
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HeaderKey implements Keyer.
func (DefaultKeyer) HeaderKey(path string, size int64, modTime time.Time) string {
	return stampKey("header", path, size, modTime)
}

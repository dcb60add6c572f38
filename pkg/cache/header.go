package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/observability"
)

// DefaultHeaderTTL is how long a header entry lives without being read.
const DefaultHeaderTTL = 30 * 24 * time.Hour

// HeaderCache reads image headers through a Cache. Backend failures never
// fail a read: the header is decoded from disk instead.
type HeaderCache struct {
	Cache Cache
	Keyer Keyer
	TTL   time.Duration

	// Reader decodes headers on a miss. Defaults to imageio.Files.
	Reader imageio.HeaderReader
}

// NewHeaderCache returns a header cache over c with the default keyer.
func NewHeaderCache(c Cache) *HeaderCache {
	return &HeaderCache{
		Cache:  c,
		Keyer:  NewDefaultKeyer(),
		TTL:    DefaultHeaderTTL,
		Reader: imageio.Files{},
	}
}

// ReadHeader implements imageio.HeaderReader.
func (h *HeaderCache) ReadHeader(ctx context.Context, path string) (imageio.Header, error) {
	info, err := os.Stat(path)
	if err != nil {
		return imageio.Header{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := h.Keyer.HeaderKey(abs, info.Size(), info.ModTime())

	if data, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
		var hdr imageio.Header
		if json.Unmarshal(data, &hdr) == nil {
			observability.Cache().OnCacheHit(ctx, "header")
			return hdr, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "header")

	hdr, err := h.Reader.ReadHeader(ctx, path)
	if err != nil {
		return imageio.Header{}, err
	}
	if data, err := json.Marshal(hdr); err == nil {
		if h.Cache.Set(ctx, key, data, h.TTL) == nil {
			observability.Cache().OnCacheSet(ctx, "header", len(data))
		}
	}
	return hdr, nil
}

var _ imageio.HeaderReader = (*HeaderCache)(nil)

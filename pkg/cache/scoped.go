package cache

import "time"

// ScopedKeyer wraps a Keyer with a prefix so several projects can share one
// Redis instance without their entries colliding.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "texpal:town:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HeaderKey generates a prefixed header key.
func (k *ScopedKeyer) HeaderKey(path string, size int64, modTime time.Time) string {
	return k.prefix + k.inner.HeaderKey(path, size, modTime)
}

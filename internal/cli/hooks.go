package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/texpal/pkg/observability"
)

// debugHooks logs header cache and session store events at debug level.
type debugHooks struct {
	logger *log.Logger
}

func (h debugHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h debugHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h debugHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h debugHooks) OnLock(_ context.Context, backend string, wait time.Duration, err error) {
	h.logger.Debug("session lock", "backend", backend, "wait", wait.Round(time.Millisecond), "err", err)
}

func (h debugHooks) OnLoad(_ context.Context, backend string, d time.Duration, err error) {
	h.logger.Debug("session load", "backend", backend, "dur", d.Round(time.Millisecond), "err", err)
}

func (h debugHooks) OnSave(_ context.Context, backend string, size int, d time.Duration, err error) {
	h.logger.Debug("session save", "backend", backend, "bytes", size, "dur", d.Round(time.Millisecond), "err", err)
}

var (
	_ observability.CacheHooks = debugHooks{}
	_ observability.StoreHooks = debugHooks{}
)

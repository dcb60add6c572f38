// Package state persists palette sessions between builds.
//
// A build loads the previous session, mutates it and stores it again while
// holding the store's lock, so two builds against the same map directory
// never interleave. Two backends are provided:
//   - FileStore: a JSON file next to the output, locked with an advisory
//     file lock (github.com/gofrs/flock)
//   - MongoStore: one document per session name, locked with a lock
//     document, for build farms sharing a session
//
// Use Open to pick a backend from a URI:
//
//	store, err := state.Open(ctx, "mongodb://db.internal/texpal?session=town")
//	unlock, err := store.Lock(ctx)
//	defer unlock()
//	snap, err := store.Load(ctx)
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matzehuels/texpal/pkg/palette"
)

var (
	// ErrLocked is returned when another build holds the session lock.
	ErrLocked = errors.New("session locked by another build")

	// ErrVersion is returned when a stored session has an unknown format
	// version.
	ErrVersion = errors.New("unsupported session format version")
)

// Store loads and saves session snapshots.
type Store interface {
	// Lock blocks until the session lock is held or ctx is done.
	Lock(ctx context.Context) (unlock func() error, err error)

	// Load returns the stored snapshot, or nil, nil when none exists.
	Load(ctx context.Context) (*palette.Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *palette.Snapshot) error

	Close() error
}

// Open returns the store named by uri. A mongodb:// or mongodb+srv:// URI
// selects MongoStore; a file:// URI or a plain path selects FileStore.
func Open(ctx context.Context, uri string) (Store, error) {
	switch {
	case uri == "":
		return nil, errors.New("empty session store uri")
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return NewMongoStore(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		return NewFileStore(strings.TrimPrefix(uri, "file://")), nil
	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("unsupported session store %q", uri)
	default:
		return NewFileStore(uri), nil
	}
}

// decode parses an encoded snapshot, checking the format version first so a
// newer file is rejected with ErrVersion rather than a field error.
func decode(data []byte) (*palette.Snapshot, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if head.Version != palette.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, head.Version)
	}
	var snap palette.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &snap, nil
}

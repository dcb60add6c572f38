package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/palette"
)

// DefaultFileName is the session file written into the map directory.
const DefaultFileName = "texpal.session.json"

// lockRetry is how often a blocked Lock retries the file lock.
const lockRetry = 100 * time.Millisecond

// FileStore keeps the session as a JSON file. The lock is held on a sibling
// "<file>.lock" so the session file itself can be replaced by rename.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the session file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the session file path.
func (s *FileStore) Path() string { return s.path }

// Lock takes an exclusive advisory lock on the session.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	fl := flock.New(s.path + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err == nil && !ok {
		err = ErrLocked
	} else if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %s: %v", ErrLocked, s.path, err)
	}
	observability.Store().OnLock(ctx, "file", time.Since(start), err)
	if err != nil {
		fl.Close()
		return nil, err
	}
	return fl.Unlock, nil
}

// Load reads the session file. A missing file is not an error.
func (s *FileStore) Load(ctx context.Context) (snap *palette.Snapshot, err error) {
	start := time.Now()
	defer func() { observability.Store().OnLoad(ctx, "file", time.Since(start), err) }()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	snap, err = decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return snap, nil
}

// Save writes the session to a temporary file and renames it into place, so
// an interrupted save leaves the previous session intact.
func (s *FileStore) Save(ctx context.Context, snap *palette.Snapshot) (err error) {
	start := time.Now()
	size := 0
	defer func() { observability.Store().OnSave(ctx, "file", size, time.Since(start), err) }()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	size = len(data)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Close does nothing for the file store.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)

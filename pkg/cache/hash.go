package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"path/filepath"
	"time"
)

// stampKey identifies a source file by its cleaned path and file stamp, so
// an edited image misses the cache even when its name is unchanged. The key
// format is kind:sha256(path, size, mtime).
func stampKey(kind, path string, size int64, modTime time.Time) string {
	h := sha256.New()
	h.Write([]byte(filepath.ToSlash(filepath.Clean(path))))
	var stamp [17]byte
	binary.BigEndian.PutUint64(stamp[1:9], uint64(size))
	binary.BigEndian.PutUint64(stamp[9:], uint64(modTime.UnixNano()))
	h.Write(stamp[:])
	return kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 of data. The file cache shards entries by
// its first two digits.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

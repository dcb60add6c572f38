package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/texpal/pkg/pipeline"
)

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")

	tests := []struct {
		name string
		cfg  *pipeline.Config
		want string
	}{
		{"nil config", nil, filepath.Join("/tmp/xdg", "texpal")},
		{"empty config", &pipeline.Config{}, filepath.Join("/tmp/xdg", "texpal")},
		{"configured", &pipeline.Config{CacheDir: "/var/cache/tp"}, "/var/cache/tp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cacheDir(tt.cfg); got != tt.want {
				t.Errorf("cacheDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClearFileCache(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	dir := filepath.Join(t.TempDir(), "headers")
	if err := clearFileCache(dir); err != nil {
		t.Fatalf("clear missing dir: %v", err)
	}
	if !strings.Contains(out.String(), "empty") {
		t.Errorf("output = %q, want empty notice", out.String())
	}

	entry := filepath.Join(dir, "ab", "cdef.json")
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(entry, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := clearFileCache(dir); err != nil {
		t.Fatalf("clearFileCache: %v", err)
	}
	if _, err := os.Stat(entry); !os.IsNotExist(err) {
		t.Error("cache entry should be gone")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir should remain: %v", err)
	}
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/texpal/pkg/imageio"
)

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	c := New(io.Discard, log.InfoLevel)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeProject creates a scene referencing two textures and returns the
// scene path and the map directory.
func writeProject(t *testing.T) (scenePath, mapDir string) {
	t.Helper()
	dir := t.TempDir()
	for _, tex := range []struct {
		name string
		w, h int
	}{{"wood", 32, 32}, {"stone", 16, 16}} {
		img := image.NewNRGBA(image.Rect(0, 0, tex.w, tex.h))
		for i := range img.Pix {
			img.Pix[i] = 200
			if i%4 == 3 {
				img.Pix[i] = 255
			}
		}
		img.SetNRGBA(0, 0, color.NRGBA{A: 255})
		if err := imageio.WritePixels(filepath.Join(dir, tex.name+".png"), img); err != nil {
			t.Fatal(err)
		}
	}

	uvs := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	doc := map[string]any{
		"textures": []map[string]string{
			{"name": "wood", "path": "wood.png"},
			{"name": "stone", "path": "stone.png"},
		},
		"root": map[string]any{
			"name": "root",
			"primitives": []map[string]any{
				{"textures": []string{"wood"}, "uvs": uvs},
				{"textures": []string{"stone"}, "uvs": uvs},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	scenePath = filepath.Join(dir, "hut.scene.json")
	if err := os.WriteFile(scenePath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return scenePath, filepath.Join(dir, "maps")
}

func TestCommands(t *testing.T) {
	scenePath, mapDir := writeProject(t)
	common := []string{"--map-dir", mapDir, "--no-cache", "--config", filepath.Join(t.TempDir(), "none.toml")}

	out, err := run(t, append([]string{"build", "--page", "128x128", "--list", scenePath}, common...)...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "Palettized 1 scene files") {
		t.Errorf("build output:\n%s", out)
	}
	if !strings.Contains(out, "default_palette_rgb_1.png") {
		t.Errorf("build --list should name the page:\n%s", out)
	}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"stats", []string{"stats"}, []string{"default", "total"}},
		{"report text", []string{"report"}, []string{"palette size: 128 128", "hut.scene.json"}},
		{"report yaml", []string{"report", "-f", "yaml"}, []string{"page_w: 128", "name: wood"}},
		{"groups dot", []string{"groups"}, []string{"digraph groups", `"default"`}},
		{"cache path", []string{"cache", "path"}, []string{"texpal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, common...)...)
			if err != nil {
				t.Fatalf("%v: %v", tt.args, err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("%v output lacks %q:\n%s", tt.args, w, out)
				}
			}
		})
	}

	t.Run("remove", func(t *testing.T) {
		if _, err := run(t, append([]string{"remove", scenePath}, common...)...); err != nil {
			t.Fatalf("remove: %v", err)
		}
		out, err := run(t, append([]string{"report", "-f", "yaml"}, common...)...)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(out, "hut.scene.json") {
			t.Errorf("removed scene still reported:\n%s", out)
		}
	})
}

func TestCommandErrors(t *testing.T) {
	cfg := []string{"--config", filepath.Join(t.TempDir(), "none.toml"), "--map-dir", t.TempDir()}
	tests := []struct {
		name string
		args []string
	}{
		{"bad page", []string{"build", "--page", "big"}},
		{"missing directive", []string{"build", "-d", "/does/not/exist.txa"}},
		{"bad format", []string{"report", "-f", "xml"}},
		{"remove without args", []string{"remove"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, append(tt.args, cfg...)...); err == nil {
				t.Errorf("%v should fail", tt.args)
			}
		})
	}
}

func TestReportToFile(t *testing.T) {
	_, mapDir := writeProject(t)
	dest := filepath.Join(t.TempDir(), "report.yaml")
	_, err := run(t, "report", "-f", "yaml", "-o", dest, "--map-dir", mapDir, "--config", filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "params:") {
		t.Errorf("report file:\n%s", data)
	}
}

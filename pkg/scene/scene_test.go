package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/texpal/pkg/uv"
)

const sample = `{
  "textures": [
    {"name": "wood", "path": "tex/wood.png", "wrap_u": "clamp", "wrap_v": "clamp"},
    {"name": "brick", "path": "tex/brick.png", "wrap_u": "repeat"},
    {"name": "sky", "path": "tex/sky.png", "texgen": true}
  ],
  "root": {
    "name": "house",
    "children": [
      {"name": "wall", "primitives": [
        {"textures": ["wood"], "uvs": [[1.2, 0], [1.8, 0], [1.8, 1]]},
        {"textures": ["wood"], "uvs": [[0.1, 0.1], [0.9, 0.9]]}
      ]},
      {"name": "roof", "patches": [{"textures": ["brick"]}]},
      {"name": "dome", "primitives": [{"textures": ["sky"], "uvs": [[5, 5], [6, 6]]}]}
    ]
  }
}`

func mustParse(t *testing.T, s string) *File {
	t.Helper()
	f, err := Parse([]byte(s))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Syntax", `{`, "decode scene"},
		{"NoName", `{"textures":[{"path":"a.png"}]}`, "missing name"},
		{"Duplicate", `{"textures":[{"name":"a"},{"name":"a"}]}`, "declared twice"},
		{"Transform", `{"textures":[{"name":"a","transform":[1,2]}]}`, "9 values"},
		{"Undeclared", `{"textures":[],"root":{"name":"r","primitives":[{"textures":["x"],"uvs":[[0,0]]}]}}`, "undeclared"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestForEachTextureRef(t *testing.T) {
	f := mustParse(t, sample)
	var names []string
	wraps := map[string]uv.Wrap{}
	err := f.ForEachTextureRef(func(r Ref) error {
		names = append(names, r.Name)
		wraps[r.Name] = r.Wrap
		if !r.Transform.IsIdentity() {
			t.Errorf("%s: transform should default to identity", r.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "wood,brick,sky" {
		t.Errorf("names = %v", names)
	}
	if wraps["wood"] != uv.WrapClamp || wraps["brick"] != uv.WrapRepeat || wraps["sky"] != uv.WrapUnspecified {
		t.Errorf("wraps = %v", wraps)
	}
}

func TestScanUVs(t *testing.T) {
	tests := []struct {
		name    string
		texture string
		policy  uv.Policy
		want    uv.Range
	}{
		{"PolyRecenters", "wood", uv.PolicyPoly, uv.NewRange(uv.Vec2{U: 0.1, V: 0}, uv.Vec2{U: 0.9, V: 1})},
		{"GroupSharesShift", "wood", uv.PolicyGroup, uv.NewRange(uv.Vec2{U: 0.1, V: 0}, uv.Vec2{U: 1.8, V: 1})},
		{"Never", "wood", uv.PolicyNever, uv.NewRange(uv.Vec2{U: 0.1, V: 0}, uv.Vec2{U: 1.8, V: 1})},
		{"Patch", "brick", uv.PolicyPoly, uv.Unit},
		{"TexGen", "sky", uv.PolicyPoly, uv.Unit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, sample)
			got := f.ScanUVs(tt.texture, tt.policy, tt.policy)
			if !got.Any || !got.Min.AlmostEqual(tt.want.Min, 1e-9) || !got.Max.AlmostEqual(tt.want.Max, 1e-9) {
				t.Errorf("range = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScanUnknownTexture(t *testing.T) {
	f := mustParse(t, sample)
	if r := f.ScanUVs("nope", uv.PolicyPoly, uv.PolicyPoly); r.Any {
		t.Errorf("range = %+v, want empty", r)
	}
}

func TestApplyTranslation(t *testing.T) {
	f := mustParse(t, sample)
	f.Textures[0].Transform = uv.ScaleMat(2, 1).Slice()
	r := f.ScanUVs("wood", uv.PolicyPoly, uv.PolicyPoly)
	f.ApplyTranslation("wood")

	m := uv.MatFromSlice(f.Textures[0].Transform)
	var after uv.Range
	for _, prim := range f.Root.Children[0].Primitives {
		for _, v := range prim.UVs {
			after = after.Include(m.Apply(uv.Vec2{U: v[0], V: v[1]}))
		}
	}
	if !after.Min.AlmostEqual(r.Min, 1e-9) || !after.Max.AlmostEqual(r.Max, 1e-9) {
		t.Errorf("moved range = %+v, scanned %+v", after, r)
	}
}

func TestRewriteAndWrite(t *testing.T) {
	f := mustParse(t, sample)
	remap := uv.Remap(0, 0, 104, 104, 2, 256, 256)
	if err := f.RewriteReference("wood", filepath.Join("maps", "A", "A_palette_rgb_1.png"), remap, uv.WrapClamp); err != nil {
		t.Fatal(err)
	}
	if err := f.RewriteReference("nope", "x.png", uv.Identity(), uv.WrapClamp); err == nil {
		t.Error("expected error for unknown texture")
	}

	path := filepath.Join(t.TempDir(), "out", "house"+Ext)
	if err := f.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	ref, ok := back.Lookup("wood")
	if !ok {
		t.Fatal("wood missing after round trip")
	}
	if ref.Path != "maps/A/A_palette_rgb_1.png" {
		t.Errorf("path = %q", ref.Path)
	}
	if !ref.Transform.AlmostEqual(remap, 1e-12) {
		t.Errorf("transform = %v, want %v", ref.Transform, remap)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("stray files after write: %d entries", len(entries))
	}
}

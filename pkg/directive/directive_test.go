package directive

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/texpal/pkg/uv"
)

const sample = `# town palette
:palette 256 128
:margin 3
:imagetype webp
:group town with world shared dir maps/town margin 4
:remap group char never
:fuzz 0.05
:repeat trust
:omitsolitary
:bake

wood*.png brick.png : 64 32 margin 1   # trailing comment
sky*                : 50% omit
tile_*              : repeat
house*.scene.json   : town
wood_big            : clamp world
`

func mustParse(t *testing.T, s string) *File {
	t.Helper()
	f, err := Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestParseKeywords(t *testing.T) {
	f := mustParse(t, sample)
	if len(f.Invalid) != 0 {
		t.Fatalf("invalid lines: %+v", f.Invalid)
	}
	if f.PageW != 256 || f.PageH != 128 {
		t.Errorf("palette = %dx%d", f.PageW, f.PageH)
	}
	if f.Margin == nil || *f.Margin != 3 {
		t.Errorf("margin = %v", f.Margin)
	}
	if f.ImageType != "webp" {
		t.Errorf("imagetype = %q", f.ImageType)
	}
	if f.Remap == nil || *f.Remap != uv.PolicyGroup || f.RemapChar == nil || *f.RemapChar != uv.PolicyNever {
		t.Errorf("remap = %v char %v", f.Remap, f.RemapChar)
	}
	if f.Fuzz == nil || *f.Fuzz != 0.05 {
		t.Errorf("fuzz = %v", f.Fuzz)
	}
	if f.Repeat == nil || *f.Repeat != uv.RepeatTrust {
		t.Errorf("repeat = %v", f.Repeat)
	}
	if f.OmitSolitary == nil || !*f.OmitSolitary || !f.Bake {
		t.Errorf("omitsolitary = %v bake = %v", f.OmitSolitary, f.Bake)
	}

	want := GroupDecl{Line: 5, Name: "town", With: []string{"world", "shared"}, Dir: "maps/town", Margin: 4, HasMargin: true}
	if len(f.Groups) != 1 || !reflect.DeepEqual(f.Groups[0], want) {
		t.Errorf("groups = %+v, want %+v", f.Groups, want)
	}
}

func TestParseRules(t *testing.T) {
	f := mustParse(t, sample)
	if len(f.Rules) != 5 {
		t.Fatalf("rules = %d, want 5", len(f.Rules))
	}
	tests := []struct {
		name  string
		index int
		check func(r *Rule) bool
	}{
		{"Size", 0, func(r *Rule) bool { return r.W == 64 && r.H == 32 && r.HasMargin && r.Margin == 1 }},
		{"ScaleOmit", 1, func(r *Rule) bool { return r.Scale == 50 && r.Omit }},
		{"Repeat", 2, func(r *Rule) bool { return r.Wrap == uv.WrapRepeat }},
		{"SceneGroup", 3, func(r *Rule) bool { return reflect.DeepEqual(r.Groups, []string{"town"}) }},
		{"ClampGroup", 4, func(r *Rule) bool {
			return r.Wrap == uv.WrapClamp && reflect.DeepEqual(r.Groups, []string{"world"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := f.Rules[tt.index]; !tt.check(r) {
				t.Errorf("rule %d = %+v", tt.index, r)
			}
		})
	}
}

func TestInvalidLines(t *testing.T) {
	in := strings.Join([]string{
		":palette 0 128",
		":margin -1",
		":imagetype xyz",
		":remap sometimes",
		":remap poly chars group",
		":group lonely",
		":group g with",
		":frobnicate",
		"no colon here",
		" : 10 10",
		"a.png : 10",
		"b.png : margin",
		"c.png : -5%",
		"[ : omit",
		"ok.png : omit",
	}, "\n")
	f := mustParse(t, in)
	if len(f.Invalid) != 14 {
		t.Fatalf("invalid = %d, want 14: %+v", len(f.Invalid), f.Invalid)
	}
	for i, inv := range f.Invalid {
		if inv.Line != i+1 {
			t.Errorf("invalid[%d].Line = %d, want %d", i, inv.Line, i+1)
		}
	}
	if len(f.Rules) != 1 || f.Rules[0].Line != 15 {
		t.Errorf("rules = %+v, want only line 15", f.Rules)
	}
	if f.PageW != 0 || f.Margin != nil {
		t.Error("invalid keywords must not change settings")
	}
}

func TestSyntaxErrorWrapped(t *testing.T) {
	f := mustParse(t, ":margin x")
	if len(f.Invalid) != 1 {
		t.Fatal("expected one invalid line")
	}
	var tmp File
	err := tmp.keyword(1, []string{"margin", "x"})
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("err = %v, want ErrSyntax", err)
	}
}

func TestMatchFirstWins(t *testing.T) {
	f := mustParse(t, sample)
	tests := []struct {
		name, texture, source string
		wantLine              int
	}{
		{"ByName", "wood_big", "", 16},
		{"BySourceBase", "planks", "tex/brick.png", 12},
		{"Scale", "sky_day", "tex/sky_day.jpg", 13},
		{"Repeat", "tile_floor", "", 14},
		{"None", "metal", "tex/metal.png", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := f.MatchTexture(tt.texture, tt.source)
			if tt.wantLine == 0 {
				if ok {
					t.Errorf("matched line %d, want no match", r.Line)
				}
				return
			}
			if !ok || r.Line != tt.wantLine {
				t.Errorf("match = %v %v, want line %d", r, ok, tt.wantLine)
			}
		})
	}
}

func TestMatchScene(t *testing.T) {
	f := mustParse(t, sample)
	r, ok := f.MatchScene(filepath.Join("scenes", "house_01.scene.json"))
	if !ok || r.Line != 15 {
		t.Errorf("match = %v %v, want line 15", r, ok)
	}
	if _, ok := f.MatchScene("barn.scene.json"); ok {
		t.Error("barn should not match")
	}
	if _, ok := f.MatchTexture("house_01.scene.json", ""); ok {
		t.Error("scene patterns must not match textures")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "town.txa")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Rules) != 5 {
		t.Errorf("rules = %d", len(f.Rules))
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.txa")); err == nil {
		t.Error("expected error for missing file")
	}
}

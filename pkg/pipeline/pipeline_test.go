package pipeline

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/texpal/pkg/directive"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/state"
)

func TestValidateAndSetDefaults(t *testing.T) {
	opts := Options{}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if opts.MapDir != DefaultMapDir {
		t.Errorf("MapDir = %q, want %q", opts.MapDir, DefaultMapDir)
	}
	if opts.OutDir != DefaultMapDir {
		t.Errorf("OutDir = %q, want the map directory", opts.OutDir)
	}
	if want := filepath.Join(DefaultMapDir, state.DefaultFileName); opts.Session != want {
		t.Errorf("Session = %q, want %q", opts.Session, want)
	}

	fromConfig := Options{Config: &Config{MapDir: "atlas", Session: "mongodb://db/texpal"}}
	if err := fromConfig.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if fromConfig.MapDir != "atlas" || fromConfig.Session != "mongodb://db/texpal" {
		t.Errorf("config not applied: map dir %q, session %q", fromConfig.MapDir, fromConfig.Session)
	}

	neg := -1
	tests := []struct {
		name string
		opts Options
	}{
		{"zero page height", Options{PageW: 512}},
		{"negative margin", Options{Margin: &neg}},
		{"unknown image type", Options{ImageType: "psd"}},
		{"pattern without index", Options{Pattern: "%g_%p"}},
		{"unknown remap", Options{Remap: "sideways"}},
		{"unknown repeat", Options{Repeat: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.ValidateAndSetDefaults(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParamsLayering(t *testing.T) {
	margin := 6
	cfg := &Config{PageW: 256, PageH: 256, Margin: &margin, ImageType: "tga"}
	dir := &directive.File{PageW: 512, PageH: 512}

	opts := Options{Config: cfg}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	p := opts.params(directiveParams{dir})
	if p.PageW != 512 || p.Margin != 6 || p.ImageType != "tga" {
		t.Errorf("directive over config: got page %d margin %d type %s", p.PageW, p.Margin, p.ImageType)
	}
	if p.MapDir != DefaultMapDir {
		t.Errorf("MapDir = %q", p.MapDir)
	}

	opts.PageW, opts.PageH = 1024, 1024
	if p := opts.params(directiveParams{dir}); p.PageW != 1024 {
		t.Errorf("options over directive: got page %d", p.PageW)
	}
	if p := (&Options{}).params(directiveParams{}); p.PageW != palette.DefaultPageSize {
		t.Errorf("defaults: got page %d", p.PageW)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	writeFile(t, path, `
page_w = 256
page_h = 128
margin = 0
image_type = "webp"
remap = "group"
cache = "redis"
redis = "redis://localhost:6379/0"
cache_prefix = "texpal:town:"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PageW != 256 || cfg.PageH != 128 || cfg.Margin == nil || *cfg.Margin != 0 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Cache != CacheRedis || cfg.Redis == "" || cfg.CachePrefix != "texpal:town:" {
		t.Errorf("cache = %q, redis = %q, prefix = %q", cfg.Cache, cfg.Redis, cfg.CachePrefix)
	}

	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `page_size = 512`},
		{"bad image type", `image_type = "psd"`},
		{"redis without address", `cache = "redis"`},
		{"bad syntax", `page_w = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, "bad.toml")
			writeFile(t, p, tt.body)
			_, err := LoadConfig(p)
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("LoadConfig error = %v, want INVALID_CONFIG", err)
			}
		})
	}

	missing, err := LoadConfigIfExists(filepath.Join(dir, "absent.toml"))
	if err != nil || missing == nil {
		t.Errorf("LoadConfigIfExists on a missing file = %v, %v", missing, err)
	}
}

func TestBuild(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 32, 32)
	p.texture("brick.png", 16, 16)
	p.scene("house.scene.json", "wood", "brick")

	res := p.build(t, Options{})
	if len(res.Pages) != 1 {
		t.Fatalf("pages written = %v, want one", res.Pages)
	}
	if res.Failed() {
		t.Fatalf("failures: %v", res.Failures)
	}
	page := filepath.Join(p.maps, DefaultGroup, "default_palette_rgb_1.png")
	if res.Pages[0] != page {
		t.Errorf("page = %s, want %s", res.Pages[0], page)
	}
	hdr, err := imageio.ReadHeader(page)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	pages := res.Session.AllPages()
	if len(pages) != 1 || hdr.W != pages[0].W || hdr.H != pages[0].H {
		t.Errorf("page image is %dx%d, session pages %+v", hdr.W, hdr.H, pages)
	}
	if hdr.W > 128 || hdr.H > 128 {
		t.Errorf("page size = %dx%d exceeds 128x128", hdr.W, hdr.H)
	}

	out := p.readScene(t, "house.scene.json")
	rel := filepath.ToSlash(filepath.Join("..", "maps", DefaultGroup, "default_palette_rgb_1.png"))
	for _, tex := range out.Textures {
		if tex.Path != rel {
			t.Errorf("texture %s path = %q, want %q", tex.Name, tex.Path, rel)
		}
		if len(tex.Transform) != 9 {
			t.Errorf("texture %s has no placement transform", tex.Name)
		}
		if tex.WrapU != "clamp" {
			t.Errorf("texture %s wrap = %q, want clamp", tex.Name, tex.WrapU)
		}
	}

	if _, err := os.Stat(filepath.Join(p.maps, state.DefaultFileName)); err != nil {
		t.Errorf("session not saved: %v", err)
	}
	if res.Stats.Textures != 2 {
		t.Errorf("stats textures = %d, want 2", res.Stats.Textures)
	}
	if len(res.Surprises) == 0 {
		t.Error("textures without rules should be reported as surprises")
	}
}

func TestBuildIncremental(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 32, 32)
	p.scene("house.scene.json", "wood")

	p.build(t, Options{})
	again := p.build(t, Options{})
	if len(again.Pages) != 0 || len(again.Scenes) != 0 || len(again.Copies) != 0 {
		t.Errorf("second build rewrote pages %v, scenes %v, copies %v", again.Pages, again.Scenes, again.Copies)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(p.path("wood.png"), future, future); err != nil {
		t.Fatal(err)
	}
	changed := p.build(t, Options{})
	if len(changed.Pages) != 1 {
		t.Errorf("changed source rewrote pages %v, want one", changed.Pages)
	}
	if len(changed.Scenes) != 0 {
		t.Errorf("unmoved texture rewrote scenes %v", changed.Scenes)
	}

	all := p.build(t, Options{All: true})
	if len(all.Pages) != 1 || len(all.Scenes) != 1 {
		t.Errorf("forced build wrote pages %v, scenes %v", all.Pages, all.Scenes)
	}
}

func TestBuildOmitted(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 32, 32)
	p.texture("sky.png", 64, 32)
	p.scene("house.scene.json", "wood", "sky")
	p.directive("sky : omit\nwood : 16 16\n")

	res := p.build(t, Options{})
	copyPath := filepath.Join(p.maps, DefaultGroup, "sky.png")
	if len(res.Copies) != 1 || res.Copies[0] != copyPath {
		t.Fatalf("copies = %v, want [%s]", res.Copies, copyPath)
	}
	hdr, err := imageio.ReadHeader(copyPath)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.W != 64 || hdr.H != 32 {
		t.Errorf("copy size = %dx%d, want 64x32", hdr.W, hdr.H)
	}

	out := p.readScene(t, "house.scene.json")
	for _, tex := range out.Textures {
		if tex.Name == "sky" && tex.Path != filepath.ToSlash(filepath.Join("..", "maps", DefaultGroup, "sky.png")) {
			t.Errorf("sky path = %q", tex.Path)
		}
	}

	sess := res.Session
	wood := sess.LookupTexture("wood")
	pl := sess.TexturePlacements(wood.ID)
	if len(pl) != 1 || !pl[0].Packed {
		t.Fatalf("wood placements = %+v", pl)
	}
	if want := 16 + 2*palette.DefaultMargin; pl[0].Rect.W != want {
		t.Errorf("wood rect width = %d, want %d", pl[0].Rect.W, want)
	}

	// Dropping the omit turns the copy into a packed placement and the old
	// copy is removed.
	p.directive("wood : 16 16\n")
	res = p.build(t, Options{})
	if _, err := os.Stat(copyPath); !os.IsNotExist(err) {
		t.Errorf("stale copy still on disk: %v", err)
	}
	if len(res.Removed) == 0 {
		t.Error("expected removed files")
	}
}

func TestBuildOversizedShiftsUVs(t *testing.T) {
	p := newProject(t)
	p.texture("big.png", 200, 200)
	scenePath := p.path("tile.scene.json")
	writeFile(t, scenePath, `{
  "textures": [{"name": "big", "path": "big.png", "wrap_u": "repeat", "wrap_v": "repeat"}],
  "root": {"name": "root", "primitives": [
    {"textures": ["big"], "uvs": [[1.2, 0.2], [1.8, 0.2], [1.8, 0.8]]}
  ]}
}`)
	p.scenes = append(p.scenes, scenePath)

	res := p.build(t, Options{})
	big := res.Session.LookupTexture("big")
	pls := res.Session.TexturePlacements(big.ID)
	if len(pls) != 1 || pls[0].Reason != palette.OmitSize {
		t.Fatalf("big placements = %+v, want one omitted for size", pls)
	}

	data, err := os.ReadFile(filepath.Join(p.out, "tile.scene.json"))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Textures []struct {
			WrapU string `json:"wrap_u"`
			WrapV string `json:"wrap_v"`
		} `json:"textures"`
		Root struct {
			Primitives []struct {
				UVs [][2]float64 `json:"uvs"`
			} `json:"primitives"`
		} `json:"root"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Textures) != 1 || len(out.Root.Primitives) != 1 {
		t.Fatalf("unexpected output scene: %s", data)
	}
	if out.Textures[0].WrapU != "clamp" || out.Textures[0].WrapV != "clamp" {
		t.Fatalf("wrap = %q/%q, want clamp", out.Textures[0].WrapU, out.Textures[0].WrapV)
	}
	for _, v := range out.Root.Primitives[0].UVs {
		for _, c := range v {
			if c < 0.2-1e-9 || c > 0.8+1e-9 {
				t.Errorf("uv %v outside [0.2, 0.8] under clamp", v)
			}
		}
	}
}

func TestBuildGroups(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 32, 32)
	p.texture("roof.png", 32, 32)
	p.scene("house.scene.json", "wood", "roof")
	p.scene("barn.scene.json", "wood")
	p.directive(":group town with world\n:group world dir shared\nhouse.scene.json : town\nbarn.scene.json : world\n")

	res := p.build(t, Options{})
	sess := res.Session
	world := sess.LookupGroup("world")
	if world == nil {
		t.Fatal("world group missing")
	}
	wood := sess.LookupTexture("wood")
	pls := sess.TexturePlacements(wood.ID)
	if len(pls) != 1 || pls[0].Group != world.ID {
		t.Errorf("wood should be shared from world, got %+v", pls)
	}
	if len(sess.Pages(world.ID)) != 1 {
		t.Errorf("world pages = %d", len(sess.Pages(world.ID)))
	}
	page := sess.Pages(world.ID)[0]
	if filepath.Dir(page.Filename) != filepath.Join(p.maps, "shared") {
		t.Errorf("world page %s not under its dir", page.Filename)
	}
}

func TestBuildRemove(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 32, 32)
	p.texture("brick.png", 32, 32)
	p.scene("house.scene.json", "wood")
	p.scene("barn.scene.json", "brick")

	p.build(t, Options{})
	res := p.build(t, Options{Scenes: []string{}, Remove: []string{p.path("barn.scene.json")}})
	if res.Session.Scene(p.path("barn.scene.json")) != nil {
		t.Error("barn still in session")
	}
	if res.Session.Scene(p.path("house.scene.json")) == nil {
		t.Error("house dropped from session")
	}
	if _, err := os.Stat(filepath.Join(p.out, "barn.scene.json")); !os.IsNotExist(err) {
		t.Errorf("barn output still on disk: %v", err)
	}
	brick := res.Session.LookupTexture("brick")
	if pls := res.Session.TexturePlacements(brick.ID); len(pls) != 0 {
		t.Errorf("brick still placed: %+v", pls)
	}
}

func TestBuildRemoveAll(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 32, 32)
	p.texture("brick.png", 32, 32)
	p.scene("house.scene.json", "wood", "brick")
	p.directive(":group g1 dir g1\nhouse.scene.json : g1\n")

	p.build(t, Options{})
	page := filepath.Join(p.maps, "g1", "g1_palette_rgb_1.png")
	if _, err := os.Stat(page); err != nil {
		t.Fatalf("page not written: %v", err)
	}

	res := p.build(t, Options{All: true, Scenes: []string{}, Remove: []string{p.path("house.scene.json")}})
	if _, err := os.Stat(page); !os.IsNotExist(err) {
		t.Errorf("page of removed scene still on disk: %v", err)
	}
	if n := len(res.Session.AllPages()); n != 0 {
		t.Errorf("session still has %d pages", n)
	}
}

func TestBuildErrors(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 8, 8)
	p.scene("house.scene.json", "wood")

	_, err := p.runner().Build(context.Background(), p.options(Options{Scenes: []string{p.path("missing.scene.json")}}))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing scene: error = %v, want NOT_FOUND", err)
	}

	_, err = p.runner().Build(context.Background(), p.options(Options{OutDir: p.dir}))
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("output over input: error = %v, want INVALID_INPUT", err)
	}

	store := state.NewFileStore(filepath.Join(p.maps, state.DefaultFileName))
	if err := os.MkdirAll(p.maps, 0o755); err != nil {
		t.Fatal(err)
	}
	unlock, err := store.Lock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = p.runner().Build(ctx, p.options(Options{}))
	if !errors.Is(err, errors.ErrCodeLocked) {
		t.Errorf("locked session: error = %v, want LOCKED", err)
	}
}

func TestBuildUnreadableTexture(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 16, 16)
	writeFile(t, p.path("broken.png"), "not an image")
	p.scene("house.scene.json", "wood", "broken")

	res := p.build(t, Options{})
	if res.Failed() {
		t.Fatalf("failures: %v", res.Failures)
	}
	broken := res.Session.LookupTexture("broken")
	if broken.SizeKnown {
		t.Error("broken texture should have an unknown size")
	}
	pls := res.Session.TexturePlacements(broken.ID)
	if len(pls) != 1 || pls[0].Reason != palette.OmitUnknown {
		t.Errorf("broken placement = %+v, want omitted as unknown", pls)
	}
	out := p.readScene(t, "house.scene.json")
	for _, tex := range out.Textures {
		if tex.Name == "broken" && tex.Path != "../broken.png" {
			t.Errorf("broken path = %q, want the source", tex.Path)
		}
	}
}

func TestRunnerLoad(t *testing.T) {
	p := newProject(t)
	p.texture("wood.png", 16, 16)
	p.scene("house.scene.json", "wood")

	empty, err := p.runner().Load(context.Background(), p.options(Options{}))
	if err != nil {
		t.Fatalf("Load before build: %v", err)
	}
	if len(empty.Scenes()) != 0 {
		t.Error("expected an empty session")
	}

	p.build(t, Options{})
	sess, err := p.runner().Load(context.Background(), p.options(Options{}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sess.Scenes()) != 1 || len(sess.AllPages()) != 1 {
		t.Errorf("loaded %d scenes, %d pages", len(sess.Scenes()), len(sess.AllPages()))
	}
}

// =============================================================================
// Helpers
// =============================================================================

type project struct {
	dir    string
	maps   string
	out    string
	scenes []string
	txa    string
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()
	return &project{dir: dir, maps: filepath.Join(dir, "maps"), out: filepath.Join(dir, "out")}
}

func (p *project) path(name string) string { return filepath.Join(p.dir, name) }

func (p *project) texture(name string, w, h int) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	if err := imageio.WritePixels(p.path(name), img); err != nil {
		panic(err)
	}
}

func (p *project) scene(name string, textures ...string) {
	type def struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	type prim struct {
		Textures []string     `json:"textures"`
		UVs      [][2]float64 `json:"uvs"`
	}
	doc := struct {
		Textures []def `json:"textures"`
		Root     any   `json:"root"`
	}{}
	var prims []prim
	for _, tex := range textures {
		doc.Textures = append(doc.Textures, def{Name: tex, Path: tex + ".png"})
		prims = append(prims, prim{Textures: []string{tex}, UVs: [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}})
	}
	doc.Root = map[string]any{"name": "root", "primitives": prims}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile(p.path(name), data, 0o644); err != nil {
		panic(err)
	}
	p.scenes = append(p.scenes, p.path(name))
}

func (p *project) directive(body string) {
	p.txa = p.path("textures.txa")
	if err := os.WriteFile(p.txa, []byte(body), 0o644); err != nil {
		panic(err)
	}
}

func (p *project) options(opts Options) Options {
	if opts.Scenes == nil {
		opts.Scenes = p.scenes
	}
	if opts.Directive == "" {
		opts.Directive = p.txa
	}
	if opts.MapDir == "" {
		opts.MapDir = p.maps
	}
	if opts.OutDir == "" {
		opts.OutDir = p.out
	}
	if opts.PageW == 0 {
		opts.PageW, opts.PageH = 128, 128
	}
	return opts
}

func (p *project) runner() *Runner {
	return NewRunner(nil, log.New(io.Discard))
}

func (p *project) build(t *testing.T, opts Options) *Result {
	t.Helper()
	res, err := p.runner().Build(context.Background(), p.options(opts))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res
}

type sceneOut struct {
	Textures []struct {
		Name      string    `json:"name"`
		Path      string    `json:"path"`
		Transform []float64 `json:"transform"`
		WrapU     string    `json:"wrap_u"`
	} `json:"textures"`
}

func (p *project) readScene(t *testing.T, name string) sceneOut {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.out, name))
	if err != nil {
		t.Fatalf("read output scene: %v", err)
	}
	var out sceneOut
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Package palette implements the texture palettization core: the palette
// group graph, the group assignment resolver, the shelf-scan atlas packer and
// the staleness tracker that drives incremental rebuilds.
//
// # Ownership
//
// A [Session] owns every entity in index-stable arenas. Textures and groups
// are addressed by [TextureID] and [GroupID] (positions in the arena slices),
// pages by a session-unique [PageID] that survives across runs. Placements
// hold IDs, never pointers into another arena, so groups and pages can be
// replaced during reconciliation without invalidating anything.
//
// # Pipeline
//
// A build drives a session through these calls, in order:
//
//	s.AddScene(rec)            // scan
//	s.Assign()                 // resolve groups and reconcile placements
//	s.DetermineSizes()         // omit reasons per placement
//	s.PackAll()                // place pending rectangles, shrink, solitary check
//	s.MarkStale(bake, newerFn) // decide which scenes to rebuild
//
// Pages and placements are then rendered by the caller, which reports
// success back through [Page.MarkWritten] and [Placement.MarkFilled].
package palette

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/texpal/pkg/uv"
)

// Default parameter values.
const (
	DefaultPageSize  = 512
	DefaultMargin    = 2
	DefaultImageType = "png"
	DefaultPattern   = "%g_palette_%p_%i"
	DefaultFuzz      = 0.01
)

// Page channel classes. Textures that use alpha never share a page with
// opaque ones.
const (
	ClassRGB  = "rgb"
	ClassRGBA = "rgba"
)

type (
	// TextureID indexes Session textures.
	TextureID int
	// GroupID indexes Session groups.
	GroupID int
	// PageID identifies an atlas page for the lifetime of the session.
	PageID int
)

// Params are the session-wide packing parameters.
type Params struct {
	PageW        int             `json:"page_w"`
	PageH        int             `json:"page_h"`
	Margin       int             `json:"margin"`
	ImageType    string          `json:"image_type"`
	Pattern      string          `json:"pattern"`
	MapDir       string          `json:"map_dir"`
	Fuzz         float64         `json:"fuzz"`
	Repeat       uv.RepeatPolicy `json:"repeat"`
	Remap        uv.Policy       `json:"remap"`
	RemapChar    uv.Policy       `json:"remap_char"`
	OmitSolitary bool            `json:"omit_solitary"`
}

// DefaultParams returns the parameters used when nothing overrides them.
func DefaultParams() Params {
	return Params{
		PageW:     DefaultPageSize,
		PageH:     DefaultPageSize,
		Margin:    DefaultMargin,
		ImageType: DefaultImageType,
		Pattern:   DefaultPattern,
		Fuzz:      DefaultFuzz,
		Repeat:    uv.RepeatCorrect,
		Remap:     uv.PolicyPoly,
		RemapChar: uv.PolicyPoly,
	}
}

// layoutChanged reports whether switching from p to o invalidates every page.
func (p Params) layoutChanged(o Params) bool {
	return p.PageW != o.PageW || p.PageH != o.PageH ||
		p.ImageType != o.ImageType || p.Pattern != o.Pattern || p.MapDir != o.MapDir
}

// Size is a pixel size.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool { return s.W == 0 && s.H == 0 }

// Rect is a pixel rectangle on a page, top-left origin.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.H }

// Intersects reports whether r and o share at least one pixel.
func (r Rect) Intersects(o Rect) bool {
	return !(r.X >= o.Right() || r.Right() <= o.X || r.Y >= o.Bottom() || r.Bottom() <= o.Y)
}

// Texture is a source image known to the session.
type Texture struct {
	ID     TextureID `json:"id"`
	Name   string    `json:"name"`
	Source string    `json:"source"`

	// Orig is the source pixel size; valid only when SizeKnown.
	Orig      Size      `json:"orig"`
	SizeKnown bool      `json:"size_known"`
	Channels  int       `json:"channels"`
	Alpha     bool      `json:"alpha"`
	ModTime   time.Time `json:"mod_time"`

	// Directive requests.
	Request   Size       `json:"request"`
	Scale     float64    `json:"scale"`
	Margin    int        `json:"margin"`
	HasMargin bool       `json:"has_margin"`
	Omit      bool       `json:"omit"`
	Wrap      uv.Wrap    `json:"wrap"`
	Groups    []GroupID  `json:"groups,omitempty"`
	Matched   bool       `json:"matched"`
	Reason    OmitReason `json:"reason"`
}

// PackSize returns the size the texture occupies on a page, margin
// excluded. An explicit size request wins over a percentage scale, which
// wins over the source size.
func (t *Texture) PackSize() (Size, bool) {
	if !t.Request.IsZero() {
		return t.Request, true
	}
	if !t.SizeKnown {
		return Size{}, false
	}
	if t.Scale > 0 && t.Scale != 100 {
		return Size{W: scaleDim(t.Orig.W, t.Scale), H: scaleDim(t.Orig.H, t.Scale)}, true
	}
	return t.Orig, true
}

func scaleDim(d int, pct float64) int {
	v := int(float64(d)*pct/100 + 0.5)
	if v < 1 {
		return 1
	}
	return v
}

// Class returns the page channel class the texture belongs to.
func (t *Texture) Class() string {
	if t.Alpha {
		return ClassRGBA
	}
	return ClassRGB
}

// PaletteGroup is a named bucket of textures resident together.
type PaletteGroup struct {
	ID        GroupID   `json:"id"`
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	Margin    int       `json:"margin"`
	HasMargin bool      `json:"has_margin"`
	Parents   []GroupID `json:"parents,omitempty"`
	Pages     []PageID  `json:"pages,omitempty"`

	// Dependents counts the scene files whose complete group set contains
	// this group. Recomputed by Assign.
	Dependents int `json:"-"`
}

// OutputDir returns the group's directory under the map directory.
func (g *PaletteGroup) OutputDir(mapDir string) string {
	dir := g.Dir
	if dir == "" {
		dir = g.Name
	}
	return filepath.Join(mapDir, dir)
}

// Page is a fixed-size atlas image belonging to one group.
type Page struct {
	ID      PageID  `json:"id"`
	Group   GroupID `json:"group"`
	Class   string  `json:"class"`
	Index   int     `json:"index"`
	W       int     `json:"w"`
	H       int     `json:"h"`
	New     bool    `json:"new"`
	Changed bool    `json:"changed"`
	Cleared []Rect  `json:"cleared,omitempty"`

	// Written reports that an image exists on disk under Filename. A forced
	// regeneration keeps it set; a rename clears it.
	Written bool `json:"written,omitempty"`

	// Filename is the output path, derived from the filename pattern.
	Filename string `json:"filename"`

	placements []*Placement
}

// Placements returns the placements on the page in placement order.
func (p *Page) Placements() []*Placement { return p.placements }

// Len returns the number of placements on the page.
func (p *Page) Len() int { return len(p.placements) }

// MaxBottom returns the lowest edge of any placement.
func (p *Page) MaxBottom() int {
	m := 0
	for _, pl := range p.placements {
		if b := pl.Rect.Bottom(); b > m {
			m = b
		}
	}
	return m
}

// UsedPixels returns the area covered by placements, margins included.
func (p *Page) UsedPixels() int {
	n := 0
	for _, pl := range p.placements {
		n += pl.Rect.W * pl.Rect.H
	}
	return n
}

// MarkWritten records a successful write of the page image: the page is no
// longer new, its file exists, cleared regions have been wiped and every
// placement on it is filled.
func (p *Page) MarkWritten() {
	p.New = false
	p.Written = true
	p.Changed = false
	p.Cleared = nil
	for _, pl := range p.placements {
		pl.Filled = true
	}
}

// Placement is a texture's presence in one palette group.
type Placement struct {
	Texture TextureID  `json:"texture"`
	Group   GroupID    `json:"group"`
	Reason  OmitReason `json:"reason"`
	Packed  bool       `json:"packed"`
	Page    PageID     `json:"page,omitempty"`
	Rect    Rect       `json:"rect"`
	Margin  int        `json:"margin"`
	Wrap    uv.Wrap    `json:"wrap"`
	UVs     uv.Range   `json:"uvs"`

	// Filled is true once the current rectangle (or stand-alone copy) has
	// been written to disk.
	Filled bool `json:"filled"`
	// CopyPath is the stand-alone copy written for omitted textures.
	CopyPath string `json:"copy_path,omitempty"`
	CopySize Size   `json:"copy_size"`

	want Size
	orig *placementState
}

// Want returns the rectangle size, margin included, the placement needs on
// a page.
func (pl *Placement) Want() Size { return pl.want }

func (pl *Placement) width() int {
	if pl.Packed {
		return pl.Rect.W
	}
	return pl.want.W
}

func (pl *Placement) height() int {
	if pl.Packed {
		return pl.Rect.H
	}
	return pl.want.H
}

// Pending reports whether the placement still waits for the packer.
func (pl *Placement) Pending() bool { return !pl.Packed && pl.Reason == OmitNone }

// MarkFilled records a successful write of the placement's pixels.
func (pl *Placement) MarkFilled() { pl.Filled = true }

// Reference is one scene file's use of a texture.
type Reference struct {
	Name      string    `json:"name"`
	Texture   TextureID `json:"texture"`
	UVs       uv.Range  `json:"uvs"`
	Wrap      uv.Wrap   `json:"wrap"`
	Transform uv.Mat3   `json:"transform"`
	Alpha     bool      `json:"alpha"`

	// Group is the palette group the scene will load the texture from.
	// Set by PackAll.
	Group GroupID `json:"group"`
	// Target is the image file the rewritten scene last pointed this
	// reference at. Empty until the scene has been written.
	Target string `json:"target,omitempty"`
}

// SceneRecord is the session's view of one input scene file.
type SceneRecord struct {
	Path     string       `json:"path"`
	Output   string       `json:"output"`
	ModTime  time.Time    `json:"mod_time"`
	Groups   []GroupID    `json:"groups"`
	Refs     []*Reference `json:"refs"`
	Matched  bool         `json:"matched"`
	Complete GroupSet     `json:"-"`

	NeedsRebuild bool `json:"needs_rebuild"`
}

// placementKey addresses a placement by texture and group.
type placementKey struct {
	tex   TextureID
	group GroupID
}

// Session is the aggregate owning every palettization entity.
type Session struct {
	Params Params

	textures  []*Texture
	texByName map[string]TextureID

	groups      []*PaletteGroup
	groupByName map[string]GroupID
	complete    map[GroupID]GroupSet

	pages    map[PageID]*Page
	nextPage PageID

	placements map[placementKey]*Placement
	scenes     map[string]*SceneRecord

	obsolete []string
	warnings []string
}

// NewSession returns an empty session with the given parameters.
func NewSession(p Params) *Session {
	return &Session{
		Params:      p,
		texByName:   make(map[string]TextureID),
		groupByName: make(map[string]GroupID),
		complete:    make(map[GroupID]GroupSet),
		pages:       make(map[PageID]*Page),
		nextPage:    1,
		placements:  make(map[placementKey]*Placement),
		scenes:      make(map[string]*SceneRecord),
	}
}

// SetParams replaces the session parameters. A change in page size, image
// type, filename pattern or map directory discards every page so all
// textures are repacked from scratch.
func (s *Session) SetParams(p Params) {
	reset := s.Params.layoutChanged(p)
	s.Params = p
	if reset {
		s.ResetPages()
	}
}

// ResetPages unplaces every placement and drops all pages.
func (s *Session) ResetPages() {
	for _, pl := range s.placements {
		if pl.Packed {
			pl.Packed = false
			pl.Page = 0
			pl.Rect = Rect{}
		}
		pl.Filled = false
		if pl.Reason == OmitSolitary {
			pl.Reason = OmitNone
		}
	}
	for _, p := range s.AllPages() {
		if p.Written {
			s.obsolete = append(s.obsolete, p.Filename)
		}
	}
	for _, g := range s.groups {
		g.Pages = nil
	}
	s.pages = make(map[PageID]*Page)
}

// Obsolete returns output files (pages and stand-alone copies) that no
// longer belong to any placement and should be removed from disk.
func (s *Session) Obsolete() []string { return s.obsolete }

// ClearObsolete forgets the obsolete file list once the caller has acted
// on it.
func (s *Session) ClearObsolete() { s.obsolete = nil }

// Warnings returns the input-data warnings collected so far.
func (s *Session) Warnings() []string { return s.warnings }

func (s *Session) warnf(msg string) { s.warnings = append(s.warnings, msg) }

// Texture returns the texture with the given name, creating it on first
// reference.
func (s *Session) Texture(name string) *Texture {
	if id, ok := s.texByName[name]; ok {
		return s.textures[id]
	}
	t := &Texture{ID: TextureID(len(s.textures)), Name: name}
	s.textures = append(s.textures, t)
	s.texByName[name] = t.ID
	return t
}

// LookupTexture returns the named texture or nil.
func (s *Session) LookupTexture(name string) *Texture {
	if id, ok := s.texByName[name]; ok {
		return s.textures[id]
	}
	return nil
}

// TextureByID returns the texture with the given ID.
func (s *Session) TextureByID(id TextureID) *Texture { return s.textures[id] }

// Textures returns all textures sorted by name.
func (s *Session) Textures() []*Texture {
	out := append([]*Texture(nil), s.textures...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Group returns the group with the given name, creating it on first
// reference.
func (s *Session) Group(name string) *PaletteGroup {
	if id, ok := s.groupByName[name]; ok {
		return s.groups[id]
	}
	g := &PaletteGroup{ID: GroupID(len(s.groups)), Name: name}
	s.groups = append(s.groups, g)
	s.groupByName[name] = g.ID
	return g
}

// LookupGroup returns the named group or nil.
func (s *Session) LookupGroup(name string) *PaletteGroup {
	if id, ok := s.groupByName[name]; ok {
		return s.groups[id]
	}
	return nil
}

// GroupByID returns the group with the given ID.
func (s *Session) GroupByID(id GroupID) *PaletteGroup { return s.groups[id] }

// NumGroups returns the number of groups; valid IDs are 0 to NumGroups-1.
func (s *Session) NumGroups() int { return len(s.groups) }

// Groups returns all groups sorted by dependency level, then name.
func (s *Session) Groups() []*PaletteGroup {
	out := append([]*PaletteGroup(nil), s.groups...)
	levels := make(map[GroupID]int, len(out))
	for _, g := range out {
		levels[g.ID] = s.DependencyLevel(g.ID)
	}
	sort.Slice(out, func(i, j int) bool {
		if levels[out[i].ID] != levels[out[j].ID] {
			return levels[out[i].ID] < levels[out[j].ID]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Page returns the page with the given ID or nil.
func (s *Session) Page(id PageID) *Page { return s.pages[id] }

// Pages returns the pages of a group in creation order.
func (s *Session) Pages(g GroupID) []*Page {
	grp := s.groups[g]
	out := make([]*Page, 0, len(grp.Pages))
	for _, id := range grp.Pages {
		if p := s.pages[id]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// AllPages returns every page ordered by ID.
func (s *Session) AllPages() []*Page {
	out := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Placement returns the placement of texture t in group g, or nil.
func (s *Session) Placement(t TextureID, g GroupID) *Placement {
	return s.placements[placementKey{t, g}]
}

// TexturePlacements returns the placements of a texture sorted by group
// name.
func (s *Session) TexturePlacements(t TextureID) []*Placement {
	var out []*Placement
	for k, pl := range s.placements {
		if k.tex == t {
			out = append(out, pl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.groups[out[i].Group].Name < s.groups[out[j].Group].Name
	})
	return out
}

// GroupPlacements returns the placements in a group sorted by texture name.
func (s *Session) GroupPlacements(g GroupID) []*Placement {
	var out []*Placement
	for k, pl := range s.placements {
		if k.group == g {
			out = append(out, pl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.textures[out[i].Texture].Name < s.textures[out[j].Texture].Name
	})
	return out
}

// AllPlacements returns every placement sorted by texture, then group name.
func (s *Session) AllPlacements() []*Placement {
	out := make([]*Placement, 0, len(s.placements))
	for _, pl := range s.placements {
		out = append(out, pl)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := s.textures[out[i].Texture].Name, s.textures[out[j].Texture].Name
		if ti != tj {
			return ti < tj
		}
		return s.groups[out[i].Group].Name < s.groups[out[j].Group].Name
	})
	return out
}

// AddScene records (or replaces) a scanned scene file. Targets written by
// the previous run carry over to references of the same name.
func (s *Session) AddScene(rec *SceneRecord) {
	if prev := s.scenes[rec.Path]; prev != nil {
		targets := make(map[string]string, len(prev.Refs))
		for _, ref := range prev.Refs {
			targets[ref.Name] = ref.Target
		}
		for _, ref := range rec.Refs {
			if ref.Target == "" {
				ref.Target = targets[ref.Name]
			}
		}
	}
	s.scenes[rec.Path] = rec
}

// RemoveScene forgets a scene file. It reports whether the scene was known.
func (s *Session) RemoveScene(path string) bool {
	if _, ok := s.scenes[path]; !ok {
		return false
	}
	delete(s.scenes, path)
	return true
}

// Scene returns the record for a scene path, or nil.
func (s *Session) Scene(path string) *SceneRecord { return s.scenes[path] }

// Scenes returns all scene records sorted by path.
func (s *Session) Scenes() []*SceneRecord {
	out := make([]*SceneRecord, 0, len(s.scenes))
	for _, r := range s.scenes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// newPage creates an empty page for group g and class, appended to the
// group's page list.
func (s *Session) newPage(g GroupID, class string) *Page {
	index := 0
	for _, p := range s.Pages(g) {
		if p.Class == class && p.Index >= index {
			index = p.Index + 1
		}
	}
	p := &Page{
		ID:    s.nextPage,
		Group: g,
		Class: class,
		Index: index,
		W:     s.Params.PageW,
		H:     s.Params.PageH,
		New:   true,
	}
	s.nextPage++
	p.Filename = s.pageFilename(p)
	s.pages[p.ID] = p
	s.groups[g].Pages = append(s.groups[g].Pages, p.ID)
	return p
}

// dropPage removes an empty page from the session. The ID of a page created
// and dropped within the same run is handed out again.
func (s *Session) dropPage(p *Page) {
	delete(s.pages, p.ID)
	grp := s.groups[p.Group]
	for i, id := range grp.Pages {
		if id == p.ID {
			grp.Pages = append(grp.Pages[:i], grp.Pages[i+1:]...)
			break
		}
	}
	if !p.Written && p.ID == s.nextPage-1 {
		s.nextPage--
	}
}

// pageFilename expands the filename pattern for a page: %g is the group
// name, %p the channel class, %i the 1-based page index and %% a literal
// percent sign.
func (s *Session) pageFilename(p *Page) string {
	var b strings.Builder
	pat := s.Params.Pattern
	if pat == "" {
		pat = DefaultPattern
	}
	for i := 0; i < len(pat); i++ {
		c := pat[i]
		if c != '%' || i+1 >= len(pat) {
			b.WriteByte(c)
			continue
		}
		i++
		switch pat[i] {
		case '%':
			b.WriteByte('%')
		case 'g':
			b.WriteString(s.groups[p.Group].Name)
		case 'p':
			b.WriteString(p.Class)
		case 'i':
			b.WriteString(strconv.Itoa(p.Index + 1))
		default:
			b.WriteByte('%')
			b.WriteByte(pat[i])
		}
	}
	ext := s.Params.ImageType
	if ext == "" {
		ext = DefaultImageType
	}
	return filepath.Join(s.groups[p.Group].OutputDir(s.Params.MapDir), b.String()+"."+ext)
}

// marginFor returns the margin applied to a texture in a group: an explicit
// texture margin, else the group override, else the session default.
func (s *Session) marginFor(t *Texture, g *PaletteGroup) int {
	switch {
	case t.HasMargin:
		return t.Margin
	case g.HasMargin:
		return g.Margin
	default:
		return s.Params.Margin
	}
}

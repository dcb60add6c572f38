// Package report describes a palette session for people: a plain-text
// report in the classic palette-info layout, a YAML export of the same
// model, summary statistics and a group graph rendered with Graphviz.
//
// All outputs are built from a [Report], which is assembled once from a
// session:
//
//	r := report.New(sess, directives.Invalid)
//	report.WriteText(os.Stdout, r)
//	report.WriteYAML(f, r)
//	svg, err := report.RenderSVG(ctx, report.ToDOT(r))
package report

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/texpal/pkg/directive"
	"github.com/matzehuels/texpal/pkg/palette"
)

// Report is the serializable description of a session.
type Report struct {
	Params    Params              `json:"params" yaml:"params"`
	Scenes    []Scene             `json:"scenes" yaml:"scenes"`
	Groups    []Group             `json:"groups" yaml:"groups"`
	Textures  []Texture           `json:"textures" yaml:"textures"`
	Surprises []string            `json:"surprises,omitempty" yaml:"surprises,omitempty"`
	Invalid   []directive.Invalid `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	Cycles    []string            `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	Warnings  []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Stats     palette.Stats       `json:"stats" yaml:"stats"`
}

// Params are the session parameters in report form.
type Params struct {
	PageW        int     `json:"page_w" yaml:"page_w"`
	PageH        int     `json:"page_h" yaml:"page_h"`
	Margin       int     `json:"margin" yaml:"margin"`
	ImageType    string  `json:"image_type" yaml:"image_type"`
	Pattern      string  `json:"pattern" yaml:"pattern"`
	MapDir       string  `json:"map_dir" yaml:"map_dir"`
	Fuzz         float64 `json:"fuzz" yaml:"fuzz"`
	Repeat       string  `json:"repeat" yaml:"repeat"`
	Remap        string  `json:"remap" yaml:"remap"`
	RemapChar    string  `json:"remap_char" yaml:"remap_char"`
	OmitSolitary bool    `json:"omit_solitary" yaml:"omit_solitary"`
}

// Scene is one scene file and the textures it references.
type Scene struct {
	Path         string   `json:"path" yaml:"path"`
	Output       string   `json:"output" yaml:"output"`
	Groups       []string `json:"groups" yaml:"groups"`
	NeedsRebuild bool     `json:"needs_rebuild" yaml:"needs_rebuild"`
	Refs         []Ref    `json:"refs" yaml:"refs"`
}

// Ref is a scene's reference to a texture and the group it loads it from.
type Ref struct {
	Name   string `json:"name" yaml:"name"`
	Group  string `json:"group" yaml:"group"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Group is a palette group with its pages.
type Group struct {
	Name       string   `json:"name" yaml:"name"`
	Dir        string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	SharesWith []string `json:"shares_with,omitempty" yaml:"shares_with,omitempty"`
	Level      int      `json:"level" yaml:"level"`
	Dependents int      `json:"dependents" yaml:"dependents"`
	Cycle      bool     `json:"cycle,omitempty" yaml:"cycle,omitempty"`
	Pages      []Page   `json:"pages" yaml:"pages"`
}

// Page is an atlas page and what sits on it.
type Page struct {
	ID         int         `json:"id" yaml:"id"`
	Filename   string      `json:"filename" yaml:"filename"`
	Class      string      `json:"class" yaml:"class"`
	W          int         `json:"w" yaml:"w"`
	H          int         `json:"h" yaml:"h"`
	Used       float64     `json:"used" yaml:"used"`
	Placements []Placement `json:"placements" yaml:"placements"`
}

// Placement is a texture's rectangle on a page.
type Placement struct {
	Texture string `json:"texture" yaml:"texture"`
	X       int    `json:"x" yaml:"x"`
	Y       int    `json:"y" yaml:"y"`
	W       int    `json:"w" yaml:"w"`
	H       int    `json:"h" yaml:"h"`
	Margin  int    `json:"margin" yaml:"margin"`
	Wrap    string `json:"wrap" yaml:"wrap"`
	Filled  bool   `json:"filled" yaml:"filled"`
}

// Texture is a source texture and its fate in every group it belongs to.
type Texture struct {
	Name     string  `json:"name" yaml:"name"`
	Source   string  `json:"source" yaml:"source"`
	W        int     `json:"w" yaml:"w"`
	H        int     `json:"h" yaml:"h"`
	Channels int     `json:"channels" yaml:"channels"`
	Known    bool    `json:"known" yaml:"known"`
	In       []Usage `json:"in,omitempty" yaml:"in,omitempty"`
}

// Usage is a texture's placement in one group.
type Usage struct {
	Group  string `json:"group" yaml:"group"`
	Packed bool   `json:"packed" yaml:"packed"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Page   string `json:"page,omitempty" yaml:"page,omitempty"`
	Copy   string `json:"copy,omitempty" yaml:"copy,omitempty"`
}

// New assembles the report for s. invalid lists the directive lines that
// could not be parsed; it may be nil.
func New(s *palette.Session, invalid []directive.Invalid) *Report {
	p := s.Params
	r := &Report{
		Params: Params{
			PageW:        p.PageW,
			PageH:        p.PageH,
			Margin:       p.Margin,
			ImageType:    p.ImageType,
			Pattern:      p.Pattern,
			MapDir:       p.MapDir,
			Fuzz:         p.Fuzz,
			Repeat:       p.Repeat.String(),
			Remap:        p.Remap.String(),
			RemapChar:    p.RemapChar.String(),
			OmitSolitary: p.OmitSolitary,
		},
		Invalid:  invalid,
		Cycles:   s.Cycles(),
		Warnings: s.Warnings(),
		Stats:    s.Stats(),
	}

	for _, rec := range s.Scenes() {
		sc := Scene{
			Path:         rec.Path,
			Output:       rec.Output,
			Groups:       s.GroupNames(rec.Complete),
			NeedsRebuild: rec.NeedsRebuild,
		}
		for _, ref := range rec.Refs {
			sc.Refs = append(sc.Refs, Ref{
				Name:   ref.Name,
				Group:  groupName(s, ref.Group),
				Target: ref.Target,
			})
		}
		if !rec.Matched {
			r.Surprises = append(r.Surprises, rec.Path)
		}
		r.Scenes = append(r.Scenes, sc)
	}

	cycles := map[string]bool{}
	for _, c := range r.Cycles {
		cycles[c] = true
	}
	for _, g := range s.Groups() {
		gr := Group{
			Name:       g.Name,
			Dir:        g.Dir,
			Level:      s.DependencyLevel(g.ID),
			Dependents: g.Dependents,
			Cycle:      cycles[g.Name],
		}
		for _, pid := range g.Parents {
			gr.SharesWith = append(gr.SharesWith, groupName(s, pid))
		}
		sort.Strings(gr.SharesWith)
		for _, pg := range s.Pages(g.ID) {
			gr.Pages = append(gr.Pages, newPage(s, pg))
		}
		r.Groups = append(r.Groups, gr)
	}

	for _, t := range s.Textures() {
		tr := Texture{
			Name:     t.Name,
			Source:   t.Source,
			W:        t.Orig.W,
			H:        t.Orig.H,
			Channels: t.Channels,
			Known:    t.SizeKnown,
		}
		for _, pl := range s.TexturePlacements(t.ID) {
			u := Usage{Group: groupName(s, pl.Group), Packed: pl.Packed, Copy: pl.CopyPath}
			if pl.Reason != palette.OmitNone {
				u.Reason = pl.Reason.String()
			}
			if pg := s.Page(pl.Page); pl.Packed && pg != nil {
				u.Page = pg.Filename
			}
			tr.In = append(tr.In, u)
		}
		if !t.Matched {
			r.Surprises = append(r.Surprises, t.Name)
		}
		r.Textures = append(r.Textures, tr)
	}
	return r
}

func groupName(s *palette.Session, id palette.GroupID) string {
	if id < 0 || int(id) >= s.NumGroups() {
		return ""
	}
	return s.GroupByID(id).Name
}

func newPage(s *palette.Session, pg *palette.Page) Page {
	out := Page{
		ID:       int(pg.ID),
		Filename: pg.Filename,
		Class:    pg.Class,
		W:        pg.W,
		H:        pg.H,
	}
	if area := pg.W * pg.H; area > 0 {
		out.Used = float64(pg.UsedPixels()) / float64(area)
	}
	for _, pl := range pg.Placements() {
		out.Placements = append(out.Placements, Placement{
			Texture: s.TextureByID(pl.Texture).Name,
			X:       pl.Rect.X,
			Y:       pl.Rect.Y,
			W:       pl.Rect.W,
			H:       pl.Rect.H,
			Margin:  pl.Margin,
			Wrap:    pl.Wrap.String(),
			Filled:  pl.Filled,
		})
	}
	return out
}

// WriteYAML encodes r as YAML.
func WriteYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

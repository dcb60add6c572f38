// Package scene reads and rewrites the JSON scene files texpal palettizes.
//
// A scene file declares its textures once and references them by name from
// a tree of nodes. Each node holds primitives (polygons with per-vertex UVs)
// and patches (surfaces whose UVs span the unit square):
//
//	{
//	  "textures": [
//	    {"name": "wood", "path": "tex/wood.png", "transform": [1,0,0, 0,1,0, 0,0,1],
//	     "alpha": "none", "wrap_u": "clamp", "wrap_v": "clamp"}
//	  ],
//	  "root": {
//	    "name": "house",
//	    "children": [
//	      {"name": "door", "primitives": [{"textures": ["wood"], "uvs": [[0,0],[1,0],[1,1]]}]}
//	    ]
//	  }
//	}
//
// Nodes flagged "character" (and everything below them) are animated
// geometry and use a separate re-centering policy.
package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/texpal/pkg/uv"
)

// Ext is the file extension of scene files.
const Ext = ".scene.json"

// File is a parsed scene file.
type File struct {
	Textures []*TextureDef `json:"textures"`
	Root     *Node         `json:"root"`

	// shifts holds the re-centering computed by ScanUVs, per texture and
	// primitive, until ApplyTranslation moves the vertex UVs.
	shifts map[string]map[*Primitive]uv.Vec2
}

// TextureDef declares a texture used by the scene.
type TextureDef struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Transform []float64 `json:"transform,omitempty"`
	Alpha     string    `json:"alpha,omitempty"`
	WrapU     string    `json:"wrap_u,omitempty"`
	WrapV     string    `json:"wrap_v,omitempty"`
	TexGen    bool      `json:"texgen,omitempty"`
}

// Node is a group of geometry in the scene tree.
type Node struct {
	Name       string       `json:"name"`
	Character  bool         `json:"character,omitempty"`
	Children   []*Node      `json:"children,omitempty"`
	Primitives []*Primitive `json:"primitives,omitempty"`
	Patches    []*Patch     `json:"patches,omitempty"`
}

// Primitive is a polygon with per-vertex UVs.
type Primitive struct {
	Textures []string     `json:"textures"`
	UVs      [][2]float64 `json:"uvs"`
}

// Patch is a parametric surface. Its UVs are always the unit square.
type Patch struct {
	Textures []string `json:"textures"`
}

// Ref is one texture reference as seen by the palettizer.
type Ref struct {
	Name      string
	Path      string
	Transform uv.Mat3
	Alpha     string
	Wrap      uv.Wrap
	TexGen    bool
}

// UsesAlpha reports whether the reference asks for any alpha mode.
func (r Ref) UsesAlpha() bool { return r.Alpha != "" && r.Alpha != "none" && r.Alpha != "off" }

// Read parses the scene file at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a scene file from JSON and checks that every texture name
// used by the geometry is declared.
func Parse(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	declared := make(map[string]bool, len(f.Textures))
	for i, def := range f.Textures {
		if def == nil || def.Name == "" {
			return nil, fmt.Errorf("texture %d: missing name", i)
		}
		if declared[def.Name] {
			return nil, fmt.Errorf("texture %q: declared twice", def.Name)
		}
		if len(def.Transform) != 0 && len(def.Transform) != 9 {
			return nil, fmt.Errorf("texture %q: transform needs 9 values, got %d", def.Name, len(def.Transform))
		}
		declared[def.Name] = true
	}
	var check func(n *Node) error
	check = func(n *Node) error {
		for _, p := range n.Primitives {
			for _, name := range p.Textures {
				if !declared[name] {
					return fmt.Errorf("node %q: undeclared texture %q", n.Name, name)
				}
			}
		}
		for _, p := range n.Patches {
			for _, name := range p.Textures {
				if !declared[name] {
					return fmt.Errorf("node %q: undeclared texture %q", n.Name, name)
				}
			}
		}
		for _, c := range n.Children {
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	}
	if f.Root != nil {
		if err := check(f.Root); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Write stores the scene at path through a temporary file and a rename, so
// readers never see a partial file.
func (f *File) Write(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".scene-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ForEachTextureRef calls fn for every declared texture in declaration
// order, stopping at the first error.
func (f *File) ForEachTextureRef(fn func(Ref) error) error {
	for _, def := range f.Textures {
		if err := fn(def.ref()); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the reference with the given name.
func (f *File) Lookup(name string) (Ref, bool) {
	if def := f.def(name); def != nil {
		return def.ref(), true
	}
	return Ref{}, false
}

// RewriteReference points a texture at a new image with a new transform and
// wrap mode.
func (f *File) RewriteReference(name, path string, m uv.Mat3, wrap uv.Wrap) error {
	def := f.def(name)
	if def == nil {
		return fmt.Errorf("unknown texture %q", name)
	}
	def.Path = filepath.ToSlash(path)
	if m.IsIdentity() {
		def.Transform = nil
	} else {
		def.Transform = m.Slice()
	}
	if wrap != uv.WrapUnspecified {
		def.WrapU, def.WrapV = wrap.String(), wrap.String()
	}
	return nil
}

func (f *File) def(name string) *TextureDef {
	for _, d := range f.Textures {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func (d *TextureDef) ref() Ref {
	return Ref{
		Name:      d.Name,
		Path:      d.Path,
		Transform: uv.MatFromSlice(d.Transform),
		Alpha:     d.Alpha,
		Wrap:      wrapOf(d.WrapU, d.WrapV),
		TexGen:    d.TexGen,
	}
}

// wrapOf folds the per-axis wrap modes: repeat on either axis repeats,
// clamp on either axis (and repeat on none) clamps.
func wrapOf(u, v string) uv.Wrap {
	wu, _ := uv.ParseWrap(strings.ToLower(u))
	wv, _ := uv.ParseWrap(strings.ToLower(v))
	switch {
	case wu == uv.WrapRepeat || wv == uv.WrapRepeat:
		return uv.WrapRepeat
	case wu == uv.WrapClamp || wv == uv.WrapClamp:
		return uv.WrapClamp
	}
	return uv.WrapUnspecified
}

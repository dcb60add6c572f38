package scene

import "github.com/matzehuels/texpal/pkg/uv"

// ScanUVs returns the texture-space range the scene uses for the named
// texture, after re-centering. Each primitive's vertex UVs are multiplied by
// the texture matrix; policy (or charPolicy, inside character nodes) decides
// whether the result is shifted by whole units per primitive, per node or
// not at all. Patches and texgen textures contribute the unit square.
//
// The shifts are remembered so ApplyTranslation can later move the vertex
// UVs to match the range reported here.
func (f *File) ScanUVs(name string, policy, charPolicy uv.Policy) uv.Range {
	def := f.def(name)
	if def == nil || f.Root == nil {
		return uv.Range{}
	}
	if f.shifts == nil {
		f.shifts = make(map[string]map[*Primitive]uv.Vec2)
	}
	shifts := make(map[*Primitive]uv.Vec2)
	f.shifts[name] = shifts

	m := uv.MatFromSlice(def.Transform)
	var total uv.Range
	var walk func(n *Node, character bool)
	walk = func(n *Node, character bool) {
		character = character || n.Character
		p := policy
		if character {
			p = charPolicy
		}

		var group uv.Range
		var prims []*Primitive
		for _, prim := range n.Primitives {
			if !uses(prim.Textures, name) || len(prim.UVs) == 0 {
				continue
			}
			r := primRange(prim, m)
			if def.TexGen {
				r = uv.Unit
			}
			// Vertex UVs shared by several textures cannot move for one.
			if len(prim.Textures) > 1 {
				total = total.Union(r)
				continue
			}
			switch p {
			case uv.PolicyPoly:
				t := uv.Translation(r)
				if !def.TexGen && !t.IsZero() {
					shifts[prim] = t
				}
				total = total.Union(r.Translate(t))
			case uv.PolicyGroup:
				group = group.Union(r)
				prims = append(prims, prim)
			default:
				total = total.Union(r)
			}
		}
		if p == uv.PolicyGroup && group.Any {
			t := uv.Translation(group)
			if !def.TexGen && !t.IsZero() {
				for _, prim := range prims {
					shifts[prim] = t
				}
			}
			total = total.Union(group.Translate(t))
		}
		for _, patch := range n.Patches {
			if uses(patch.Textures, name) {
				total = total.Union(uv.Unit)
			}
		}
		for _, c := range n.Children {
			walk(c, character)
		}
	}
	walk(f.Root, false)
	return total
}

// ApplyTranslation moves the vertex UVs of every primitive using the named
// texture by the shift ScanUVs chose for it. The texture-space shift is
// converted through the inverse texture matrix so that, after the matrix is
// applied, the UVs land exactly where the scanned range said.
func (f *File) ApplyTranslation(name string) {
	def := f.def(name)
	if def == nil {
		return
	}
	m := uv.MatFromSlice(def.Transform)
	for prim, t := range f.shifts[name] {
		off := uv.VertexOffset(t, m)
		for i := range prim.UVs {
			prim.UVs[i][0] += off.U
			prim.UVs[i][1] += off.V
		}
	}
	delete(f.shifts, name)
}

func primRange(p *Primitive, m uv.Mat3) uv.Range {
	var r uv.Range
	for _, v := range p.UVs {
		r = r.Include(m.Apply(uv.Vec2{U: v[0], V: v[1]}))
	}
	return r
}

func uses(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

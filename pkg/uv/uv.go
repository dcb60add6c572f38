// Package uv computes the texture-coordinate footprint of scene geometry and
// the affine transforms that move it onto an atlas page.
//
// A [Range] is the bounding box of the UVs a scene actually uses for one
// texture, already expressed in texture space (vertex UVs multiplied by the
// texture's own matrix). Ranges decide whether a texture truly repeats
// ([IsRepeating]) and how far it may be re-centered ([Translation]) before
// the palettizer commits to a placement. Once a placement is known, [Remap]
// produces the matrix that maps the unit square onto the placed rectangle.
//
// Matrices are 3x3 affine transforms in row-vector convention: a point p is
// transformed as p × M, so translations live in the bottom row and
// A.Mul(B) applies A first, then B.
package uv

import "math"

// Vec2 is a texture coordinate or a 2D offset in UV space.
type Vec2 struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Add returns a + b.
func (a Vec2) Add(b Vec2) Vec2 { return Vec2{a.U + b.U, a.V + b.V} }

// Sub returns a - b.
func (a Vec2) Sub(b Vec2) Vec2 { return Vec2{a.U - b.U, a.V - b.V} }

// AlmostEqual reports whether a and b differ by less than eps on both axes.
func (a Vec2) AlmostEqual(b Vec2, eps float64) bool {
	return math.Abs(a.U-b.U) < eps && math.Abs(a.V-b.V) < eps
}

// IsZero reports whether the vector is within a tiny epsilon of the origin.
func (a Vec2) IsZero() bool { return a.AlmostEqual(Vec2{}, 1e-9) }

// Range is the bounding box of a set of UVs. The zero value is an empty
// range (Any is false) that absorbs the first included point.
type Range struct {
	Any bool `json:"any"`
	Min Vec2 `json:"min"`
	Max Vec2 `json:"max"`
}

// Unit is the nominal [0,1]x[0,1] range used by patches and texgen modes.
var Unit = Range{Any: true, Min: Vec2{0, 0}, Max: Vec2{1, 1}}

// NewRange returns the range spanning min and max.
func NewRange(min, max Vec2) Range {
	return Range{Any: true, Min: min, Max: max}
}

// Include returns r extended to contain p.
func (r Range) Include(p Vec2) Range {
	if !r.Any {
		return Range{Any: true, Min: p, Max: p}
	}
	r.Min = Vec2{math.Min(r.Min.U, p.U), math.Min(r.Min.V, p.V)}
	r.Max = Vec2{math.Max(r.Max.U, p.U), math.Max(r.Max.V, p.V)}
	return r
}

// Union returns the smallest range containing both r and o.
func (r Range) Union(o Range) Range {
	if !o.Any {
		return r
	}
	if !r.Any {
		return o
	}
	return r.Include(o.Min).Include(o.Max)
}

// Translate returns r shifted by t.
func (r Range) Translate(t Vec2) Range {
	if !r.Any {
		return r
	}
	return Range{Any: true, Min: r.Min.Add(t), Max: r.Max.Add(t)}
}

// Transform returns the bounding box of r's four corners under m.
func (r Range) Transform(m Mat3) Range {
	if !r.Any {
		return r
	}
	var out Range
	for _, c := range []Vec2{
		r.Min,
		{r.Max.U, r.Min.V},
		{r.Min.U, r.Max.V},
		r.Max,
	} {
		out = out.Include(m.Apply(c))
	}
	return out
}

// Center returns the midpoint of the range.
func (r Range) Center() Vec2 {
	return Vec2{(r.Min.U + r.Max.U) / 2, (r.Min.V + r.Max.V) / 2}
}

// Size returns the width and height of the range.
func (r Range) Size() Vec2 { return r.Max.Sub(r.Min) }

// Area returns the fraction of the texture covered by the range.
func (r Range) Area() float64 {
	if !r.Any {
		return 0
	}
	s := r.Size()
	return s.U * s.V
}

// Within reports whether r lies inside o, allowing fuzz on every edge.
func (r Range) Within(o Range, fuzz float64) bool {
	if !r.Any {
		return true
	}
	return r.Min.U >= o.Min.U-fuzz && r.Min.V >= o.Min.V-fuzz &&
		r.Max.U <= o.Max.U+fuzz && r.Max.V <= o.Max.V+fuzz
}

// Translation returns the whole-unit offset that moves the center of r into
// the unit square: -floor(center). Empty ranges need no translation.
func Translation(r Range) Vec2 {
	if !r.Any {
		return Vec2{}
	}
	c := r.Center()
	return Vec2{U: negFloor(c.U), V: negFloor(c.V)}
}

func negFloor(f float64) float64 {
	t := -math.Floor(f)
	if t == 0 {
		return 0 // normalize -0
	}
	return t
}

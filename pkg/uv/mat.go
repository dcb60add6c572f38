package uv

import "math"

// Mat3 is a row-major 3x3 affine matrix applied to row vectors.
type Mat3 [9]float64

// Identity returns the identity matrix.
func Identity() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// ScaleMat returns a matrix scaling u by su and v by sv.
func ScaleMat(su, sv float64) Mat3 {
	return Mat3{su, 0, 0, 0, sv, 0, 0, 0, 1}
}

// TranslateMat returns a matrix translating by t.
func TranslateMat(t Vec2) Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, t.U, t.V, 1}
}

// MatFromSlice builds a matrix from nine row-major values. A slice of any
// other length yields the identity.
func MatFromSlice(s []float64) Mat3 {
	if len(s) != 9 {
		return Identity()
	}
	var m Mat3
	copy(m[:], s)
	return m
}

// Slice returns the matrix as nine row-major values.
func (m Mat3) Slice() []float64 {
	out := make([]float64, 9)
	copy(out, m[:])
	return out
}

// Mul returns m × o: the transform that applies m first, then o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += m[i*3+k] * o[k*3+j]
			}
			r[i*3+j] = s
		}
	}
	return r
}

// Apply transforms the point p, including translation.
func (m Mat3) Apply(p Vec2) Vec2 {
	return Vec2{
		U: p.U*m[0] + p.V*m[3] + m[6],
		V: p.U*m[1] + p.V*m[4] + m[7],
	}
}

// ApplyVec transforms the offset d, ignoring translation.
func (m Mat3) ApplyVec(d Vec2) Vec2 {
	return Vec2{
		U: d.U*m[0] + d.V*m[3],
		V: d.U*m[1] + d.V*m[4],
	}
}

// Invert returns the inverse of m. The second result is false when m is
// singular, in which case the identity is returned.
func (m Mat3) Invert() (Mat3, bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	co00 := e*i - f*h
	co01 := -(d*i - f*g)
	co02 := d*h - e*g
	det := a*co00 + b*co01 + c*co02
	if math.Abs(det) < 1e-12 {
		return Identity(), false
	}
	inv := 1 / det
	return Mat3{
		co00 * inv, -(b*i - c*h) * inv, (b*f - c*e) * inv,
		co01 * inv, (a*i - c*g) * inv, -(a*f - c*d) * inv,
		co02 * inv, -(a*h - b*g) * inv, (a*e - b*d) * inv,
	}, true
}

// AlmostEqual reports whether every element of m and o differs by less
// than eps.
func (m Mat3) AlmostEqual(o Mat3, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-o[i]) >= eps {
			return false
		}
	}
	return true
}

// IsIdentity reports whether m is (almost) the identity.
func (m Mat3) IsIdentity() bool {
	return m.AlmostEqual(Identity(), 1e-9)
}

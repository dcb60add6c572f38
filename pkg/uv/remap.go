package uv

// Remap returns the transform that maps the unit square onto the interior of
// a placed rectangle. left, top, w and h describe the rectangle including its
// margin band; pageW and pageH are the page dimensions. Image rows grow
// downward while UVs grow upward, so the V offset is measured from the
// bottom of the page.
func Remap(left, top, w, h, margin, pageW, pageH int) Mat3 {
	if pageW <= 0 || pageH <= 0 {
		return Identity()
	}
	xs := float64(w - 2*margin)
	ys := float64(h - 2*margin)
	x := float64(left + margin)
	y := float64(top + margin)
	W, H := float64(pageW), float64(pageH)

	scale := ScaleMat(xs/W, ys/H)
	shift := TranslateMat(Vec2{U: x / W, V: (H - (y + ys)) / H})
	return scale.Mul(shift)
}

// Compose returns the texture matrix a reference carries after placement:
// its existing matrix followed by the remap.
func Compose(existing, remap Mat3) Mat3 {
	return existing.Mul(remap)
}

// VertexOffset converts a texture-space translation into the offset that
// must be added to vertex UVs, undoing the reference's own texture matrix.
// A singular texture matrix yields the translation unchanged.
func VertexOffset(t Vec2, texMat Mat3) Vec2 {
	inv, ok := texMat.Invert()
	if !ok {
		return t
	}
	return inv.ApplyVec(t)
}

package palette

// FindHome looks for the first free spot for a w×h rectangle on the page.
// Rows are scanned top to bottom and positions left to right; a rejected
// position jumps past the rectangle that blocked it instead of advancing one
// pixel, and the next row starts at the nearest bottom edge seen.
func (p *Page) FindHome(w, h int) (x, y int, ok bool) {
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	for y = 0; y+h <= p.H; {
		nextY := p.H
		for x = 0; x+w <= p.W; {
			hit := p.overlap(Rect{X: x, Y: y, W: w, H: h})
			if hit == nil {
				return x, y, true
			}
			x = hit.Rect.Right()
			if b := hit.Rect.Bottom(); b < nextY {
				nextY = b
			}
		}
		if nextY <= y {
			break
		}
		y = nextY
	}
	return 0, 0, false
}

// overlap returns the first placement whose rectangle intersects r.
func (p *Page) overlap(r Rect) *Placement {
	for _, pl := range p.placements {
		if pl.Rect.Intersects(r) {
			return pl
		}
	}
	return nil
}

// place puts pl at (x, y) on the page.
func (s *Session) place(p *Page, pl *Placement, x, y int) {
	pl.Packed = true
	pl.Reason = OmitNone
	pl.Page = p.ID
	pl.Rect = Rect{X: x, Y: y, W: pl.want.W, H: pl.want.H}
	pl.Filled = false
	p.placements = append(p.placements, pl)
	p.Changed = true
}

// unplace takes pl off its page. The freed rectangle is remembered as a
// cleared region so a partial regeneration can wipe it, and a page left
// empty is dropped.
func (s *Session) unplace(pl *Placement) {
	p := s.pages[pl.Page]
	if p != nil {
		for i, other := range p.placements {
			if other == pl {
				p.placements = append(p.placements[:i], p.placements[i+1:]...)
				break
			}
		}
		p.Cleared = append(p.Cleared, pl.Rect)
		p.Changed = true
		if len(p.placements) == 0 {
			if p.Written {
				s.obsolete = append(s.obsolete, p.Filename)
			}
			s.dropPage(p)
		}
	}
	pl.Packed = false
	pl.Page = 0
	pl.Rect = Rect{}
	pl.Filled = false
}

// Pack places a pending placement on the first page of its group (and
// channel class) with room for it, creating a new page when none has. A
// rectangle too big for an empty page is marked OmitSize instead; no
// oversized page is ever created.
func (s *Session) Pack(pl *Placement) bool {
	if pl.Packed {
		return true
	}
	t := s.textures[pl.Texture]
	class := t.Class()
	for _, p := range s.Pages(pl.Group) {
		if p.Class != class {
			continue
		}
		if x, y, ok := p.FindHome(pl.want.W, pl.want.H); ok {
			s.place(p, pl, x, y)
			return true
		}
	}
	if s.tooBig(pl.want) {
		pl.Reason = OmitSize
		return false
	}
	p := s.newPage(pl.Group, class)
	x, y, ok := p.FindHome(pl.want.W, pl.want.H)
	if !ok {
		s.dropPage(p)
		pl.Reason = OmitSize
		return false
	}
	s.place(p, pl, x, y)
	return true
}

// PackGroup packs every pending placement of group g, biggest first.
func (s *Session) PackGroup(g GroupID) {
	var pending []*Placement
	for _, pl := range s.GroupPlacements(g) {
		if pl.Pending() {
			pending = append(pending, pl)
		}
	}
	s.sortBySize(pending)
	for _, pl := range pending {
		s.Pack(pl)
	}
}

// PackAll refreshes page filenames, packs every group, shrinks pages that
// were touched, applies the solitary check and finally points every scene
// reference at the placement it will use.
func (s *Session) PackAll() {
	s.updateFilenames()
	for _, g := range s.Groups() {
		s.PackGroup(g.ID)
		s.OptimalResize(g.ID)
		if s.Params.OmitSolitary {
			s.CheckSolitary(g.ID)
		}
	}
	s.choosePlacements()
}

// OptimalResize shrinks each page of group g holding at least two
// placements. While everything sits in the top half of the page, a repack
// at half width and half height is tried; if it fails, only the height is
// halved. A page holding a single texture keeps its full size.
func (s *Session) OptimalResize(g GroupID) {
	for _, p := range s.Pages(g) {
		s.resizePage(p)
	}
}

func (s *Session) resizePage(p *Page) {
	for p.Len() >= 2 && p.H > 1 && p.MaxBottom() <= p.H/2 {
		if p.W > 1 && s.repack(p, p.W/2, p.H/2) {
			continue
		}
		// Every rectangle already lies in the top half.
		p.H /= 2
		s.invalidatePage(p)
	}
}

// repack tries to fit every placement of p on a w×h page, biggest first.
// On failure the page and its placements are restored untouched.
func (s *Session) repack(p *Page, w, h int) bool {
	saved := append([]*Placement(nil), p.placements...)
	rects := make([]Rect, len(saved))
	for i, pl := range saved {
		rects[i] = pl.Rect
	}
	oldW, oldH := p.W, p.H

	order := append([]*Placement(nil), saved...)
	s.sortBySize(order)

	p.W, p.H = w, h
	p.placements = p.placements[:0]
	for _, pl := range order {
		x, y, ok := p.FindHome(pl.Rect.W, pl.Rect.H)
		if !ok {
			p.W, p.H = oldW, oldH
			p.placements = saved
			for i, sp := range saved {
				sp.Rect = rects[i]
			}
			return false
		}
		pl.Rect.X, pl.Rect.Y = x, y
		p.placements = append(p.placements, pl)
	}
	s.invalidatePage(p)
	return true
}

// invalidatePage forces a full regeneration of p: its image is rebuilt from
// scratch and every placement on it counts as changed.
func (s *Session) invalidatePage(p *Page) {
	p.New = true
	p.Changed = true
	p.Cleared = nil
	for _, pl := range p.placements {
		pl.Filled = false
	}
}

// CheckSolitary omits the texture of every page in group g that holds only
// one placement. The placement gets OmitSolitary and the page is dropped. A
// placement that was already solitary with its copy written keeps it.
func (s *Session) CheckSolitary(g GroupID) {
	for _, p := range s.Pages(g) {
		if p.Len() != 1 {
			continue
		}
		pl := p.placements[0]
		s.unplace(pl)
		pl.Reason = OmitSolitary
		if o := pl.orig; o != nil && o.Reason == OmitSolitary && o.Margin == pl.Margin && o.Filled {
			pl.Filled = true
		}
	}
}

// updateFilenames recomputes every page filename. A page whose name changed
// (group renamed or moved) is regenerated in full and its old file becomes
// obsolete.
func (s *Session) updateFilenames() {
	for _, p := range s.pages {
		name := s.pageFilename(p)
		if name == p.Filename {
			continue
		}
		if p.Filename != "" && p.Written {
			s.obsolete = append(s.obsolete, p.Filename)
		}
		p.Filename = name
		p.Written = false
		s.invalidatePage(p)
	}
}

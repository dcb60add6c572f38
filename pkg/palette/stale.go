package palette

// placementState is what a placement looked like when the session was
// loaded. Comparing against it tells which scene files must be rewritten.
type placementState struct {
	Packed   bool
	Reason   OmitReason
	Page     PageID
	Filename string
	PageW    int
	PageH    int
	Rect     Rect
	Margin   int
	Filled   bool
}

// RecordOrigState snapshots every placement so later changes can be
// detected. Called after a session is restored and before it is modified.
func (s *Session) RecordOrigState() {
	for _, pl := range s.placements {
		st := &placementState{
			Packed: pl.Packed,
			Reason: pl.Reason,
			Page:   pl.Page,
			Rect:   pl.Rect,
			Margin: pl.Margin,
			Filled: pl.Filled,
		}
		if p := s.pages[pl.Page]; pl.Packed && p != nil {
			st.Filename = p.Filename
			st.PageW, st.PageH = p.W, p.H
		}
		pl.orig = st
	}
}

// PackingChanged reports whether the placement's position (or omission)
// differs from what it was when the session was loaded. A placement created
// during this run has always changed.
func (s *Session) PackingChanged(pl *Placement) bool {
	o := pl.orig
	if o == nil {
		return true
	}
	if o.Packed != pl.Packed || o.Reason != pl.Reason || o.Margin != pl.Margin {
		return true
	}
	if !pl.Packed {
		return false
	}
	p := s.pages[pl.Page]
	if p == nil {
		return true
	}
	return o.Page != pl.Page || o.Rect != pl.Rect || o.Filename != p.Filename ||
		o.PageW != p.W || o.PageH != p.H
}

// NeedsRefresh reports whether the placement's pixels must be written
// again: its source is newer, its packing changed, it was never written or
// its page is being rebuilt from scratch.
func (s *Session) NeedsRefresh(pl *Placement, sourceNewer bool) bool {
	if sourceNewer || s.PackingChanged(pl) || !pl.Filled {
		return true
	}
	if pl.Packed {
		if p := s.pages[pl.Page]; p == nil || p.New {
			return true
		}
	}
	return false
}

// PageNeedsWrite reports whether the page image must be written: it is new,
// has regions to wipe, or holds a placement that needs a refresh.
func (s *Session) PageNeedsWrite(p *Page, sourceNewer func(*Placement) bool) bool {
	if p.New || len(p.Cleared) > 0 {
		return true
	}
	for _, pl := range p.placements {
		if s.NeedsRefresh(pl, sourceNewer(pl)) {
			return true
		}
	}
	return false
}

// Target returns the image file a reference should point at after this run:
// the page for packed placements, the stand-alone copy for omitted ones
// that are delivered separately, and the empty string otherwise.
func (s *Session) Target(ref *Reference) string {
	pl := s.placements[placementKey{ref.Texture, ref.Group}]
	if pl == nil {
		return ""
	}
	if pl.Packed {
		if p := s.pages[pl.Page]; p != nil {
			return p.Filename
		}
		return ""
	}
	if pl.Reason.Standalone() {
		return pl.CopyPath
	}
	return ""
}

// MarkStale sets NeedsRebuild on every scene file whose references moved.
// With bake set, a texture whose pixels are rewritten also counts, since the
// scene embeds them. Scenes already flagged (new, missing output, newer
// source) stay flagged. The scenes to rebuild are returned sorted by path.
func (s *Session) MarkStale(bake bool, sourceNewer func(*Placement) bool) []*SceneRecord {
	var out []*SceneRecord
	for _, rec := range s.Scenes() {
		if !rec.NeedsRebuild {
			rec.NeedsRebuild = s.sceneStale(rec, bake, sourceNewer)
		}
		if rec.NeedsRebuild {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Session) sceneStale(rec *SceneRecord, bake bool, sourceNewer func(*Placement) bool) bool {
	for _, ref := range rec.Refs {
		pl := s.placements[placementKey{ref.Texture, ref.Group}]
		if pl == nil || !rec.Complete.Contains(ref.Group) {
			return true
		}
		if bake {
			if s.NeedsRefresh(pl, sourceNewer(pl)) {
				return true
			}
		} else if s.PackingChanged(pl) {
			return true
		}
		if ref.Target != s.Target(ref) {
			return true
		}
	}
	return false
}

// ForceRegenerate treats every page as new and every placement as unwritten,
// and marks every scene for rebuild. The layout itself is kept.
func (s *Session) ForceRegenerate() {
	for _, p := range s.pages {
		s.invalidatePage(p)
	}
	for _, pl := range s.placements {
		pl.Filled = false
	}
	for _, rec := range s.scenes {
		rec.NeedsRebuild = true
	}
}

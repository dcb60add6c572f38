package palette

import (
	"errors"
	"fmt"
	"sort"

	"github.com/matzehuels/texpal/pkg/uv"
)

// ErrEmptyCandidateSet is returned by Assign when a scene file needs a
// texture but requires no palette group at all. Nothing can satisfy it, so
// the build must stop before writing anything.
var ErrEmptyCandidateSet = errors.New("scene file requires no palette group")

// Assign resolves, for every texture, the set of palette groups it must be
// packed into, and reconciles the result with the placements from the
// previous run. Placements in groups that are still needed keep their page
// and rectangle; placements in groups no longer needed are released.
//
// All assignments are computed before any placement is touched, so an
// ErrEmptyCandidateSet leaves the session unchanged.
func (s *Session) Assign() error {
	for _, g := range s.groups {
		g.Dependents = 0
	}
	users := make(map[TextureID][]*SceneRecord)
	for _, rec := range s.Scenes() {
		rec.Complete = s.Complete(rec.Groups...)
		for _, id := range rec.Complete {
			s.groups[id].Dependents++
		}
		seen := map[TextureID]bool{}
		for _, ref := range rec.Refs {
			if !seen[ref.Texture] {
				seen[ref.Texture] = true
				users[ref.Texture] = append(users[ref.Texture], rec)
			}
		}
	}

	textures := s.Textures()
	sets := make([]GroupSet, len(textures))
	for i, t := range textures {
		set, err := s.resolve(t, users[t.ID])
		if err != nil {
			return err
		}
		sets[i] = set
	}

	for i, t := range textures {
		s.reconcile(t, sets[i])
		switch {
		case len(users[t.ID]) == 0:
			t.Reason = OmitUnused
		case t.Reason == OmitUnused:
			t.Reason = OmitNone
		}
	}
	return nil
}

// resolve computes a near-minimal set of groups for t such that every scene
// in scenes finds t in at least one group of its complete set.
func (s *Session) resolve(t *Texture, scenes []*SceneRecord) (GroupSet, error) {
	var assigned GroupSet
	explicit := NewGroupSet(t.Groups...)

	var needed []*SceneRecord
	for _, rec := range scenes {
		if len(explicit) > 0 {
			if in := explicit.Intersect(rec.Complete); len(in) > 0 {
				assigned = assigned.Union(GroupSet{in[0]})
				continue
			}
		}
		needed = append(needed, rec)
	}

	for len(needed) > 0 {
		var total GroupSet
		for _, rec := range needed {
			total = total.Union(rec.Complete)
		}
		if len(total) == 0 {
			return nil, fmt.Errorf("%w: texture %q referenced by %s", ErrEmptyCandidateSet, t.Name, needed[0].Path)
		}

		best, bestCount := total[0], satisfied(total[0], needed)
		for _, g := range total[1:] {
			n := satisfied(g, needed)
			if n > bestCount || (n == bestCount && s.preferred(g, best)) {
				best, bestCount = g, n
			}
		}
		assigned = assigned.Union(GroupSet{best})

		rest := needed[:0]
		for _, rec := range needed {
			if !rec.Complete.Contains(best) {
				rest = append(rest, rec)
			}
		}
		needed = rest
	}
	return assigned, nil
}

func satisfied(g GroupID, scenes []*SceneRecord) int {
	n := 0
	for _, rec := range scenes {
		if rec.Complete.Contains(g) {
			n++
		}
	}
	return n
}

// preferred breaks ties between groups that satisfy equally many scenes:
// the group fewer scene files depend on wins, then the lower name.
func (s *Session) preferred(a, b GroupID) bool {
	ga, gb := s.groups[a], s.groups[b]
	if ga.Dependents != gb.Dependents {
		return ga.Dependents < gb.Dependents
	}
	return ga.Name < gb.Name
}

// reconcile walks the old and new group sets of t in order. Groups in both
// keep their placement, old-only groups are released and new-only groups
// get a fresh pending placement.
func (s *Session) reconcile(t *Texture, next GroupSet) {
	var prev []GroupID
	for k := range s.placements {
		if k.tex == t.ID {
			prev = append(prev, k.group)
		}
	}
	old := NewGroupSet(prev...)

	i, j := 0, 0
	for i < len(old) || j < len(next) {
		switch {
		case j >= len(next) || (i < len(old) && old[i] < next[j]):
			s.release(s.placements[placementKey{t.ID, old[i]}])
			i++
		case i >= len(old) || next[j] < old[i]:
			s.placements[placementKey{t.ID, next[j]}] = &Placement{Texture: t.ID, Group: next[j]}
			j++
		default:
			i++
			j++
		}
	}
}

// release removes a placement from the session, freeing its rectangle.
func (s *Session) release(pl *Placement) {
	if pl.Packed {
		s.unplace(pl)
	}
	if pl.CopyPath != "" {
		s.obsolete = append(s.obsolete, pl.CopyPath)
	}
	delete(s.placements, placementKey{pl.Texture, pl.Group})
}

// DetermineSizes decides, for every placement, whether it can go on a page
// and how large its rectangle is. Placements whose rectangle no longer
// matches are unplaced; placements that were omitted but now fit become
// pending again.
func (s *Session) DetermineSizes() {
	for _, pl := range s.AllPlacements() {
		t := s.textures[pl.Texture]
		g := s.groups[pl.Group]

		uvs, declared := s.usage(pl)
		if t.Wrap != uv.WrapUnspecified {
			declared = t.Wrap
		}
		pl.UVs = uvs
		pl.Wrap = uv.ResolveWrap(declared, uvs, s.Params.Fuzz, s.Params.Repeat)

		size, known := t.PackSize()
		margin := s.marginFor(t, g)
		want := Size{W: size.W + 2*margin, H: size.H + 2*margin}

		reason := OmitNone
		switch {
		case !known:
			reason = OmitUnknown
			t.Reason = OmitUnknown
		case !uvs.Any:
			reason = OmitUnused
		case t.Omit:
			reason = OmitOmitted
		case pl.Wrap == uv.WrapRepeat:
			reason = OmitRepeats
		case s.tooBig(want):
			reason = OmitSize
		}
		if known && t.Reason == OmitUnknown {
			t.Reason = OmitNone
		}
		s.applyReason(pl, reason, want, margin)
	}
}

// usage folds the UV ranges and declared wrap modes of every reference that
// could load the texture from the placement's group.
func (s *Session) usage(pl *Placement) (uv.Range, uv.Wrap) {
	var r uv.Range
	wrap := uv.WrapUnspecified
	for _, rec := range s.Scenes() {
		if !rec.Complete.Contains(pl.Group) {
			continue
		}
		for _, ref := range rec.Refs {
			if ref.Texture != pl.Texture {
				continue
			}
			r = r.Union(ref.UVs)
			switch {
			case ref.Wrap == uv.WrapRepeat:
				wrap = uv.WrapRepeat
			case ref.Wrap == uv.WrapClamp && wrap == uv.WrapUnspecified:
				wrap = uv.WrapClamp
			}
		}
	}
	return r, wrap
}

func (s *Session) applyReason(pl *Placement, reason OmitReason, want Size, margin int) {
	if reason != OmitNone {
		if pl.Packed {
			s.unplace(pl)
		}
		if pl.Reason != reason {
			pl.Filled = false
		}
		pl.Reason = reason
		pl.want = want
		pl.Margin = margin
		return
	}

	if pl.Reason != OmitNone {
		pl.Reason = OmitNone
		pl.Filled = false
	}
	if pl.Packed && (pl.Rect.W != want.W || pl.Rect.H != want.H || pl.Margin != margin ||
		s.pages[pl.Page].Class != s.textures[pl.Texture].Class()) {
		s.unplace(pl)
	}
	pl.want = want
	pl.Margin = margin
}

// tooBig reports whether a rectangle cannot go on an empty page: it exceeds
// the page on either axis, or fills it exactly on both.
func (s *Session) tooBig(r Size) bool {
	pw, ph := s.Params.PageW, s.Params.PageH
	return r.W > pw || r.H > ph || (r.W == pw && r.H == ph)
}

// choosePlacements points every scene reference at the placement it will
// load: among the texture's placements in the scene's complete groups, a
// packed one is preferred, then the lowest group name.
func (s *Session) choosePlacements() {
	for _, rec := range s.Scenes() {
		for _, ref := range rec.Refs {
			var best *Placement
			for _, pl := range s.TexturePlacements(ref.Texture) {
				if !rec.Complete.Contains(pl.Group) {
					continue
				}
				if best == nil || (pl.Packed && !best.Packed) {
					best = pl
				}
			}
			if best != nil {
				ref.Group = best.Group
			}
		}
	}
}

// sortBySize orders placements biggest first: taller, then wider, then by
// texture name.
func (s *Session) sortBySize(pls []*Placement) {
	sort.SliceStable(pls, func(i, j int) bool {
		a, b := pls[i], pls[j]
		ha, hb := a.height(), b.height()
		if ha != hb {
			return ha > hb
		}
		wa, wb := a.width(), b.width()
		if wa != wb {
			return wa > wb
		}
		return s.textures[a.Texture].Name < s.textures[b.Texture].Name
	})
}

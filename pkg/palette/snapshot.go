package palette

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotVersion is the current session file format version.
const SnapshotVersion = 1

// Snapshot is the serializable form of a Session. A session restored from
// its snapshot packs, reports and detects staleness exactly like the
// original.
type Snapshot struct {
	Version    int             `json:"version"`
	RunID      string          `json:"run_id"`
	SavedAt    time.Time       `json:"saved_at"`
	Params     Params          `json:"params"`
	NextPage   PageID          `json:"next_page"`
	Textures   []*Texture      `json:"textures"`
	Groups     []*PaletteGroup `json:"groups"`
	Pages      []*PageRecord   `json:"pages"`
	Placements []*Placement    `json:"placements"`
	Scenes     []*SceneRecord  `json:"scenes"`
}

// PageRecord is a page together with the order of its placements.
type PageRecord struct {
	*Page
	Slots []TextureID `json:"slots"`
}

// Snapshot captures the session for persistence.
func (s *Session) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version:    SnapshotVersion,
		RunID:      uuid.NewString(),
		SavedAt:    time.Now().UTC(),
		Params:     s.Params,
		NextPage:   s.nextPage,
		Textures:   s.textures,
		Groups:     s.groups,
		Placements: s.AllPlacements(),
		Scenes:     s.Scenes(),
	}
	for _, p := range s.AllPages() {
		rec := &PageRecord{Page: p}
		for _, pl := range p.placements {
			rec.Slots = append(rec.Slots, pl.Texture)
		}
		snap.Pages = append(snap.Pages, rec)
	}
	return snap
}

// Restore rebuilds a session from a snapshot. The indexes are validated:
// every ID must point at an existing entity and every packed placement must
// sit on a page of its own group.
func Restore(snap *Snapshot) (*Session, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported session version %d (want %d)", snap.Version, SnapshotVersion)
	}
	s := NewSession(snap.Params)
	if snap.NextPage > 0 {
		s.nextPage = snap.NextPage
	}

	for i, t := range snap.Textures {
		if t == nil || int(t.ID) != i {
			return nil, fmt.Errorf("texture %d: id out of order", i)
		}
		if _, dup := s.texByName[t.Name]; dup {
			return nil, fmt.Errorf("texture %q: duplicate name", t.Name)
		}
		s.textures = append(s.textures, t)
		s.texByName[t.Name] = t.ID
	}
	for i, g := range snap.Groups {
		if g == nil || int(g.ID) != i {
			return nil, fmt.Errorf("group %d: id out of order", i)
		}
		if _, dup := s.groupByName[g.Name]; dup {
			return nil, fmt.Errorf("group %q: duplicate name", g.Name)
		}
		s.groups = append(s.groups, g)
		s.groupByName[g.Name] = g.ID
	}
	for _, g := range s.groups {
		for _, p := range g.Parents {
			if !s.validGroup(p) {
				return nil, fmt.Errorf("group %q: unknown parent %d", g.Name, p)
			}
		}
	}
	for _, t := range s.textures {
		for _, id := range t.Groups {
			if !s.validGroup(id) {
				return nil, fmt.Errorf("texture %q: unknown group %d", t.Name, id)
			}
		}
	}

	for _, pl := range snap.Placements {
		if !s.validTexture(pl.Texture) || !s.validGroup(pl.Group) {
			return nil, fmt.Errorf("placement %d/%d: unknown texture or group", pl.Texture, pl.Group)
		}
		k := placementKey{pl.Texture, pl.Group}
		if _, dup := s.placements[k]; dup {
			return nil, fmt.Errorf("placement %d/%d: duplicate", pl.Texture, pl.Group)
		}
		s.placements[k] = pl
	}

	pageOwners := map[PageID]GroupID{}
	for _, g := range s.groups {
		for _, id := range g.Pages {
			pageOwners[id] = g.ID
		}
	}
	for _, rec := range snap.Pages {
		p := rec.Page
		if p == nil {
			return nil, fmt.Errorf("page record without page")
		}
		if owner, ok := pageOwners[p.ID]; !ok || owner != p.Group {
			return nil, fmt.Errorf("page %d: not listed by group %d", p.ID, p.Group)
		}
		if p.ID >= s.nextPage {
			s.nextPage = p.ID + 1
		}
		p.placements = nil
		for _, tex := range rec.Slots {
			pl := s.placements[placementKey{tex, p.Group}]
			if pl == nil || !pl.Packed || pl.Page != p.ID {
				return nil, fmt.Errorf("page %d: slot for texture %d has no matching placement", p.ID, tex)
			}
			p.placements = append(p.placements, pl)
		}
		s.pages[p.ID] = p
	}
	for _, g := range s.groups {
		for _, id := range g.Pages {
			if s.pages[id] == nil {
				return nil, fmt.Errorf("group %q: missing page %d", g.Name, id)
			}
		}
	}
	slots := 0
	for _, p := range s.pages {
		slots += p.Len()
	}
	packed := 0
	for _, pl := range s.placements {
		if !pl.Packed {
			continue
		}
		packed++
		p := s.pages[pl.Page]
		if p == nil || p.Group != pl.Group {
			return nil, fmt.Errorf("placement %d/%d: packed on unknown page %d", pl.Texture, pl.Group, pl.Page)
		}
		pl.want = Size{W: pl.Rect.W, H: pl.Rect.H}
	}
	if packed != slots {
		return nil, fmt.Errorf("%d packed placements but %d page slots", packed, slots)
	}

	for _, rec := range snap.Scenes {
		for _, ref := range rec.Refs {
			if !s.validTexture(ref.Texture) || !s.validGroup(ref.Group) {
				return nil, fmt.Errorf("scene %s: reference %q has unknown ids", rec.Path, ref.Name)
			}
		}
		for _, g := range rec.Groups {
			if !s.validGroup(g) {
				return nil, fmt.Errorf("scene %s: unknown group %d", rec.Path, g)
			}
		}
		rec.Complete = s.Complete(rec.Groups...)
		s.scenes[rec.Path] = rec
	}

	s.RecordOrigState()
	return s, nil
}

func (s *Session) validTexture(id TextureID) bool { return id >= 0 && int(id) < len(s.textures) }

func (s *Session) validGroup(id GroupID) bool { return id >= 0 && int(id) < len(s.groups) }

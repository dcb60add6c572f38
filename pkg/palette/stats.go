package palette

// GroupStats summarizes one palette group.
type GroupStats struct {
	Name       string         `json:"name" yaml:"name"`
	Pages      int            `json:"pages" yaml:"pages"`
	Packed     int            `json:"packed" yaml:"packed"`
	Omitted    map[string]int `json:"omitted,omitempty" yaml:"omitted,omitempty"`
	PagePixels int            `json:"page_pixels" yaml:"page_pixels"`
	UsedPixels int            `json:"used_pixels" yaml:"used_pixels"`
	Classes    map[string]int `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// Utilization returns the fraction of page area covered by placements.
func (g GroupStats) Utilization() float64 {
	if g.PagePixels == 0 {
		return 0
	}
	return float64(g.UsedPixels) / float64(g.PagePixels)
}

// Stats summarizes a whole session.
type Stats struct {
	Groups   []GroupStats `json:"groups" yaml:"groups"`
	Total    GroupStats   `json:"total" yaml:"total"`
	Textures int          `json:"textures" yaml:"textures"`
	Scenes   int          `json:"scenes" yaml:"scenes"`

	// Duplicated counts textures placed on pages of more than one group.
	Duplicated int `json:"duplicated" yaml:"duplicated"`
}

// Stats computes the session summary. Groups are listed in dependency
// order.
func (s *Session) Stats() Stats {
	st := Stats{
		Total:    GroupStats{Name: "total", Omitted: map[string]int{}, Classes: map[string]int{}},
		Textures: len(s.textures),
		Scenes:   len(s.scenes),
	}
	for _, g := range s.Groups() {
		gs := GroupStats{Name: g.Name, Omitted: map[string]int{}, Classes: map[string]int{}}
		for _, p := range s.Pages(g.ID) {
			gs.Pages++
			gs.PagePixels += p.W * p.H
			gs.UsedPixels += p.UsedPixels()
			gs.Classes[p.Class]++
		}
		for _, pl := range s.GroupPlacements(g.ID) {
			if pl.Packed {
				gs.Packed++
			} else if pl.Reason != OmitNone {
				gs.Omitted[pl.Reason.String()]++
			}
		}
		st.Groups = append(st.Groups, gs)

		st.Total.Pages += gs.Pages
		st.Total.Packed += gs.Packed
		st.Total.PagePixels += gs.PagePixels
		st.Total.UsedPixels += gs.UsedPixels
		for k, v := range gs.Omitted {
			st.Total.Omitted[k] += v
		}
		for k, v := range gs.Classes {
			st.Total.Classes[k] += v
		}
	}
	for _, t := range s.textures {
		n := 0
		for _, pl := range s.TexturePlacements(t.ID) {
			if pl.Packed {
				n++
			}
		}
		if n > 1 {
			st.Duplicated++
		}
	}
	return st
}

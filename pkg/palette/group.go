package palette

import "sort"

// GroupSet is an ordered set of group IDs.
type GroupSet []GroupID

// NewGroupSet returns the set of the given IDs.
func NewGroupSet(ids ...GroupID) GroupSet {
	out := append(GroupSet(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

// Contains reports whether id is in the set.
func (s GroupSet) Contains(id GroupID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return i < len(s) && s[i] == id
}

// Sorted returns the IDs in ascending order.
func (s GroupSet) Sorted() []GroupID { return append([]GroupID(nil), s...) }

// Union returns s ∪ o.
func (s GroupSet) Union(o GroupSet) GroupSet {
	out := make(GroupSet, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) || j < len(o) {
		switch {
		case j >= len(o) || (i < len(s) && s[i] < o[j]):
			out = append(out, s[i])
			i++
		case i >= len(s) || o[j] < s[i]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// Intersect returns s ∩ o.
func (s GroupSet) Intersect(o GroupSet) GroupSet {
	var out GroupSet
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			i++
		case o[j] < s[i]:
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// AddParent records that group shares with parent: anything loaded with
// group may assume parent's textures are resident. Self edges and duplicates
// are ignored.
func (s *Session) AddParent(group, parent *PaletteGroup) {
	if group.ID == parent.ID {
		return
	}
	for _, p := range group.Parents {
		if p == parent.ID {
			return
		}
	}
	group.Parents = append(group.Parents, parent.ID)
	s.complete = make(map[GroupID]GroupSet)
}

// ClearParents removes every shares-with edge so the directive file can
// declare the graph afresh.
func (s *Session) ClearParents() {
	for _, g := range s.groups {
		g.Parents = nil
	}
	s.complete = make(map[GroupID]GroupSet)
}

// Complete returns groups together with all of their transitive ancestors.
// Cycles in the shares-with relation are tolerated: a group reached twice
// is simply already included.
func (s *Session) Complete(groups ...GroupID) GroupSet {
	var out GroupSet
	for _, id := range groups {
		out = out.Union(s.closure(id))
	}
	return out
}

func (s *Session) closure(id GroupID) GroupSet {
	if c, ok := s.complete[id]; ok {
		return c
	}
	visited := map[GroupID]bool{}
	var walk func(GroupID)
	walk = func(g GroupID) {
		if visited[g] {
			return
		}
		visited[g] = true
		for _, p := range s.groups[g].Parents {
			walk(p)
		}
	}
	walk(id)
	ids := make([]GroupID, 0, len(visited))
	for g := range visited {
		ids = append(ids, g)
	}
	c := NewGroupSet(ids...)
	s.complete[id] = c
	return c
}

// HasCycle reports whether group id can reach itself through shares-with
// edges.
func (s *Session) HasCycle(id GroupID) bool {
	for _, p := range s.groups[id].Parents {
		if s.closure(p).Contains(id) {
			return true
		}
	}
	return false
}

// Cycles returns the names of every group that lies on a shares-with cycle.
func (s *Session) Cycles() []string {
	var out []string
	for _, g := range s.groups {
		if s.HasCycle(g.ID) {
			out = append(out, g.Name)
		}
	}
	sort.Strings(out)
	return out
}

// DependencyLevel returns 0 for a group without parents, otherwise one more
// than its deepest parent. Edges that close a cycle are ignored.
func (s *Session) DependencyLevel(id GroupID) int {
	onPath := map[GroupID]bool{}
	var depth func(GroupID) int
	depth = func(g GroupID) int {
		onPath[g] = true
		defer delete(onPath, g)
		best := 0
		for _, p := range s.groups[g].Parents {
			if onPath[p] {
				continue
			}
			if d := depth(p) + 1; d > best {
				best = d
			}
		}
		return best
	}
	return depth(id)
}

// GroupNames returns the names of the groups in set, sorted.
func (s *Session) GroupNames(set GroupSet) []string {
	out := make([]string, 0, len(set))
	for _, id := range set {
		out = append(out, s.groups[id].Name)
	}
	sort.Strings(out)
	return out
}

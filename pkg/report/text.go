package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteText writes the human-readable report. Sections appear in a fixed
// order: params, scene files, groups with their pages, textures, then
// whatever needs attention.
func WriteText(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	p := r.Params

	fmt.Fprintf(bw, "params\n")
	fmt.Fprintf(bw, "  palette size: %d %d\n", p.PageW, p.PageH)
	fmt.Fprintf(bw, "  margin: %d\n", p.Margin)
	fmt.Fprintf(bw, "  image type: %s\n", p.ImageType)
	fmt.Fprintf(bw, "  filename pattern: %s\n", p.Pattern)
	if p.MapDir != "" {
		fmt.Fprintf(bw, "  map dir: %s\n", p.MapDir)
	}
	fmt.Fprintf(bw, "  remap: %s char %s\n", p.Remap, p.RemapChar)
	fmt.Fprintf(bw, "  repeat: %s fuzz %g\n", p.Repeat, p.Fuzz)
	if p.OmitSolitary {
		fmt.Fprintf(bw, "  omitsolitary\n")
	}

	fmt.Fprintf(bw, "\nscene files\n")
	for _, sc := range r.Scenes {
		fmt.Fprintf(bw, "  %s", sc.Path)
		if sc.Output != "" && sc.Output != sc.Path {
			fmt.Fprintf(bw, " -> %s", sc.Output)
		}
		fmt.Fprintf(bw, " (%s)", strings.Join(sc.Groups, " "))
		if sc.NeedsRebuild {
			fmt.Fprintf(bw, " [stale]")
		}
		fmt.Fprintln(bw)
		for _, ref := range sc.Refs {
			fmt.Fprintf(bw, "    %s in %s", ref.Name, ref.Group)
			if ref.Target != "" {
				fmt.Fprintf(bw, " -> %s", ref.Target)
			}
			fmt.Fprintln(bw)
		}
	}

	fmt.Fprintf(bw, "\npalette groups\n")
	for _, g := range r.Groups {
		fmt.Fprintf(bw, "  %s level %d, %d dependents", g.Name, g.Level, g.Dependents)
		if len(g.SharesWith) > 0 {
			fmt.Fprintf(bw, ", with %s", strings.Join(g.SharesWith, " "))
		}
		if g.Cycle {
			fmt.Fprintf(bw, " [cycle]")
		}
		fmt.Fprintln(bw)
		for _, pg := range g.Pages {
			fmt.Fprintf(bw, "    page %d %s %dx%d %s, %.0f%% used\n",
				pg.ID, pg.Filename, pg.W, pg.H, pg.Class, pg.Used*100)
			for _, pl := range pg.Placements {
				fmt.Fprintf(bw, "      %s at %d %d size %d %d margin %d%s%s\n",
					pl.Texture, pl.X, pl.Y, pl.W, pl.H, pl.Margin,
					flag(pl.Wrap == "repeat", " repeat"), flag(!pl.Filled, " unfilled"))
			}
		}
	}

	fmt.Fprintf(bw, "\ntextures\n")
	for _, t := range r.Textures {
		if t.Known {
			fmt.Fprintf(bw, "  %s %d %d %d", t.Name, t.W, t.H, t.Channels)
		} else {
			fmt.Fprintf(bw, "  %s unknown size", t.Name)
		}
		if t.Source != "" {
			fmt.Fprintf(bw, " %s", t.Source)
		}
		fmt.Fprintln(bw)
		for _, u := range t.In {
			switch {
			case u.Packed:
				fmt.Fprintf(bw, "    %s: %s\n", u.Group, u.Page)
			case u.Copy != "":
				fmt.Fprintf(bw, "    %s: %s, copied to %s\n", u.Group, u.Reason, u.Copy)
			default:
				fmt.Fprintf(bw, "    %s: %s\n", u.Group, u.Reason)
			}
		}
	}

	writeList(bw, "surprises", r.Surprises)
	writeList(bw, "cycles", r.Cycles)
	writeList(bw, "warnings", r.Warnings)
	if len(r.Invalid) > 0 {
		fmt.Fprintf(bw, "\ninvalid directive lines\n")
		for _, inv := range r.Invalid {
			fmt.Fprintf(bw, "  line %d: %s (%s)\n", inv.Line, inv.Text, inv.Err)
		}
	}

	t := r.Stats.Total
	fmt.Fprintf(bw, "\ntotal: %d pages, %d packed, %d omitted, %.0f%% used, %d duplicated\n",
		t.Pages, t.Packed, sum(t.Omitted), t.Utilization()*100, r.Stats.Duplicated)
	return bw.Flush()
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  %s\n", it)
	}
}

func flag(on bool, s string) string {
	if on {
		return s
	}
	return ""
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// OmittedSummary returns "reason N" pairs in a stable order, for one-line
// build summaries.
func OmittedSummary(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts the group graph to Graphviz DOT. Edges point from a group
// to the groups it shares with; groups on a cycle are drawn red.
func ToDOT(r *Report) string {
	var buf bytes.Buffer
	buf.WriteString("digraph groups {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14];\n")
	buf.WriteString("\n")

	for _, g := range r.Groups {
		label := fmt.Sprintf("%s\nlevel %d, %d pages", g.Name, g.Level, len(g.Pages))
		attrs := fmt.Sprintf("label=%q", label)
		if g.Cycle {
			attrs += ", color=red, fontcolor=red"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", g.Name, attrs)
	}

	buf.WriteString("\n")
	for _, g := range r.Groups {
		for _, p := range g.SharesWith {
			fmt.Fprintf(&buf, "  %q -> %q;\n", g.Name, p)
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format selects a graph rendering.
type Format string

const (
	FormatDOT     Format = "dot"
	FormatJSON    Format = "json"
	FormatMermaid Format = "mermaid"
)

// Export renders the graph in the requested format.
func (g *Graph) Export(format Format) (string, error) {
	switch format {
	case FormatDOT:
		return g.exportDOT(), nil
	case FormatJSON:
		return g.exportJSON()
	case FormatMermaid:
		return g.exportMermaid(), nil
	default:
		return "", fmt.Errorf("unknown graph format %q", format)
	}
}

func (g *Graph) exportDOT() string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n\n")

	for _, n := range g.Nodes {
		shape := "box"
		color := "lightblue"
		if n.Kind == KindProvider {
			shape = "ellipse"
			color = "lightyellow"
		}
		fmt.Fprintf(&b, "  %q [label=\"%s\", shape=%s, style=filled, fillcolor=%s];\n",
			n.ID, n.label(), shape, color)
	}
	b.WriteString("\n")
	for _, e := range g.Edges {
		style := "solid"
		if e.Kind == EdgeRequiresProvider {
			style = "dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [style=%s, label=%q];\n", e.From, e.To, style, string(e.Kind))
	}
	b.WriteString("}\n")
	return b.String()
}

func (g *Graph) exportJSON() (string, error) {
	doc := struct {
		Nodes []*Node `json:"nodes"`
		Edges []Edge  `json:"edges"`
		Stats struct {
			Modules   int `json:"modules"`
			Providers int `json:"providers"`
			Edges     int `json:"edges"`
		} `json:"stats"`
	}{Nodes: g.Nodes, Edges: g.Edges}
	doc.Stats.Modules = g.ModuleCount()
	doc.Stats.Providers = g.ProviderCount()
	doc.Stats.Edges = len(g.Edges)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

func (g *Graph) exportMermaid() string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	ids := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		short := fmt.Sprintf("n%d", i)
		ids[n.ID] = short
		label := strings.ReplaceAll(n.Source, `"`, "'")
		if n.Kind == KindProvider {
			fmt.Fprintf(&b, "  %s([\"%s\"])\n", short, label)
		} else {
			fmt.Fprintf(&b, "  %s[\"%s\"]\n", short, label)
		}
	}
	for _, e := range g.Edges {
		arrow := "-->"
		if e.Kind == EdgeRequiresProvider {
			arrow = "-.->"
		}
		fmt.Fprintf(&b, "  %s %s %s\n", ids[e.From], arrow, ids[e.To])
	}
	return b.String()
}

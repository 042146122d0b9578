// Package graph builds the module/provider dependency graph from extracted
// references and renders it as DOT, JSON or Mermaid. The graph feeds the
// exports only; finding emission and the report inventory never consult it.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/monphare/monphare/internal/hclscan"
	"github.com/monphare/monphare/internal/source"
)

// NodeKind discriminates graph nodes.
type NodeKind string

const (
	KindModule   NodeKind = "module"
	KindProvider NodeKind = "provider"
)

// EdgeKind discriminates graph edges.
type EdgeKind string

const (
	EdgeDependsOn        EdgeKind = "depends_on"
	EdgeRequiresProvider EdgeKind = "requires_provider"
)

// Node is one module or provider, keyed by kind plus canonical source.
type Node struct {
	ID         string   `json:"id"`
	Kind       NodeKind `json:"kind"`
	Source     string   `json:"source"`
	SourceKind string   `json:"source_kind,omitempty"`
	// Names are the local labels/aliases the source was declared under.
	Names []string `json:"names"`
	// Count is how many refs collapsed into this node.
	Count int `json:"count"`
}

// Edge connects two nodes by ID.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Graph is the deduplicated dependency graph across all scanned
// repositories.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`

	byID map[string]*Node
}

// Builder accumulates inventories into a Graph.
type Builder struct {
	inferProviders bool
}

// NewBuilder creates a Builder. Provider requirement edges are inferred for
// registry modules by default.
func NewBuilder() *Builder {
	return &Builder{inferProviders: true}
}

// WithProviderInference toggles inferred module→provider edges.
func (b *Builder) WithProviderInference(infer bool) *Builder {
	b.inferProviders = infer
	return b
}

func nodeID(kind NodeKind, canonical string) string {
	return string(kind) + ":" + canonical
}

// Build constructs the graph from one or more inventories. Every ModuleRef
// maps to exactly one module node and every ProviderRef to one provider
// node; duplicates collapse by canonical source.
func (b *Builder) Build(inventories ...*hclscan.Inventory) *Graph {
	g := &Graph{byID: make(map[string]*Node)}

	for _, inv := range inventories {
		for i := range inv.Providers {
			p := &inv.Providers[i]
			g.addNode(KindProvider, p.Source, "", p.Alias)
		}
	}
	for _, inv := range inventories {
		// Module name -> node ID, per file, for depends_on resolution.
		byFile := make(map[string]map[string]string)
		for i := range inv.Modules {
			m := &inv.Modules[i]
			node := g.addNode(KindModule, m.Source.CanonicalID(), m.Source.Kind(), m.Name)

			if byFile[m.File] == nil {
				byFile[m.File] = make(map[string]string)
			}
			byFile[m.File][m.Name] = node.ID

			if b.inferProviders {
				if reg, ok := m.Source.(source.Registry); ok {
					providerID := nodeID(KindProvider, "hashicorp/"+reg.Provider)
					// Inference only links providers that were declared.
					if _, declared := g.byID[providerID]; declared {
						g.addEdge(node.ID, providerID, EdgeRequiresProvider)
					}
				}
			}
		}
		for i := range inv.Modules {
			m := &inv.Modules[i]
			fromID := nodeID(KindModule, m.Source.CanonicalID())
			for _, dep := range m.DependsOn {
				if toID, ok := byFile[m.File][dep]; ok && toID != fromID {
					g.addEdge(fromID, toID, EdgeDependsOn)
				}
			}
		}
	}

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		if g.Edges[i].To != g.Edges[j].To {
			return g.Edges[i].To < g.Edges[j].To
		}
		return g.Edges[i].Kind < g.Edges[j].Kind
	})
	return g
}

func (g *Graph) addNode(kind NodeKind, canonical, sourceKind, name string) *Node {
	id := nodeID(kind, canonical)
	node, ok := g.byID[id]
	if !ok {
		node = &Node{ID: id, Kind: kind, Source: canonical, SourceKind: sourceKind}
		g.byID[id] = node
		g.Nodes = append(g.Nodes, node)
	}
	node.Count++
	for _, existing := range node.Names {
		if existing == name {
			return node
		}
	}
	node.Names = append(node.Names, name)
	sort.Strings(node.Names)
	return node
}

func (g *Graph) addEdge(from, to string, kind EdgeKind) {
	for _, e := range g.Edges {
		if e.From == from && e.To == to && e.Kind == kind {
			return
		}
	}
	g.Edges = append(g.Edges, Edge{From: from, To: to, Kind: kind})
}

// Filter returns a copy narrowed to one node kind (empty keeps both) and to
// nodes whose source contains substr (empty keeps all). Edges with a
// filtered endpoint are dropped.
func (g *Graph) Filter(kind NodeKind, substr string) *Graph {
	out := &Graph{byID: make(map[string]*Node)}
	for _, n := range g.Nodes {
		if kind != "" && n.Kind != kind {
			continue
		}
		if substr != "" && !strings.Contains(n.Source, substr) {
			continue
		}
		copied := *n
		out.Nodes = append(out.Nodes, &copied)
		out.byID[n.ID] = &copied
	}
	for _, e := range g.Edges {
		if _, ok := out.byID[e.From]; !ok {
			continue
		}
		if _, ok := out.byID[e.To]; !ok {
			continue
		}
		out.Edges = append(out.Edges, e)
	}
	return out
}

// ModuleCount returns the number of module nodes.
func (g *Graph) ModuleCount() int { return g.countKind(KindModule) }

// ProviderCount returns the number of provider nodes.
func (g *Graph) ProviderCount() int { return g.countKind(KindProvider) }

func (g *Graph) countKind(kind NodeKind) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func (n *Node) label() string {
	return fmt.Sprintf("%s\\n(%s)", n.Source, strings.Join(n.Names, ", "))
}

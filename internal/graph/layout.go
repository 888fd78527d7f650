// Package graph turns the backend's dependency graph into a positioned,
// coloured layout and ranks its nodes by centrality.
package graph

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"refractoriq/internal/report"
)

// Layout grid.
const (
	Columns  = 8
	SpacingX = 220
	SpacingY = 120
)

// Folder keys with fixed meaning.
const (
	ExternalKey = "external"
	RootKey     = "."
)

// Placeholders shown instead of a graph.
const (
	PlaceholderUnavailable = "graph data unavailable"
	PlaceholderEmpty       = "graph has no nodes"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a positioned, coloured graph node.
type Node struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Folder   string   `json:"folder"`
	Color    string   `json:"color"`
	Position Position `json:"position"`
}

// Edge is a styled link between two laid out nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship,omitempty"`
	Dashed       bool   `json:"dashed"`
	Width        int    `json:"width"`
	Animated     bool   `json:"animated"`
	Arrow        bool   `json:"arrow"`
}

// LegendEntry counts the nodes drawn in one folder colour.
type LegendEntry struct {
	Folder string `json:"folder"`
	Color  string `json:"color"`
	Count  int    `json:"count"`
}

// Layout is everything needed to draw the dependency graph. When Placeholder
// is set the other fields are empty.
type Layout struct {
	Nodes        []Node        `json:"nodes"`
	Edges        []Edge        `json:"edges"`
	Legend       []LegendEntry `json:"legend"`
	DroppedEdges int           `json:"dropped_edges,omitempty"`
	Placeholder  string        `json:"placeholder,omitempty"`
}

// Empty reports whether the layout is a placeholder.
func (l *Layout) Empty() bool {
	return l.Placeholder != ""
}

// Build lays out a graph payload. A nil payload means the backend could not
// produce the graph.
func Build(p *report.GraphPayload) *Layout {
	if p == nil {
		return &Layout{Placeholder: PlaceholderUnavailable}
	}
	if len(p.Nodes) == 0 {
		return &Layout{Placeholder: PlaceholderEmpty}
	}

	colors := newColorizer()
	counts := make(map[string]int)
	ids := make(map[string]struct{}, len(p.Nodes))

	l := &Layout{Nodes: make([]Node, 0, len(p.Nodes))}
	for i, n := range p.Nodes {
		folder := FolderKey(n)
		counts[folder]++
		ids[n.ID] = struct{}{}
		l.Nodes = append(l.Nodes, Node{
			ID:       n.ID,
			Label:    nodeLabel(n),
			Type:     n.Type,
			Folder:   folder,
			Color:    colors.color(folder),
			Position: GridPosition(i),
		})
	}

	l.Edges = make([]Edge, 0, len(p.Links))
	for i, link := range p.Links {
		_, okS := ids[link.Source]
		_, okT := ids[link.Target]
		if !okS || !okT {
			l.DroppedEdges++
			continue
		}
		l.Edges = append(l.Edges, styleEdge(fmt.Sprintf("e%d", i), link))
	}

	l.Legend = make([]LegendEntry, 0, len(counts))
	for folder, count := range counts {
		l.Legend = append(l.Legend, LegendEntry{Folder: folder, Color: colors.color(folder), Count: count})
	}
	sort.Slice(l.Legend, func(i, j int) bool {
		return l.Legend[i].Folder < l.Legend[j].Folder
	})
	return l
}

// GridPosition places the i-th node on a fixed grid.
func GridPosition(i int) Position {
	return Position{
		X: float64(i%Columns) * SpacingX,
		Y: float64(i/Columns) * SpacingY,
	}
}

func styleEdge(id string, link report.GraphLink) Edge {
	e := Edge{
		ID:           id,
		Source:       link.Source,
		Target:       link.Target,
		Relationship: link.Relationship,
	}
	if link.Relationship == report.RelDefines {
		e.Dashed = true
		e.Width = 1
		return e
	}
	e.Width = 2
	e.Animated = true
	e.Arrow = true
	return e
}

// FolderKey groups a node by the directory it lives in.
func FolderKey(n report.GraphNode) string {
	switch n.Type {
	case report.NodeFile:
		return dir(n.ID)
	case report.NodeFunction, report.NodeClass:
		if n.File != "" {
			return dir(n.File)
		}
		if file, _, ok := strings.Cut(n.ID, "::"); ok {
			return dir(file)
		}
		return RootKey
	case report.NodeExternal:
		return ExternalKey
	}
	return RootKey
}

func dir(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return RootKey
	}
	return path.Dir(p)
}

func nodeLabel(n report.GraphNode) string {
	if n.Name != "" {
		return n.Name
	}
	if _, name, ok := strings.Cut(n.ID, "::"); ok && name != "" {
		return name
	}
	if n.Type == report.NodeFile {
		return path.Base(strings.ReplaceAll(n.ID, `\`, "/"))
	}
	return n.ID
}

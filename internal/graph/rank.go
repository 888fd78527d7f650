package graph

import (
	"fmt"
	"sort"

	"refractoriq/internal/report"
)

// Relationship weights used when walking the dependency graph.
var relationshipWeights = map[string]float64{
	report.RelImports: 1.0,
	report.RelDefines: 0.5,
}

const defaultWeight = 0.8

// RankOptions configures the random walk.
type RankOptions struct {
	// Damping is the probability of following an edge (default 0.85).
	Damping float64
	// MaxIterations bounds the power iteration (default 20).
	MaxIterations int
	// Tolerance stops iteration once scores settle (default 1e-6).
	Tolerance float64
	// TopK limits the returned nodes (default 10).
	TopK int
}

func (o RankOptions) withDefaults() RankOptions {
	if o.Damping <= 0 || o.Damping >= 1 {
		o.Damping = 0.85
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 20
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-6
	}
	if o.TopK <= 0 {
		o.TopK = 10
	}
	return o
}

// Ranked is a node with its walk score. Path is set for Related results and
// runs from the seed to the node.
type Ranked struct {
	ID    string   `json:"id"`
	Type  string   `json:"type,omitempty"`
	Score float64  `json:"score"`
	Path  []string `json:"path,omitempty"`
}

// Graph is a sparse weighted digraph indexed for random walks.
type Graph struct {
	ids   []string
	types []string
	index map[string]int
	out   [][]arc
	in    [][]arc
}

type arc struct {
	to     int
	weight float64
}

// NewGraph indexes a payload. Links to unknown nodes are ignored.
func NewGraph(p *report.GraphPayload) *Graph {
	g := &Graph{index: make(map[string]int)}
	if p == nil {
		return g
	}
	for _, n := range p.Nodes {
		if _, ok := g.index[n.ID]; ok {
			continue
		}
		g.index[n.ID] = len(g.ids)
		g.ids = append(g.ids, n.ID)
		g.types = append(g.types, n.Type)
	}
	g.out = make([][]arc, len(g.ids))
	g.in = make([][]arc, len(g.ids))
	for _, l := range p.Links {
		src, okS := g.index[l.Source]
		dst, okT := g.index[l.Target]
		if !okS || !okT {
			continue
		}
		w, ok := relationshipWeights[l.Relationship]
		if !ok {
			w = defaultWeight
		}
		g.out[src] = append(g.out[src], arc{to: dst, weight: w})
		g.in[dst] = append(g.in[dst], arc{to: src, weight: w})
	}
	return g
}

// NumNodes returns the number of indexed nodes.
func (g *Graph) NumNodes() int { return len(g.ids) }

// NumEdges returns the number of indexed links.
func (g *Graph) NumEdges() int {
	total := 0
	for _, a := range g.out {
		total += len(a)
	}
	return total
}

// Central ranks every node by PageRank.
func (g *Graph) Central(opts RankOptions) []Ranked {
	if len(g.ids) == 0 {
		return []Ranked{}
	}
	opts = opts.withDefaults()
	teleport := make([]float64, len(g.ids))
	for i := range teleport {
		teleport[i] = 1 / float64(len(g.ids))
	}
	return g.top(g.walk(teleport, opts), opts.TopK, nil)
}

// Related ranks nodes reachable from seed by personalised PageRank and
// explains each with a path back to the seed.
func (g *Graph) Related(seed string, opts RankOptions) ([]Ranked, error) {
	idx, ok := g.index[seed]
	if !ok {
		return nil, fmt.Errorf("node %q not in graph", seed)
	}
	opts = opts.withDefaults()
	teleport := make([]float64, len(g.ids))
	teleport[idx] = 1
	return g.top(g.walk(teleport, opts), opts.TopK, &idx), nil
}

func (g *Graph) walk(teleport []float64, opts RankOptions) []float64 {
	n := len(g.ids)
	outWeight := make([]float64, n)
	for i, arcs := range g.out {
		for _, a := range arcs {
			outWeight[i] += a.weight
		}
	}

	scores := make([]float64, n)
	copy(scores, teleport)
	next := make([]float64, n)
	for range opts.MaxIterations {
		clear(next)
		for i, arcs := range g.out {
			if outWeight[i] == 0 {
				continue
			}
			share := scores[i] / outWeight[i]
			for _, a := range arcs {
				next[a.to] += share * a.weight
			}
		}
		delta := 0.0
		for i := range next {
			next[i] = opts.Damping*next[i] + (1-opts.Damping)*teleport[i]
			if d := abs(next[i] - scores[i]); d > delta {
				delta = d
			}
		}
		scores, next = next, scores
		if delta < opts.Tolerance {
			break
		}
	}
	return scores
}

// top sorts by score, ties by id. With a seed, the seed itself is skipped
// and each result carries a path.
func (g *Graph) top(scores []float64, k int, seed *int) []Ranked {
	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if s > 0 && (seed == nil || i != *seed) {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return g.ids[order[a]] < g.ids[order[b]]
	})
	if len(order) > k {
		order = order[:k]
	}
	out := make([]Ranked, len(order))
	for i, idx := range order {
		out[i] = Ranked{ID: g.ids[idx], Type: g.types[idx], Score: scores[idx]}
		if seed != nil {
			out[i].Path = g.pathFrom(*seed, idx, 5)
		}
	}
	return out
}

// pathFrom walks incoming arcs greedily from target towards seed.
func (g *Graph) pathFrom(seed, target, maxDepth int) []string {
	path := []string{g.ids[target]}
	visited := map[int]bool{target: true}
	cur := target
	for range maxDepth {
		prev, best := -1, 0.0
		for _, a := range g.in[cur] {
			if !visited[a.to] && a.weight > best {
				prev, best = a.to, a.weight
			}
		}
		if prev < 0 {
			break
		}
		path = append(path, g.ids[prev])
		visited[prev] = true
		if prev == seed {
			break
		}
		cur = prev
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

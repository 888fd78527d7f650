package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"refractoriq/internal/dashboard"
	"refractoriq/internal/errors"
	"refractoriq/internal/graph"
	"refractoriq/internal/report"
)

var (
	graphFocus string
	graphTop   int
	graphNodes bool
)

var graphCmd = &cobra.Command{
	Use:   "graph <job-id>",
	Short: "Summarise the dependency graph of a completed job",
	Long: `Lay out the dependency graph of a completed job, list its folders and the
most central files. With --focus, rank the nodes most related to one node
and show how they connect to it.

Examples:
  refractoriq graph 0b5c9e
  refractoriq graph 0b5c9e --focus app/db.py --top 5
  refractoriq graph 0b5c9e --nodes --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringVar(&graphFocus, "focus", "", "Node id to rank related nodes for")
	graphCmd.Flags().IntVar(&graphTop, "top", 10, "Number of ranked nodes to show")
	graphCmd.Flags().BoolVar(&graphNodes, "nodes", false, "Include the positioned nodes and edges in the output")
	rootCmd.AddCommand(graphCmd)
}

// GraphResponseCLI summarises a dependency graph
type GraphResponseCLI struct {
	JobID        string              `json:"jobId"`
	Placeholder  string              `json:"placeholder,omitempty"`
	NodeCount    int                 `json:"nodeCount"`
	EdgeCount    int                 `json:"edgeCount"`
	DroppedEdges int                 `json:"droppedEdges,omitempty"`
	Legend       []graph.LegendEntry `json:"legend,omitempty"`
	Central      []graph.Ranked      `json:"central,omitempty"`
	Focus        string              `json:"focus,omitempty"`
	Related      []graph.Ranked      `json:"related,omitempty"`
	Nodes        []graph.Node        `json:"nodes,omitempty"`
	Edges        []graph.Edge        `json:"edges,omitempty"`
}

func (r *GraphResponseCLI) formatHuman(t dashboard.Theme) string {
	lines := []string{t.Title.Render("Dependency graph · job " + r.JobID)}
	if r.Placeholder != "" {
		return joinLines(append(lines, t.Muted.Render(r.Placeholder)))
	}
	lines = append(lines,
		t.Label.Render("Nodes")+t.Value.Render(fmt.Sprint(r.NodeCount)),
		t.Label.Render("Edges")+t.Value.Render(fmt.Sprint(r.EdgeCount)),
	)
	if r.DroppedEdges > 0 {
		lines = append(lines, t.Muted.Render(fmt.Sprintf("%d edges reference unknown nodes", r.DroppedEdges)))
	}

	lines = append(lines, t.Section.Render("Folders"))
	for _, e := range r.Legend {
		lines = append(lines, fmt.Sprintf("%s %-40s %d", t.Swatch(e.Color, "■"), e.Folder, e.Count))
	}

	if len(r.Central) > 0 {
		lines = append(lines, t.Section.Render("Most central"))
		for _, n := range r.Central {
			lines = append(lines, fmt.Sprintf("%.4f  %s", n.Score, n.ID))
		}
	}
	if r.Focus != "" {
		lines = append(lines, t.Section.Render("Related to "+r.Focus))
		if len(r.Related) == 0 {
			lines = append(lines, t.Muted.Render("Nothing is reachable from this node."))
		}
		for _, n := range r.Related {
			lines = append(lines, fmt.Sprintf("%.4f  %s", n.Score, n.ID))
			if len(n.Path) > 1 {
				lines = append(lines, t.Muted.Render("        "+strings.Join(n.Path, " → ")))
			}
		}
	}
	return joinLines(lines)
}

func runGraph(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := newContext()
	defer cancel()

	res, err := fetchResults(ctx, env, args[0], "")
	if err != nil {
		return err
	}
	resp, err := buildGraphResponse(args[0], res.DependencyMetrics.GraphJSON, graphFocus, graphTop, graphNodes)
	if err != nil {
		return err
	}
	return printResponse(cmd, resp)
}

func buildGraphResponse(jobID string, p *report.GraphPayload, focus string, top int, withNodes bool) (*GraphResponseCLI, error) {
	layout := graph.Build(p)
	resp := &GraphResponseCLI{JobID: jobID}
	if layout.Empty() {
		resp.Placeholder = layout.Placeholder
		return resp, nil
	}
	resp.NodeCount = len(layout.Nodes)
	resp.EdgeCount = len(layout.Edges)
	resp.DroppedEdges = layout.DroppedEdges
	resp.Legend = layout.Legend
	if withNodes {
		resp.Nodes = layout.Nodes
		resp.Edges = layout.Edges
	}

	g := graph.NewGraph(p)
	opts := graph.RankOptions{TopK: top}
	resp.Central = g.Central(opts)
	if focus = strings.TrimSpace(focus); focus != "" {
		related, err := g.Related(focus, opts)
		if err != nil {
			return nil, errors.NewRiqError(errors.NotFound, err.Error(), err)
		}
		resp.Focus = focus
		resp.Related = related
	}
	return resp, nil
}

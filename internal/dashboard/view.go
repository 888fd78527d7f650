package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"refractoriq/internal/graph"
	"refractoriq/internal/jobs"
	"refractoriq/internal/metrics"
	"refractoriq/internal/report"
)

// Tab names a dashboard view.
type Tab string

const (
	TabOverview     Tab = "overview"
	TabComplexity   Tab = "complexity"
	TabDependencies Tab = "dependencies"
	TabGraph        Tab = "graph"
	TabDuplicates   Tab = "duplicates"
	TabSuggestions  Tab = "suggestions"
	TabSearch       Tab = "search"
)

// Tabs lists the views in display order.
var Tabs = []Tab{TabOverview, TabComplexity, TabDependencies, TabGraph, TabDuplicates, TabSuggestions, TabSearch}

// ParseTab resolves a tab name.
func ParseTab(name string) (Tab, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range Tabs {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tab %q (valid: %s)", name, tabNames())
}

func tabNames() string {
	names := make([]string, len(Tabs))
	for i, t := range Tabs {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

const (
	msgNoResults = "No analysis results yet."
	barCells     = 20
	listLimit    = 10
	centralTopK  = 5
)

// Render draws one tab from a snapshot, preceded by the status line.
func (t Theme) Render(tab Tab, snap Snapshot) string {
	var body string
	switch tab {
	case TabSearch:
		body = t.searchView(snap)
	default:
		res := snap.Job.Result
		if res == nil {
			body = t.Muted.Render(msgNoResults)
			break
		}
		switch tab {
		case TabOverview:
			body = t.overview(snap.Job, res)
		case TabComplexity:
			body = t.complexity(res.CodeMetrics)
		case TabDependencies:
			body = t.dependencies(res.DependencyMetrics)
		case TabGraph:
			body = t.graphView(res.DependencyMetrics.GraphJSON)
		case TabDuplicates:
			body = t.duplicates(res.DuplicationMetrics)
		case TabSuggestions:
			body = t.suggestions(res.LLMSuggestions)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render("RefractorIQ · "+string(tab)),
		t.StatusLine(snap.Job),
		"",
		body,
	)
}

// StatusLine summarises the job flow. Validation, start and polling errors
// and a backend FAILED status each read differently.
func (t Theme) StatusLine(st jobs.State) string {
	if st.ErrorKind == jobs.ErrorValidation {
		return t.Error.Render("Invalid input: " + st.Error)
	}
	repo := ""
	if st.LastJob != nil {
		repo = st.LastJob.RepoURL
	}
	switch {
	case st.Starting:
		return t.Muted.Render("Starting analysis…")
	case st.Phase.IsActive():
		j := st.ActiveJob
		if j == nil {
			j = st.LastJob
		}
		if j == nil {
			return t.Warning.Render(string(st.Phase))
		}
		return t.Warning.Render(fmt.Sprintf("Job %s %s (%d polls) · %s", j.ID, st.Phase, j.Polls, j.RepoURL))
	}
	switch st.Phase {
	case jobs.PhaseCompleted:
		line := t.Success.Render(fmt.Sprintf("Analysis complete · job %s · %s", st.CompletedJobID, repo))
		if st.Warning != "" {
			line += "\n" + t.Warning.Render("Completed with warnings: "+st.Warning)
		}
		return line
	case jobs.PhaseFailed:
		return t.Error.Render("Backend reported FAILED: " + st.Error)
	case jobs.PhaseError:
		switch st.ErrorKind {
		case jobs.ErrorStart:
			return t.Error.Render("Could not start analysis: " + st.Error)
		default:
			return t.Error.Render("Lost contact with the backend: " + st.Error)
		}
	}
	return t.Muted.Render("Idle. Submit a repository URL to analyze.")
}

func (t Theme) overview(st jobs.State, res *report.AnalysisResult) string {
	cm := res.CodeMetrics
	lines := []string{
		t.row("Repository", res.Repository),
	}
	if res.AnalysisMethod != "" {
		lines = append(lines, t.row("Analysis method", res.AnalysisMethod))
	}
	if res.ExcludedThirdParty != nil {
		lines = append(lines, t.row("Third-party excluded", yesNo(*res.ExcludedThirdParty)))
	}
	if res.ExcludedTests != nil {
		lines = append(lines, t.row("Tests excluded", yesNo(*res.ExcludedTests)))
	}

	lines = append(lines, t.Section.Render("Summary"))
	if cm.Error != "" {
		lines = append(lines, t.Error.Render("Code metrics unavailable: "+cm.Error))
	} else {
		lines = append(lines,
			t.row("Lines of code", t.Value.Render(metrics.FormatLOC(cm.LOC))),
			t.row("TODO / FIXME / HACK", t.Value.Render(metrics.FormatNumber(cm.TODOs))),
			t.row("Avg complexity", t.tier(metrics.ComplexityTier(cm.AvgCyclomaticComplexity), metrics.FormatDecimal(cm.AvgCyclomaticComplexity))),
			t.row("Debt score", t.tier(metrics.DebtTier(cm.DebtScore), metrics.FormatNumber(cm.DebtScore))),
			t.row("Functions", t.Value.Render(metrics.FormatNumber(cm.TotalFunctions))),
			t.row("Files analyzed", t.Value.Render(metrics.FormatNumber(cm.FilesAnalyzed))),
		)
	}
	lines = append(lines,
		t.row("Duplicate pairs", t.Value.Render(metrics.FormatNumber(res.DuplicationMetrics.DuplicatePairsFound))),
		t.row("Circular dependencies", t.Value.Render(metrics.FormatNumber(res.DependencyMetrics.CircularDependencies))),
	)

	if st.Warning != "" || len(res.AnalysisErrors) > 0 {
		lines = append(lines, t.Section.Render("Warnings"))
		if st.Warning != "" {
			lines = append(lines, t.Warning.Render("• "+st.Warning))
		}
		for _, e := range res.AnalysisErrors {
			lines = append(lines, t.Warning.Render("• "+e))
		}
	}
	return strings.Join(lines, "\n")
}

func (t Theme) complexity(cm report.CodeMetrics) string {
	if cm.Error != "" {
		return t.Error.Render("Code metrics unavailable: " + cm.Error)
	}
	lines := []string{
		t.row("Average", t.tier(metrics.ComplexityTier(cm.AvgCyclomaticComplexity), metrics.FormatDecimal(cm.AvgCyclomaticComplexity))),
		t.row("Maximum", t.tier(metrics.ComplexityTier(cm.MaxComplexity), metrics.FormatNumber(cm.MaxComplexity))),
		t.row("Minimum", t.tier(metrics.ComplexityTier(cm.MinComplexity), metrics.FormatNumber(cm.MinComplexity))),
		t.row("Functions", metrics.FormatNumber(cm.TotalFunctions)),
		t.Section.Render("Distribution"),
	}
	for _, r := range metrics.Distribution(cm.ComplexityDistribution) {
		label := fmt.Sprintf("%s (%s)", r.Label, r.Range)
		bar := t.tier(r.Tier, metrics.Bar(r.Percent, barCells))
		lines = append(lines, t.row(label, fmt.Sprintf("%s %6s  %s", bar, metrics.FormatPercent(r.Percent), metrics.FormatNumber(r.Count))))
	}
	return strings.Join(lines, "\n")
}

func (t Theme) dependencies(dm report.DependencyMetrics) string {
	lines := []string{}
	if dm.Error != "" {
		lines = append(lines, t.Error.Render("Dependency analysis error: "+dm.Error))
	}
	lines = append(lines,
		t.row("Files", metrics.FormatNumber(dm.TotalFiles)),
		t.row("Functions", metrics.FormatNumber(dm.TotalFunctions)),
		t.row("Classes", metrics.FormatNumber(dm.TotalClasses)),
		t.row("External dependencies", metrics.FormatNumber(dm.TotalExternalDependencies)),
		t.row("Edges", metrics.FormatNumber(dm.TotalEdges)),
		t.row("Circular dependencies", metrics.FormatNumber(dm.CircularDependencies)),
	)
	if len(dm.CircularDependencyChains) > 0 {
		lines = append(lines, t.Section.Render("Circular chains"))
		for _, chain := range dm.CircularDependencyChains {
			lines = append(lines, t.Warning.Render("↻ "+strings.Join(chain, " → ")))
		}
	}
	lines = append(lines, t.degreeList("Most dependent files", dm.MostDependentFiles, "deps")...)
	lines = append(lines, t.degreeList("Most depended-on files", dm.MostDependedOnFiles, "dependents")...)
	return strings.Join(lines, "\n")
}

func (t Theme) degreeList(title string, files []report.FileDegree, unit string) []string {
	if len(files) == 0 {
		return nil
	}
	lines := []string{t.Section.Render(title)}
	for i, f := range files {
		if i == listLimit {
			lines = append(lines, t.Muted.Render(fmt.Sprintf("… %d more", len(files)-listLimit)))
			break
		}
		lines = append(lines, fmt.Sprintf("%6s %s  %s", metrics.FormatNumber(f.Count()), unit, f.File))
	}
	return lines
}

func (t Theme) graphView(p *report.GraphPayload) string {
	l := graph.Build(p)
	if l.Empty() {
		return t.Muted.Render(l.Placeholder)
	}
	lines := []string{
		t.row("Nodes", metrics.FormatNumber(report.N(float64(len(l.Nodes))))),
		t.row("Edges", metrics.FormatNumber(report.N(float64(len(l.Edges))))),
	}
	if l.DroppedEdges > 0 {
		lines = append(lines, t.Muted.Render(fmt.Sprintf("%d edges reference unknown nodes", l.DroppedEdges)))
	}
	lines = append(lines, t.Section.Render("Folders"))
	for _, e := range l.Legend {
		lines = append(lines, fmt.Sprintf("%s %-40s %d", t.Swatch(e.Color, "■"), e.Folder, e.Count))
	}
	if central := graph.NewGraph(p).Central(graph.RankOptions{TopK: centralTopK}); len(central) > 0 {
		lines = append(lines, t.Section.Render("Most central"))
		for _, r := range central {
			lines = append(lines, fmt.Sprintf("%.4f  %s", r.Score, r.ID))
		}
	}
	return strings.Join(lines, "\n")
}

func (t Theme) duplicates(dm report.DuplicationMetrics) string {
	lines := []string{}
	if dm.Error != "" {
		lines = append(lines, t.Error.Render("Duplication analysis error: "+dm.Error))
	}
	lines = append(lines,
		t.row("Duplicate pairs", metrics.FormatNumber(dm.DuplicatePairsFound)),
		t.row("Files analyzed", metrics.FormatNumber(dm.FilesAnalyzed)),
		t.row("Similarity threshold", metrics.FormatSimilarity(dm.SimilarityThreshold)),
	)
	if dm.ShingleSizeK.Valid {
		lines = append(lines, t.row("Shingle size (k)", metrics.FormatNumber(dm.ShingleSizeK)))
	}
	if len(dm.Duplicates) == 0 {
		if dm.Error == "" {
			lines = append(lines, "", t.Success.Render("No near-duplicate files found."))
		}
		return strings.Join(lines, "\n")
	}
	lines = append(lines, t.Section.Render("Pairs"))
	for _, d := range dm.Duplicates {
		lines = append(lines, fmt.Sprintf("%7s  %s ↔ %s", metrics.FormatSimilarity(d.Similarity), d.FileA, d.FileB))
	}
	return strings.Join(lines, "\n")
}

func (t Theme) suggestions(items []report.Suggestion) string {
	if len(items) == 0 {
		return t.Muted.Render("No refactoring suggestions.")
	}
	blocks := make([]string, 0, len(items))
	for _, s := range items {
		head := fmt.Sprintf("%s · %s · complexity %s",
			t.Value.Render(s.FunctionName), s.FilePath,
			t.tier(metrics.ComplexityTier(s.Complexity), metrics.FormatNumber(s.Complexity)))
		blocks = append(blocks, t.Panel.Render(head+"\n\n"+strings.TrimSpace(s.Suggestion)))
	}
	return strings.Join(blocks, "\n")
}

func (t Theme) searchView(snap Snapshot) string {
	ss := snap.Search
	if snap.Job.CompletedJobID == "" && ss.Query == "" {
		return t.Muted.Render("Search becomes available once an analysis completes.")
	}
	lines := []string{}
	if ss.Query != "" {
		lines = append(lines, t.row("Query", fmt.Sprintf("%q (top %d)", ss.Query, ss.K)))
	}
	switch {
	case ss.Error != "":
		lines = append(lines, t.Error.Render("Search error: "+ss.Error))
	case ss.Loading:
		lines = append(lines, t.Muted.Render("Searching…"))
	case ss.Searched && len(ss.Results) == 0:
		lines = append(lines, t.Muted.Render("No matches."))
	}
	for i, h := range ss.Results {
		lines = append(lines, "", fmt.Sprintf("%d. %s  %s", i+1, t.Value.Render(h.FilePath), t.Muted.Render("score "+metrics.FormatScore(h.Score))))
		lines = append(lines, snippet(h.Content, 6))
	}
	if len(lines) == 0 {
		return t.Muted.Render("Enter a query to search the analyzed code.")
	}
	return strings.Join(lines, "\n")
}

func snippet(content string, maxLines int) string {
	all := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(all) > maxLines {
		all = append(all[:maxLines], "…")
	}
	for i := range all {
		all[i] = "    " + all[i]
	}
	return strings.Join(all, "\n")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

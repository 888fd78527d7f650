package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"refractoriq/internal/dashboard"
	"refractoriq/internal/errors"
	"refractoriq/internal/metrics"
	"refractoriq/internal/report"
	"refractoriq/internal/search"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search <job-id> <query>",
	Short: "Search the code of an analyzed repository",
	Long: `Run a semantic search over the files of a completed analysis.

Examples:
  refractoriq search 0b5c9e "database connection pooling"
  refractoriq search 0b5c9e "retry logic" -k 10`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "top-k", "k", 0, "Number of results (default from config)")
	rootCmd.AddCommand(searchCmd)
}

// SearchResponseCLI holds search hits for CLI output
type SearchResponseCLI struct {
	JobID   string             `json:"jobId"`
	Query   string             `json:"query"`
	K       int                `json:"k"`
	Results []report.SearchHit `json:"results"`
}

func (r *SearchResponseCLI) formatHuman(t dashboard.Theme) string {
	lines := []string{t.Title.Render(fmt.Sprintf("Search results for: %s", r.Query))}
	if len(r.Results) == 0 {
		return joinLines(append(lines, t.Muted.Render("No matches.")))
	}
	for i, hit := range r.Results {
		lines = append(lines, "", fmt.Sprintf("%d. %s  %s", i+1, t.Value.Render(hit.FilePath),
			t.Muted.Render("score "+metrics.FormatScore(hit.Score))))
		for _, l := range strings.Split(strings.TrimRight(hit.Content, "\n"), "\n") {
			lines = append(lines, "   "+l)
		}
	}
	return joinLines(lines)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchK < 0 {
		return errors.NewRiqError(errors.InvalidInput, "top-k must be positive", nil)
	}

	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := newContext()
	defer cancel()

	client, err := env.backendClient()
	if err != nil {
		return err
	}

	k := searchK
	if k == 0 {
		k = env.cfg.Analysis.SearchTopK
	}
	jobID := args[0]
	query := strings.Join(args[1:], " ")

	panel := search.NewPanel(client, env.logger)
	hits, err := panel.Submit(ctx, jobID, query, k)
	if err != nil {
		return err
	}
	st := panel.Snapshot()
	return printResponse(cmd, &SearchResponseCLI{JobID: st.JobID, Query: st.Query, K: st.K, Results: hits})
}

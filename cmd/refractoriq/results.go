package main

import (
	"context"

	"github.com/spf13/cobra"

	"refractoriq/internal/backend"
	"refractoriq/internal/dashboard"
	"refractoriq/internal/jobs"
	"refractoriq/internal/report"
)

var (
	resultsTab  string
	resultsPath string
)

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Render the results of a completed job",
	Long: `Download the results document of a completed job and render one dashboard tab.

Examples:
  refractoriq results 0b5c9e
  refractoriq results 0b5c9e --tab dependencies
  refractoriq results 0b5c9e --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsTab, "tab", string(dashboard.TabOverview), "Dashboard tab to render")
	resultsCmd.Flags().StringVar(&resultsPath, "results-url", "", "Results location (default: the job's results endpoint)")
	rootCmd.AddCommand(resultsCmd)
}

// ResultsResponseCLI is a downloaded results document
type ResultsResponseCLI struct {
	JobID  string                 `json:"jobId"`
	Result *report.AnalysisResult `json:"result"`
	tab    dashboard.Tab
}

func (r *ResultsResponseCLI) formatHuman(t dashboard.Theme) string {
	return t.Render(r.tab, dashboard.Snapshot{Job: completedState(r.JobID, r.Result)})
}

// completedState wraps a fetched result in the state the dashboard views expect.
func completedState(jobID string, res *report.AnalysisResult) jobs.State {
	job := &jobs.Job{ID: jobID, Status: report.StatusCompleted}
	if res != nil {
		job.RepoURL = res.Repository
	}
	return jobs.State{
		Phase:          jobs.PhaseCompleted,
		LastJob:        job,
		CompletedJobID: jobID,
		Result:         res,
	}
}

func runResults(cmd *cobra.Command, args []string) error {
	tab, err := dashboard.ParseTab(resultsTab)
	if err != nil {
		return err
	}

	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := newContext()
	defer cancel()

	res, err := fetchResults(ctx, env, args[0], resultsPath)
	if err != nil {
		return err
	}
	return printResponse(cmd, &ResultsResponseCLI{JobID: args[0], Result: res, tab: tab})
}

// fetchResults downloads a job's results document.
func fetchResults(ctx context.Context, env *cliEnv, jobID, ref string) (*report.AnalysisResult, error) {
	client, err := env.backendClient()
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = backend.DefaultResultsPath(jobID)
	}
	return client.FetchResults(ctx, ref)
}

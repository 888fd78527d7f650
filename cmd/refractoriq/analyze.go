package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"refractoriq/internal/backend"
	"refractoriq/internal/dashboard"
	"refractoriq/internal/jobs"
)

var (
	analyzeWait              bool
	analyzeTab               string
	analyzeExcludeThirdParty bool
	analyzeExcludeTests      bool
	analyzeInterval          time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url>",
	Short: "Submit a repository for analysis",
	Long: `Submit a repository to the analysis backend and follow the job until it
completes or fails, then render the results.

Examples:
  refractoriq analyze https://github.com/org/repo
  refractoriq analyze https://github.com/org/repo --tab complexity
  refractoriq analyze https://github.com/org/repo --exclude-tests=false
  refractoriq analyze https://github.com/org/repo --wait=false --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeWait, "wait", true, "Follow the job until it finishes")
	analyzeCmd.Flags().StringVar(&analyzeTab, "tab", string(dashboard.TabOverview), "Dashboard tab to render when the job completes")
	analyzeCmd.Flags().BoolVar(&analyzeExcludeThirdParty, "exclude-third-party", true, "Skip vendored and third-party code (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeExcludeTests, "exclude-tests", true, "Skip test files (default from config)")
	analyzeCmd.Flags().DurationVar(&analyzeInterval, "interval", 0, "Status polling interval (default from config)")
	rootCmd.AddCommand(analyzeCmd)
}

// AnalysisResponseCLI is the state of an analysis as printed by analyze.
type AnalysisResponseCLI struct {
	Job jobs.State `json:"job"`
	tab dashboard.Tab
}

func (r *AnalysisResponseCLI) formatHuman(t dashboard.Theme) string {
	if !r.Job.Phase.IsTerminal() {
		return t.StatusLine(r.Job)
	}
	return t.Render(r.tab, dashboard.Snapshot{Job: r.Job})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	tab, err := dashboard.ParseTab(analyzeTab)
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

	client, err := env.backendClient()
	if err != nil {
		return err
	}

	opts := dashboard.Options{PollInterval: env.cfg.Analysis.PollInterval(), Logger: env.logger}
	if analyzeInterval > 0 {
		opts.PollInterval = analyzeInterval
	}
	if analyzeWait {
		store, err := env.openHistory(ctx)
		if err != nil {
			env.logger.Warn("Run history unavailable", "error", err)
		} else if store != nil {
			opts.History = store
		}
	}

	session := dashboard.NewSession(client, opts)
	defer session.Close()

	if outputFormat() == FormatHuman && !quiet {
		progress := dashboard.NewTheme(cmd.ErrOrStderr())
		session.Poller().OnTransition(func(from, to jobs.State) {
			if to.Phase.IsActive() && (from.Phase != to.Phase || from.Starting) {
				fmt.Fprintln(cmd.ErrOrStderr(), progress.StatusLine(to))
			}
		})
	}

	req := backend.StartRequest{
		RepoURL:           args[0],
		ExcludeThirdParty: env.cfg.Analysis.ExcludeThirdParty,
		ExcludeTests:      env.cfg.Analysis.ExcludeTests,
	}
	if cmd.Flags().Changed("exclude-third-party") {
		req.ExcludeThirdParty = analyzeExcludeThirdParty
	}
	if cmd.Flags().Changed("exclude-tests") {
		req.ExcludeTests = analyzeExcludeTests
	}

	if err := session.Analyze(ctx, req); err != nil {
		return err
	}

	if !analyzeWait {
		return printResponse(cmd, &AnalysisResponseCLI{Job: session.Snapshot().Job, tab: tab})
	}

	st, err := session.Poller().Wait(ctx, func(s jobs.State) bool { return s.Phase.IsTerminal() })
	if err != nil {
		session.Stop()
		if st.LastJob != nil {
			return fmt.Errorf("stopped following job %s; it keeps running on the backend", st.LastJob.ID)
		}
		return err
	}
	// Close waits for the history recorder.
	_ = session.Close()

	if err := printResponse(cmd, &AnalysisResponseCLI{Job: st, tab: tab}); err != nil {
		return err
	}
	if st.Phase != jobs.PhaseCompleted {
		return fmt.Errorf("analysis ended in %s: %s", st.Phase, st.Error)
	}
	return nil
}

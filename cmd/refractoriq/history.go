package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"refractoriq/internal/dashboard"
	"refractoriq/internal/errors"
	"refractoriq/internal/jobs"
	"refractoriq/internal/metrics"
)

var (
	historyLimit     int
	historyOffset    int
	historyStatus    []string
	historyTab       string
	historyOlderThan int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the local history of finished analyses",
	Long: `List, show and prune the analyses this client has followed to completion.

History is stored in history.db in the RefractorIQ home directory.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Long: `List recorded runs with their summary metrics.

Examples:
  refractoriq history list
  refractoriq history list --status FAILED --limit 5
  refractoriq history list --format yaml`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Render a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than the retention period",
	Long: `Delete recorded runs that finished before the retention period.

Examples:
  refractoriq history prune                  # Use history.retentionDays
  refractoriq history prune --older-than 7`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs")
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of runs to skip")
	historyListCmd.Flags().StringSliceVar(&historyStatus, "status", nil, "Only show runs with these statuses (COMPLETED, FAILED, ERROR)")
	historyShowCmd.Flags().StringVar(&historyTab, "tab", string(dashboard.TabOverview), "Dashboard tab to render")
	historyPruneCmd.Flags().IntVar(&historyOlderThan, "older-than", 0, "Retention in days (default from config)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// HistoryListResponseCLI is one page of recorded runs
type HistoryListResponseCLI struct {
	Runs       []jobs.Run `json:"runs"`
	TotalCount int        `json:"totalCount"`
	Offset     int        `json:"offset"`
}

func (r *HistoryListResponseCLI) formatHuman(t dashboard.Theme) string {
	if len(r.Runs) == 0 {
		return t.Muted.Render("No recorded runs.")
	}
	lines := []string{
		t.Title.Render(fmt.Sprintf("Run history (%d of %d)", len(r.Runs), r.TotalCount)),
		t.Muted.Render(fmt.Sprintf("%-14s %-10s %8s %8s %8s %-16s %s", "JOB", "STATUS", "LOC", "DEBT", "AVG CC", "FINISHED", "REPOSITORY")),
	}
	for _, run := range r.Runs {
		status := fmt.Sprintf("%-10s", run.Status)
		if run.Status == jobs.PhaseCompleted {
			status = t.Success.Render(status)
		} else {
			status = t.Error.Render(status)
		}
		lines = append(lines, fmt.Sprintf("%-14s %s %8s %8s %8s %-16s %s",
			shortID(run.JobID),
			status,
			metrics.FormatLOC(run.Summary.LOC),
			metrics.FormatDecimal(run.Summary.DebtScore),
			metrics.FormatDecimal(run.Summary.AvgComplexity),
			metrics.FormatAgo(run.CompletedAt),
			run.RepoURL,
		))
	}
	if more := r.TotalCount - r.Offset - len(r.Runs); more > 0 {
		lines = append(lines, t.Muted.Render(fmt.Sprintf("… %d more (use --offset %d)", more, r.Offset+len(r.Runs))))
	}
	return joinLines(lines)
}

// HistoryRunResponseCLI is one recorded run
type HistoryRunResponseCLI struct {
	Run *jobs.Run `json:"run"`
	tab dashboard.Tab
}

func (r *HistoryRunResponseCLI) formatHuman(t dashboard.Theme) string {
	header := t.Muted.Render(fmt.Sprintf("Recorded %s (%s)", metrics.FormatAgo(r.Run.CompletedAt),
		r.Run.CompletedAt.Local().Format(time.DateTime)))
	return joinLines([]string{t.Render(r.tab, dashboard.Snapshot{Job: stateFromRun(r.Run)}), "", header})
}

// stateFromRun rebuilds the terminal state a run was recorded from.
func stateFromRun(run *jobs.Run) jobs.State {
	completed := run.CompletedAt
	job := &jobs.Job{
		ID:                run.JobID,
		RepoURL:           run.RepoURL,
		ExcludeThirdParty: run.ExcludeThirdParty,
		ExcludeTests:      run.ExcludeTests,
		Error:             run.Error,
		SubmittedAt:       run.SubmittedAt,
		UpdatedAt:         run.CompletedAt,
		CompletedAt:       &completed,
	}
	st := jobs.State{
		Phase:   run.Status,
		LastJob: job,
		Result:  run.Result,
		Warning: run.Warning,
		Error:   run.Error,
	}
	switch run.Status {
	case jobs.PhaseCompleted:
		st.CompletedJobID = run.JobID
	case jobs.PhaseError:
		st.ErrorKind = jobs.ErrorPoll
	}
	return st
}

// PruneResponseCLI reports a history prune
type PruneResponseCLI struct {
	Removed       int64 `json:"removed"`
	RetentionDays int   `json:"retentionDays"`
}

func (r *PruneResponseCLI) formatHuman(t dashboard.Theme) string {
	return fmt.Sprintf("Removed %d runs older than %d days", r.Removed, r.RetentionDays)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	statuses := make([]jobs.Phase, 0, len(historyStatus))
	for _, s := range historyStatus {
		p := jobs.Phase(strings.ToUpper(strings.TrimSpace(s)))
		if !p.IsTerminal() {
			return errors.NewRiqError(errors.InvalidInput, fmt.Sprintf("invalid status %q", s), nil)
		}
		statuses = append(statuses, p)
	}

	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := newContext()
	defer cancel()

	store, err := env.requireHistory(ctx)
	if err != nil {
		return err
	}
	page, err := store.List(ctx, jobs.ListOptions{Status: statuses, Limit: historyLimit, Offset: historyOffset})
	if err != nil {
		return err
	}
	return printResponse(cmd, &HistoryListResponseCLI{Runs: page.Runs, TotalCount: page.TotalCount, Offset: historyOffset})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	tab, err := dashboard.ParseTab(historyTab)
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

	store, err := env.requireHistory(ctx)
	if err != nil {
		return err
	}
	run, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if run == nil {
		return errors.NewRiqError(errors.NotFound, fmt.Sprintf("no recorded run for job %s", args[0]), nil)
	}
	return printResponse(cmd, &HistoryRunResponseCLI{Run: run, tab: tab})
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := newContext()
	defer cancel()

	days := env.cfg.History.RetentionDays
	if cmd.Flags().Changed("older-than") {
		days = historyOlderThan
	}
	if days <= 0 {
		return errors.NewRiqError(errors.InvalidInput, "retention must be at least one day", nil)
	}

	store, err := env.requireHistory(ctx)
	if err != nil {
		return err
	}
	removed, err := store.Prune(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	return printResponse(cmd, &PruneResponseCLI{Removed: removed, RetentionDays: days})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

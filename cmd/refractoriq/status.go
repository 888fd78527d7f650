package main

import (
	"github.com/spf13/cobra"

	"refractoriq/internal/dashboard"
	"refractoriq/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the backend status of an analysis job",
	Long:  "Ask the analysis backend for the current status of one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// StatusResponseCLI is one job status as printed by status
type StatusResponseCLI struct {
	JobID      string           `json:"jobId"`
	Status     report.JobStatus `json:"status"`
	ResultsURL string           `json:"resultsUrl,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func (r *StatusResponseCLI) formatHuman(t dashboard.Theme) string {
	var status string
	switch r.Status {
	case report.StatusCompleted:
		status = t.Success.Render(string(r.Status))
	case report.StatusFailed:
		status = t.Error.Render(string(r.Status))
	default:
		status = t.Warning.Render(string(r.Status))
	}
	lines := []string{
		t.Label.Render("Job") + t.Value.Render(r.JobID),
		t.Label.Render("Status") + status,
	}
	if r.ResultsURL != "" {
		lines = append(lines, t.Label.Render("Results")+r.ResultsURL)
	}
	if r.Error != "" {
		lines = append(lines, t.Label.Render("Error")+t.Error.Render(r.Error))
	}
	return joinLines(lines)
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	status, err := client.JobStatus(ctx, args[0])
	if err != nil {
		return err
	}
	return printResponse(cmd, convertStatusResponse(args[0], status))
}

func convertStatusResponse(jobID string, resp *report.StatusResponse) *StatusResponseCLI {
	out := &StatusResponseCLI{
		JobID:      jobID,
		Status:     resp.Status,
		ResultsURL: resp.ResultsURL,
		Error:      resp.Error,
	}
	if resp.JobID != "" {
		out.JobID = resp.JobID
	}
	return out
}

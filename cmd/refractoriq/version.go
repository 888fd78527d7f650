package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"refractoriq/internal/dashboard"
	"refractoriq/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResponse(cmd, &VersionResponseCLI{
			Version:   version.Version,
			Commit:    version.Commit,
			BuildDate: version.BuildDate,
			GoVersion: runtime.Version(),
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// VersionResponseCLI is the build information of this binary
type VersionResponseCLI struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

func (r *VersionResponseCLI) formatHuman(t dashboard.Theme) string {
	return version.Full() + "\nGo: " + r.GoVersion
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"refractoriq/internal/version"
)

var (
	// formatFlag is the --format value shared by every command
	formatFlag string
	verbosity  int
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "refractoriq",
	Short: "RefractorIQ - code analysis dashboard client",
	Long: `RefractorIQ submits repositories to a RefractorIQ analysis backend, follows
the analysis job until it finishes and renders the resulting code, dependency
and duplication metrics. It can also serve a local dashboard API with a live
websocket feed and keeps a history of finished runs.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseFormat(formatFlag); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate("RefractorIQ version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", string(FormatHuman),
		"Output format (json, human, yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logging")
}

// outputFormat returns the validated --format value.
func outputFormat() OutputFormat {
	f, err := parseFormat(formatFlag)
	if err != nil {
		return FormatHuman
	}
	return f
}

func parseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatJSON, FormatHuman, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q (want json, human or yaml)", s)
}

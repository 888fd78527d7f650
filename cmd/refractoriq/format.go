package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"refractoriq/internal/dashboard"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatYAML  OutputFormat = "yaml"
)

// humanFormatter is implemented by every CLI response with a text rendering.
type humanFormatter interface {
	formatHuman(t dashboard.Theme) string
}

// FormatResponse formats a response according to the specified format.
// Human output is styled with t.
func FormatResponse(resp interface{}, format OutputFormat, t dashboard.Theme) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		if h, ok := resp.(humanFormatter); ok {
			return strings.TrimRight(h.formatHuman(t), "\n"), nil
		}
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatYAML formats the response as YAML. The value goes through its JSON
// encoding first so field names and custom marshalers match the JSON output.
func formatYAML(resp interface{}) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to convert to YAML: %w", err)
	}
	blockStyle(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// blockStyle drops the flow and quoting styles inherited from the JSON source.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// printResponse writes resp to the command's output in the --format format.
func printResponse(cmd *cobra.Command, resp interface{}) error {
	return writeResponse(cmd.OutOrStdout(), resp, outputFormat())
}

func writeResponse(w io.Writer, resp interface{}, format OutputFormat) error {
	out, err := FormatResponse(resp, format, dashboard.NewTheme(w))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

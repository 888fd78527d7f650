package dashboard

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"refractoriq/internal/metrics"
)

// Theme holds the styles used by the views, bound to one output.
type Theme struct {
	Renderer *lipgloss.Renderer

	Title   lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
}

// NewTheme builds styles for w. Colour is dropped when w is not a terminal.
func NewTheme(w io.Writer) Theme {
	r := lipgloss.NewRenderer(w)
	return Theme{
		Renderer: r,
		Title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		Section:  r.NewStyle().Bold(true).Underline(true).MarginTop(1),
		Label:    r.NewStyle().Foreground(lipgloss.Color(metrics.Gray.Hex())).Width(26),
		Value:    r.NewStyle().Bold(true),
		Muted:    r.NewStyle().Foreground(lipgloss.Color(metrics.Gray.Hex())).Italic(true),
		Success:  r.NewStyle().Foreground(lipgloss.Color(metrics.Green.Hex())),
		Warning:  r.NewStyle().Foreground(lipgloss.Color(metrics.Yellow.Hex())),
		Error:    r.NewStyle().Bold(true).Foreground(lipgloss.Color(metrics.Red.Hex())),
		Panel:    r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// tier colours a value by its severity band.
func (t Theme) tier(tier metrics.Tier, s string) string {
	return t.Renderer.NewStyle().Bold(true).Foreground(lipgloss.Color(tier.Color().Hex())).Render(s)
}

// Swatch renders s in a folder colour.
func (t Theme) Swatch(hex, s string) string {
	return t.Renderer.NewStyle().Foreground(lipgloss.Color(hex)).Render(s)
}

func (t Theme) row(label, value string) string {
	return t.Label.Render(label) + " " + value
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/charmbracelet/lipgloss"
)

const chartWidth = 30

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	tierStyles = map[model.Tier]lipgloss.Style{
		model.TierHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#27ae60")),
		model.TierMedium: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2980b9")),
		model.TierLow:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e67e22")),
	}
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#c0392b"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func renderResult(w io.Writer, path string, resp model.PredictionResponse, top int) {
	tier := model.TierFor(resp.Confidence)
	fmt.Fprintf(w, "%s\n", labelStyle.Render(path))
	fmt.Fprintf(w, "  %s  confidence %.2f%%\n", tierStyles[tier].Render(resp.Class), resp.Confidence)

	if top > len(resp.Predictions) {
		top = len(resp.Predictions)
	}
	for _, p := range resp.Predictions[:max(top, 0)] {
		pct := float64(p.Confidence) * 100
		bar := strings.Repeat("█", int(pct/100*chartWidth+0.5))
		fmt.Fprintf(w, "  %-6s %-*s %5.1f%%\n", p.Label, chartWidth, bar, pct)
	}
	if resp.Illustration != "" {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render("example: "+resp.Illustration))
	}
}

func renderError(w io.Writer, path string, err error) {
	fmt.Fprintf(w, "%s\n  %s\n", labelStyle.Render(path), errorStyle.Render(statusText(err)))
}

package bindertest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/redpesk-common/bindertest/runner"
	"github.com/redpesk-common/bindertest/types"
)

// ResultFormatter is responsible for formatting and displaying suite results.
type ResultFormatter interface {
	FormatResults(result *runner.SuiteResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the suite results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.SuiteResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Binder Test Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Case", "Duration", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Case", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, c := range result.Cases {
		t.AppendRow(table.Row{
			c.Description,
			formatDuration(c.Duration),
			boolToInt(c.Status == types.TestStatusPass),
			boolToInt(c.Status == types.TestStatusFail || c.Status == types.TestStatusError),
			boolToInt(c.Status == types.TestStatusSkip),
			getResultString(c.Status),
			extractKeyDetail(c.Detail),
		})
	}

	// Update the table style setting based on result status
	if result.Status == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Status == types.TestStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(result.Duration),
		result.Stats.Passed,
		result.Stats.Failed + result.Stats.Errored,
		result.Stats.Skipped,
		getResultString(result.Status),
		"",
	})

	t.Render()
	return nil
}

// extractKeyDetail extracts the most pertinent part of a fault detail for
// display. Details are fully rendered diagnostics (message plus stack
// trace); the table shows the leading message line only.
func extractKeyDetail(detail string) string {
	if detail == "" {
		return ""
	}
	if idx := strings.Index(detail, "\n"); idx != -1 {
		detail = detail[:idx]
	}
	if len(detail) > 80 {
		return detail[:70] + "..."
	}
	return detail
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

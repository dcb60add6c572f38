package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	texerrors "github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/pipeline"
	"github.com/matzehuels/texpal/pkg/report"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for numeric values.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
	styleTableHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconSuccess.Render(iconSuccess)+" "+msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconError.Render(iconError)+" "+msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconInfo.Render(iconInfo)+" "+msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, "  "+StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Fprintln(stdout, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Fprintln(stdout, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// =============================================================================
// Build Summary
// =============================================================================

// printBuildResult summarizes a build: what was written, what failed and
// what the user should look at.
func printBuildResult(res *pipeline.Result, listFiles bool) {
	for _, w := range res.Warnings {
		printWarning("%s", w)
	}
	for _, inv := range res.Invalid {
		printWarning("directive line %d ignored: %s", inv.Line, inv.Err)
	}

	printSuccess("Palettized %d scene files in %s", res.Stats.Scenes, res.Duration.Round(time.Millisecond))
	printKeyValue("pages", fmt.Sprintf("%d written, %d total", len(res.Pages), res.Stats.Total.Pages))
	printKeyValue("copies", strconv.Itoa(len(res.Copies)))
	printKeyValue("scenes", fmt.Sprintf("%d rewritten", len(res.Scenes)))
	printKeyValue("usage", fmt.Sprintf("%.1f%%", 100*res.Stats.Total.Utilization()))
	if n := len(res.Removed); n > 0 {
		printKeyValue("removed", strconv.Itoa(n))
	}
	if listFiles {
		for _, p := range append(append(append([]string{}, res.Pages...), res.Copies...), res.Scenes...) {
			printFile(p)
		}
	}
	if len(res.Surprises) > 0 {
		printInfo("%d textures or scene files matched no directive rule", len(res.Surprises))
		printNextStep("See them with", appName+" report")
	}
	for _, f := range res.Failures {
		printError("%s: %s", f.Path, f.Err)
	}
}

// =============================================================================
// Tables
// =============================================================================

// statsTable renders per-group page utilization.
func statsTable(st palette.Stats) string {
	rows := make([][]string, 0, len(st.Groups)+1)
	row := func(g palette.GroupStats) []string {
		return []string{
			g.Name,
			strconv.Itoa(g.Pages),
			strconv.Itoa(g.Packed),
			strconv.Itoa(omittedCount(g.Omitted)),
			report.OmittedSummary(g.Omitted),
			fmt.Sprintf("%.1f%%", 100*g.Utilization()),
		}
	}
	for _, g := range st.Groups {
		rows = append(rows, row(g))
	}
	rows = append(rows, row(st.Total))

	last := len(rows) - 1
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Group", "Pages", "Packed", "Omitted", "Reasons", "Usage").
		Rows(rows...).
		StyleFunc(func(r, col int) lipgloss.Style {
			switch {
			case r == -1:
				return styleTableHeader
			case r == last:
				return lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
			case col == 0:
				return lipgloss.NewStyle().Foreground(colorCyan)
			}
			return lipgloss.NewStyle().Foreground(colorGray)
		})
	return t.Render()
}

func omittedCount(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// FormatError renders err for the terminal: an error icon and the message
// without its error code.
func FormatError(err error) string {
	return styleIconError.Render(iconError) + " " + texerrors.UserMessage(err)
}

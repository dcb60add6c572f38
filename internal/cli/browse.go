package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/pkg/report"
)

var listDimStyle = lipgloss.NewStyle().Foreground(colorDim)

// browseCommand opens an interactive view of the session.
func (c *CLI) browseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Explore palette groups, pages and placements interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.loadReport(cmd.Context(), "")
			if err != nil {
				return err
			}
			if len(r.Groups) == 0 {
				printInfo("The session has no palette groups yet")
				printNextStep("Palettize some scene files with", appName+" build")
				return nil
			}
			_, err = tea.NewProgram(newBrowseModel(r), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// =============================================================================
// browseModel - groups, then pages, then placements
// =============================================================================

// browseLevel is how deep the browser has drilled.
type browseLevel int

const (
	levelGroups browseLevel = iota
	levelPages
	levelPlacements
)

// browseModel is the bubbletea model behind the browse command.
type browseModel struct {
	report *report.Report
	level  browseLevel
	group  int
	page   int

	// cursor and offset per level, so going back restores the position.
	cursor [3]int
	offset [3]int
	height int
}

func newBrowseModel(r *report.Report) browseModel {
	return browseModel{report: r, height: 15}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

// rows returns the number of rows at the current level.
func (m browseModel) rows() int {
	switch m.level {
	case levelPages:
		return len(m.report.Groups[m.group].Pages)
	case levelPlacements:
		return len(m.report.Groups[m.group].Pages[m.page].Placements)
	}
	return len(m.report.Groups)
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		l := m.level
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc", "backspace", "left", "h":
			if m.level > levelGroups {
				m.level--
			}
		case "up", "k":
			if m.cursor[l] > 0 {
				m.cursor[l]--
				if m.cursor[l] < m.offset[l] {
					m.offset[l] = m.cursor[l]
				}
			}
		case "down", "j":
			if m.cursor[l] < m.rows()-1 {
				m.cursor[l]++
				if m.cursor[l] >= m.offset[l]+m.height {
					m.offset[l] = m.cursor[l] - m.height + 1
				}
			}
		case "enter", "right", "l":
			if m.rows() == 0 {
				return m, nil
			}
			switch m.level {
			case levelGroups:
				m.group = m.cursor[l]
				m.level = levelPages
				m.cursor[levelPages], m.offset[levelPages] = 0, 0
			case levelPages:
				m.page = m.cursor[l]
				m.level = levelPlacements
				m.cursor[levelPlacements], m.offset[levelPlacements] = 0, 0
			}
		}
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-8, 5)
	}
	return m, nil
}

func (m browseModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.title()))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ open  esc back  q quit"))
	b.WriteString("\n\n")

	headers, rows := m.table()
	l := m.level
	end := min(m.offset[l]+m.height, len(rows))
	visible := rows[m.offset[l]:end]

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		Rows(visible...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleTableHeader
			}
			if m.offset[l]+row == m.cursor[l] {
				return lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorCyan)
			}
			return lipgloss.NewStyle().Foreground(colorGray)
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	if len(rows) > 0 {
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.cursor[l]+1, len(rows))))
	}

	return b.String()
}

func (m browseModel) title() string {
	switch m.level {
	case levelPages:
		return "Pages of " + m.report.Groups[m.group].Name
	case levelPlacements:
		return "Placements on " + m.report.Groups[m.group].Pages[m.page].Filename
	}
	return "Palette Groups"
}

// table returns headers and all rows of the current level.
func (m browseModel) table() ([]string, [][]string) {
	switch m.level {
	case levelPages:
		g := m.report.Groups[m.group]
		rows := make([][]string, 0, len(g.Pages))
		for _, p := range g.Pages {
			rows = append(rows, []string{
				p.Filename,
				p.Class,
				fmt.Sprintf("%dx%d", p.W, p.H),
				strconv.Itoa(len(p.Placements)),
				fmt.Sprintf("%.1f%%", 100*p.Used),
			})
		}
		return []string{"Page", "Class", "Size", "Textures", "Used"}, rows

	case levelPlacements:
		p := m.report.Groups[m.group].Pages[m.page]
		rows := make([][]string, 0, len(p.Placements))
		for _, pl := range p.Placements {
			filled := "✓"
			if !pl.Filled {
				filled = ""
			}
			rows = append(rows, []string{
				pl.Texture,
				fmt.Sprintf("%d,%d", pl.X, pl.Y),
				fmt.Sprintf("%dx%d", pl.W, pl.H),
				strconv.Itoa(pl.Margin),
				pl.Wrap,
				filled,
			})
		}
		return []string{"Texture", "Pos", "Size", "Margin", "Wrap", "Filled"}, rows
	}

	rows := make([][]string, 0, len(m.report.Groups))
	for _, g := range m.report.Groups {
		shares := strings.Join(g.SharesWith, ", ")
		if shares == "" {
			shares = "-"
		}
		if g.Cycle {
			shares += " (cycle)"
		}
		rows = append(rows, []string{
			g.Name,
			strconv.Itoa(g.Level),
			strconv.Itoa(len(g.Pages)),
			strconv.Itoa(g.Dependents),
			shares,
		})
	}
	return []string{"Group", "Level", "Pages", "Dependents", "Shares with"}, rows
}

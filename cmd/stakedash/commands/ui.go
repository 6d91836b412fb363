package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/stakedash/stakedash/internal/dashboard"
)

// StatusBox renders a titled box with key-value fields.
//
//	StatusBox("Wallet", [][2]string{{"Address", "0xf39F...2266"}})
func StatusBox(title string, fields [][2]string) string {
	if !isTTY() {
		return statusBoxPlain(title, fields)
	}

	var sb strings.Builder
	sb.WriteString(StyleHeader.Render(title))
	sb.WriteString("\n")
	for _, f := range fields {
		sb.WriteString(StyleLabel.Render(f[0]) + StyleValue.Render(f[1]) + "\n")
	}
	return StyleBox.Render(strings.TrimRight(sb.String(), "\n"))
}

func statusBoxPlain(title string, fields [][2]string) string {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", len(title)) + "\n")
	for _, f := range fields {
		sb.WriteString(fmt.Sprintf("%-16s %s\n", f[0]+":", f[1]))
	}
	return sb.String()
}

// RenderCards lays dashboard cards out in a grid of cols columns.
func RenderCards(cards []dashboard.Card, cols int) string {
	if !isTTY() {
		return renderCardsPlain(cards)
	}
	if cols < 1 {
		cols = 1
	}

	var rows []string
	for i := 0; i < len(cards); i += cols {
		end := i + cols
		if end > len(cards) {
			end = len(cards)
		}
		var tiles []string
		for _, c := range cards[i:end] {
			tiles = append(tiles, renderCard(c))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCard(c dashboard.Card) string {
	value := StyleHeader.Render(c.Value)
	style := StyleCard
	if c.Loading {
		value = StyleDim.Render(c.Value)
	} else if c.Title == "Pending Rewards" {
		style = StyleCardAccent
	}
	body := StyleMuted.Render(c.Title) + "\n" + value
	if c.Subtitle != "" {
		body += "\n" + StyleDim.Render(c.Subtitle)
	}
	return style.Render(body)
}

func renderCardsPlain(cards []dashboard.Card) string {
	var sb strings.Builder
	for _, c := range cards {
		sb.WriteString(fmt.Sprintf("%-16s %s\n", c.Title+":", c.Value))
	}
	return sb.String()
}

// RenderTable renders a styled table with headers and rows.
func RenderTable(headers []string, rows [][]string) string {
	if !isTTY() {
		return renderTablePlain(headers, rows)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorDim)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleTableHeader
			}
			if row%2 == 0 {
				return StyleTableRow
			}
			return StyleTableRowAlt
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}

func renderTablePlain(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(fmt.Sprintf("%-*s  ", widths[i], h))
	}
	sb.WriteString("\n")
	for i, w := range widths {
		sb.WriteString(strings.Repeat("-", w))
		if i < len(widths)-1 {
			sb.WriteString("  ")
		}
	}
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				sb.WriteString(fmt.Sprintf("%-*s  ", widths[i], cell))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func Success(msg string) { say(StyleSuccess, "OK", msg) }
func Error(msg string) { say(StyleError, "ERROR", msg) }
func Warning(msg string) { say(StyleWarning, "WARN", msg) }
func Info(msg string) { say(StyleInfo, "INFO", msg) }

// say prints one status line, tagged instead of colored off a terminal.
func say(style lipgloss.Style, tag, msg string) {
	if isTTY() {
		fmt.Println(style.Render("  " + msg))
		return
	}
	fmt.Printf("[%s] %s\n", tag, msg)
}

// WithSpinner runs fn while showing a spinner with the given message.
// Off a terminal the message goes to stderr so piped output stays parseable.
func WithSpinner(msg string, fn func() error) error {
	if !isTTY() {
		fmt.Fprintf(os.Stderr, "%s...\n", msg)
		return fn()
	}

	var fnErr error
	err := spinner.New().
		Title(msg).
		Action(func() {
			fnErr = fn()
		}).
		Run()
	if err != nil {
		return err
	}
	return fnErr
}

// SectionHeader renders a section header with a divider.
func SectionHeader(title string) string {
	if !isTTY() {
		return "\n" + title + "\n" + strings.Repeat("-", len(title))
	}
	return "\n" + StyleSubheader.Render(title)
}

// KeyValue renders a single key-value line with consistent alignment.
func KeyValue(key, value string) string {
	if !isTTY() {
		return fmt.Sprintf("  %-16s %s", key+":", value)
	}
	return "  " + StyleLabel.Render(key) + StyleValue.Render(value)
}

// Hint renders a dim hint.
func Hint(msg string) string {
	if !isTTY() {
		return "  " + msg
	}
	return "  " + StyleDim.Render(msg)
}

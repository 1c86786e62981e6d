// Package output renders CLI listings as aligned terminal tables.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yourorg/stigkeeper/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	keyStyle    = lipgloss.NewStyle().Bold(true)

	statusColors = map[model.Status]lipgloss.Color{
		model.StatusOpen:          lipgloss.Color("9"),
		model.StatusNotAFinding:   lipgloss.Color("10"),
		model.StatusNotApplicable: lipgloss.Color("8"),
		model.StatusNotReviewed:   lipgloss.Color("11"),
	}
	jobColors = map[model.JobStatus]lipgloss.Color{
		model.JobDone:    lipgloss.Color("10"),
		model.JobFailed:  lipgloss.Color("9"),
		model.JobRunning: lipgloss.Color("12"),
	}
)

// Table is a set of rows printed with each column padded to its widest
// cell. Cells wider than MaxCell are truncated.
type Table struct {
	Headers []string
	Rows    [][]string
	MaxCell int
}

func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.Headers))
	measure := func(cells []string) {
		for i, c := range cells {
			if i >= len(widths) {
				break
			}
			widths[i] = max(widths[i], lipgloss.Width(t.clip(c)))
		}
	}
	measure(t.Headers)
	for _, r := range t.Rows {
		measure(r)
	}
	return widths
}

func (t *Table) clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if t.MaxCell > 1 && lipgloss.Width(s) > t.MaxCell {
		return truncate(s, t.MaxCell-1) + "…"
	}
	return s
}

// Render writes the table. An empty table prints a faint "(none)".
func (t *Table) Render(w io.Writer) error {
	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(w, faintStyle.Render("(none)"))
		return err
	}
	widths := t.widths()
	line := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			var c string
			if i < len(cells) {
				c = t.clip(cells[i])
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			if style != nil {
				c = style.Render(c)
			}
			parts[i] = c + pad
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	if _, err := fmt.Fprintln(w, line(t.Headers, &headerStyle)); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if _, err := fmt.Fprintln(w, line(r, nil)); err != nil {
			return err
		}
	}
	return nil
}

// truncate shortens text to at most width visible characters.
func truncate(text string, width int) string {
	runes := []rune(text)
	for n := len(runes); n >= 0; n-- {
		candidate := string(runes[:n])
		if lipgloss.Width(candidate) <= width {
			return candidate
		}
	}
	return ""
}

// Fields writes "key: value" lines with the keys aligned.
func Fields(w io.Writer, pairs [][2]string) error {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	for _, p := range pairs {
		key := p[0] + ":" + strings.Repeat(" ", width-lipgloss.Width(p[0]))
		if _, err := fmt.Fprintf(w, "%s %s\n", keyStyle.Render(key), p[1]); err != nil {
			return err
		}
	}
	return nil
}

// Status colors a checklist status the way the STIG viewer does.
func Status(s model.Status) string {
	return lipgloss.NewStyle().Foreground(statusColors[s]).Render(s.String())
}

func JobStatus(s model.JobStatus) string {
	c, ok := jobColors[s]
	if !ok {
		return string(s)
	}
	return lipgloss.NewStyle().Foreground(c).Render(string(s))
}

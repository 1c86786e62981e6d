package report

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/yourorg/stigkeeper/internal/model"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.DefinitionList))
	})
	return markdown
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`,
	`<`, `\<`, `>`, `\>`, `#`, `\#`, `|`, `\|`,
)

// escapeMD makes free text from STIGs and reviewers inert in Markdown.
func escapeMD(s string) string {
	return mdEscaper.Replace(strings.TrimSpace(s))
}

// indent turns multi-line text into a block nested under a list item.
func indent(s string) string {
	return strings.ReplaceAll(escapeMD(s), "\n", "\n    ")
}

// Narrative writes a Markdown findings document: Open checks grouped by
// control family, control and CCI.
func Narrative(w io.Writer, rows []model.FindingRow, now time.Time) error {
	open := slices.DeleteFunc(slices.Clone(rows), func(r model.FindingRow) bool {
		return r.Check.Status != model.StatusOpen
	})
	slices.SortStableFunc(open, func(a, b model.FindingRow) int {
		return cmp.Or(
			cmp.Compare(a.Control.Family, b.Control.Family),
			cmp.Compare(a.Control.Number, b.Control.Number),
			cmp.Compare(a.Control.Enhancement, b.Control.Enhancement),
			cmp.Compare(a.CCI.Number, b.CCI.Number),
			cmp.Compare(a.Asset.HostName, b.Asset.HostName),
			cmp.Compare(a.Rule.VulnNum, b.Rule.VulnNum),
		)
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Findings Narrative\n\nGenerated %s. %d open findings.\n", now.Format(DateLayout), len(open))
	if len(open) == 0 {
		buf.WriteString("\nNo open findings.\n")
	}
	var family string
	var control, cci int64 = -1, -1
	for _, r := range open {
		if r.Control.Family != family {
			family = r.Control.Family
			fmt.Fprintf(&buf, "\n## %s\n", escapeMD(family))
		}
		if r.Control.ID != control {
			control, cci = r.Control.ID, -1
			fmt.Fprintf(&buf, "\n### %s %s\n", r.Control, escapeMD(r.Control.Title))
			if d := escapeMD(r.Control.Description); d != "" {
				fmt.Fprintf(&buf, "\n%s\n", d)
			}
		}
		if r.CCI.ID != cci {
			cci = r.CCI.ID
			fmt.Fprintf(&buf, "\n%s\n: %s\n\n", r.CCI, escapeMD(r.CCI.Definition))
		}
		sev := r.Severity()
		fmt.Fprintf(&buf, "- **%s** %s %s (%s): %s\n",
			escapeMD(r.Asset.HostName), escapeMD(r.Rule.VulnNum), escapeMD(r.Rule.Rule), sev.Category(), escapeMD(r.Rule.Title))
		if r.Check.FindingDetails != "" {
			fmt.Fprintf(&buf, "\n    %s\n\n", indent(r.Check.FindingDetails))
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// RenderHTML converts a Markdown document into a standalone HTML page.
func RenderHTML(w io.Writer, title string, md []byte) error {
	var body bytes.Buffer
	if err := markdownRenderer().Convert(md, &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title), body.Bytes())
	return err
}

package report

import (
	"fmt"
	"io"
	"regexp"

	"github.com/yourorg/stigkeeper/internal/model"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// STIGPageName is the file name of a STIG's HTML page.
func STIGPageName(st model.STIG) string {
	return unsafeFileChars.ReplaceAllString(fmt.Sprintf("%s_V%d", st.Title, st.Version), "_") + ".html"
}

// STIGMarkdown writes one STIG and all of its rules as Markdown.
func STIGMarkdown(w io.Writer, st model.STIG, checks []model.STIGCheck, ccis map[int64]model.CCI) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	printf("# %s\n\nVersion %d, %s\n", escapeMD(st.Title), st.Version, escapeMD(st.Release))
	if st.Description != "" {
		printf("\n%s\n", escapeMD(st.Description))
	}
	printf("\n| Vuln | Rule | Severity | Title |\n|---|---|---|---|\n")
	for _, c := range checks {
		printf("| %s | %s | %s | %s |\n", escapeMD(c.VulnNum), escapeMD(c.Rule), c.Severity.Category(), escapeMD(c.Title))
	}
	for _, c := range checks {
		printf("\n## %s: %s\n\n", escapeMD(c.VulnNum), escapeMD(c.Title))
		printf("Rule\n: %s\n\nRule version\n: %s\n\nSeverity\n: %s (%s)\n\n",
			escapeMD(c.Rule), escapeMD(c.RuleVersion), c.Severity, c.Severity.Category())
		if cci, ok := ccis[c.CCIID]; ok {
			printf("CCI\n: %s %s\n\n", cci, escapeMD(cci.Definition))
		}
		section := func(name, body string) {
			if body != "" {
				printf("### %s\n\n%s\n\n", name, escapeMD(body))
			}
		}
		section("Discussion", c.VulnDiscussion)
		section("Check", c.Check)
		section("Fix", c.Fix)
		section("False positives", c.FalsePositives)
		section("False negatives", c.FalseNegatives)
		section("Mitigations", c.Mitigations)
		section("Potential impact", c.PotentialImpact)
		section("Responsibility", c.Responsibility)
	}
	return err
}

// IndexMarkdown lists STIG pages as links.
func IndexMarkdown(w io.Writer, stigs []model.STIG) error {
	if _, err := io.WriteString(w, "# STIGs\n\n"); err != nil {
		return err
	}
	for _, st := range stigs {
		if _, err := fmt.Fprintf(w, "- [%s](%s)\n", escapeMD(st.String()), STIGPageName(st)); err != nil {
			return err
		}
	}
	return nil
}

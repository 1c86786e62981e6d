package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/stigkeeper/internal/model"
)

const (
	FindingsSheet = "Findings"
	SummarySheet  = "Summary"
)

var findingHeaders = []any{
	"Asset", "STIG", "Vuln ID", "Rule ID", "Rule Version", "Title", "Severity", "Category",
	"CCI", "Control", "Status", "Finding Details", "Comments", "Severity Justification",
}

var summaryHeaders = []any{
	"Asset", "Checks", "Open", "Not a Finding", "Not Applicable", "Not Reviewed",
	"CAT I", "CAT II", "CAT III",
}

// Summarize counts every row per asset, in the order assets first appear.
func Summarize(rows []model.FindingRow) ([]string, map[string]*model.Summary) {
	var hosts []string
	sums := map[string]*model.Summary{}
	for _, r := range rows {
		s, ok := sums[r.Asset.HostName]
		if !ok {
			s = &model.Summary{}
			sums[r.Asset.HostName] = s
			hosts = append(hosts, r.Asset.HostName)
		}
		s.Add(r.Check.Status, r.Severity())
	}
	return hosts, sums
}

// WriteFindings writes a workbook with one row per Open check and a
// per-asset summary sheet computed over all rows.
func WriteFindings(w io.Writer, rows []model.FindingRow) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", FindingsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(FindingsSheet, "A1", &findingHeaders); err != nil {
		return err
	}
	line := 2
	for _, r := range rows {
		if r.Check.Status != model.StatusOpen {
			continue
		}
		sev := r.Severity()
		values := []any{
			r.Asset.HostName,
			r.STIG.String(),
			r.Rule.VulnNum,
			r.Rule.Rule,
			r.Rule.RuleVersion,
			excelify(r.Rule.Title),
			sev.String(),
			sev.Category(),
			r.CCI.String(),
			r.Control.String(),
			r.Check.Status.String(),
			excelify(r.Check.FindingDetails),
			excelify(r.Check.Comments),
			excelify(r.Check.SeverityJustification),
		}
		if err := f.SetSheetRow(FindingsSheet, fmt.Sprintf("A%d", line), &values); err != nil {
			return err
		}
		line++
	}
	if err := f.SetRowStyle(FindingsSheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.AutoFilter(FindingsSheet, fmt.Sprintf("A1:N%d", max(line-1, 1)), nil); err != nil {
		return err
	}

	if err := f.SetSheetRow(SummarySheet, "A1", &summaryHeaders); err != nil {
		return err
	}
	hosts, sums := Summarize(rows)
	for i, h := range hosts {
		s := sums[h]
		values := []any{h, s.Total, s.Open, s.NotAFinding, s.NotApplicable, s.NotReviewed, s.High, s.Medium, s.Low}
		if err := f.SetSheetRow(SummarySheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, bold); err != nil {
		return err
	}
	return f.Write(w)
}

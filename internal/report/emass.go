// Package report builds the eMASS test result workbook, the findings
// workbook and the narrative and HTML documents.
package report

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
)

const (
	TestResultSheet = "Test Result Import"
	// DateLayout is the eMASS date format (17-Jun-2020).
	DateLayout = "02-Jan-2006"

	// First data row of a test result workbook (1-based).
	firstDataRow = 7
)

var testResultHeaders = []string{
	"Control Number", "Control Information", "AP Acronym", "CCI", "CCI Definition",
	"Implementation Guidance", "Assessment Procedures",
	"Compliance Status", "Date Tested", "Tested By", "Test Results",
	"Compliance Status", "Date Tested", "Tested By", "Test Results",
}

const (
	NonCompliant = "Non-Compliant"
	Compliant    = "Compliant"
)

// TestResult is one CCI row of the eMASS test result workbook.
type TestResult struct {
	Control     model.Control
	CCI         model.CCI
	Compliance  string
	DateTested  string
	TestedBy    string
	TestResults string
}

// BuildTestResults groups checklist entries by CCI. A CCI with any Open
// entry is Non-Compliant; one with only NotAFinding entries is Compliant.
// Previously imported CCIs without entries are listed with empty results so
// their latest test result carries over. Non-compliant rows come first,
// then compliant, then carried-over, each ordered by control and CCI.
func BuildTestResults(rows []model.FindingRow, imported []db.CCIWithControl, testedBy string, now time.Time) []TestResult {
	type group struct {
		row  model.FindingRow
		open []model.FindingRow
		pass []model.FindingRow
	}
	groups := map[int64]*group{}
	for _, r := range rows {
		g, ok := groups[r.CCI.ID]
		if !ok {
			g = &group{row: r}
			groups[r.CCI.ID] = g
		}
		switch r.Check.Status {
		case model.StatusOpen:
			g.open = append(g.open, r)
		case model.StatusNotAFinding:
			g.pass = append(g.pass, r)
		}
	}

	date := now.Format(DateLayout)
	var failed, passed, carried []TestResult
	for _, g := range groups {
		tr := TestResult{Control: g.row.Control, CCI: g.row.CCI, DateTested: date, TestedBy: testedBy}
		switch {
		case len(g.open) > 0:
			tr.Compliance = NonCompliant
			tr.TestResults = openResults(g.open)
			failed = append(failed, tr)
		case len(g.pass) > 0:
			tr.Compliance = Compliant
			tr.TestResults = passedResults(g.pass)
			passed = append(passed, tr)
		}
	}
	for _, r := range imported {
		if !r.CCI.IsImport {
			continue
		}
		if g, ok := groups[r.CCI.ID]; ok && (len(g.open) > 0 || len(g.pass) > 0) {
			continue
		}
		carried = append(carried, TestResult{Control: r.Control, CCI: r.CCI})
	}
	for _, part := range [][]TestResult{failed, passed, carried} {
		slices.SortFunc(part, compareResults)
	}
	return slices.Concat(failed, passed, carried)
}

func compareResults(a, b TestResult) int {
	return cmp.Or(
		cmp.Compare(a.Control.Family, b.Control.Family),
		cmp.Compare(a.Control.Number, b.Control.Number),
		cmp.Compare(a.Control.Enhancement, b.Control.Enhancement),
		cmp.Compare(a.CCI.Number, b.CCI.Number),
	)
}

func sortChecks(rows []model.FindingRow) {
	slices.SortFunc(rows, func(a, b model.FindingRow) int {
		return cmp.Or(
			cmp.Compare(a.Asset.HostName, b.Asset.HostName),
			cmp.Compare(a.Rule.VulnNum, b.Rule.VulnNum),
			cmp.Compare(a.Rule.Rule, b.Rule.Rule),
		)
	})
}

func openResults(rows []model.FindingRow) string {
	sortChecks(rows)
	var sb strings.Builder
	sb.WriteString("The following checks are open:")
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n%s: %s - %s", r.Asset.HostName, r.Rule, r.Severity())
		if r.Check.FindingDetails != "" {
			sb.WriteString(" - " + r.Check.FindingDetails)
		}
	}
	return sb.String()
}

func passedResults(rows []model.FindingRow) string {
	sortChecks(rows)
	var sb strings.Builder
	sb.WriteString("The following checks were compliant:")
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n%s: %s", r.Asset.HostName, r.Rule)
	}
	return sb.String()
}

// excelify keeps a cell within the spreadsheet limit of 32767 characters.
func excelify(s string) string {
	const limit = 32767
	if len(s) <= limit {
		return s
	}
	cut := limit - len("...")
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// WriteTestResults writes the eMASS Test Result Import workbook to w.
func WriteTestResults(w io.Writer, results []TestResult, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", TestResultSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	wrapped, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}

	banner := []struct {
		from, to, text string
	}{
		{"A1", "O1", "UNCLASSIFIED"},
		{"A2", "O2", "Exported on " + now.Format(DateLayout)},
		{"A3", "N3", "Test Result Import Template"},
		{"A4", "O4", "(System Type: UNKNOWN, DoD Component: Public)"},
		{"A5", "G5", "Control / AP Information"},
		{"H5", "K5", "Enter Test Results Here"},
		{"L5", "O5", "Latest Test Result"},
	}
	for _, b := range banner {
		if err := f.MergeCell(TestResultSheet, b.from, b.to); err != nil {
			return err
		}
		if err := f.SetCellStr(TestResultSheet, b.from, b.text); err != nil {
			return err
		}
	}
	if err := f.SetCellStr(TestResultSheet, "O3", "Provided by stigkeeper"); err != nil {
		return err
	}
	header := make([]any, len(testResultHeaders))
	for i, h := range testResultHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(TestResultSheet, "A6", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(TestResultSheet, "A5", "O6", bold); err != nil {
		return err
	}

	for i, r := range results {
		row := firstDataRow + i
		values := []any{
			r.Control.String(),
			excelify(r.Control.Description),
			"",
			fmt.Sprintf("%06d", r.CCI.Number),
			excelify(r.CCI.Definition),
			"",
			"",
			r.Compliance,
			r.DateTested,
			r.TestedBy,
			excelify(r.TestResults),
		}
		if r.CCI.IsImport {
			values = append(values, r.CCI.ImportCompliance, r.CCI.ImportDateTested, r.CCI.ImportTestedBy, excelify(r.CCI.ImportTestResults))
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(TestResultSheet, cell, &values); err != nil {
			return err
		}
	}
	if len(results) > 0 {
		last := fmt.Sprintf("O%d", firstDataRow+len(results)-1)
		if err := f.SetCellStyle(TestResultSheet, fmt.Sprintf("A%d", firstDataRow), last, wrapped); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// ReadTestResults reads the latest test result for each CCI of an eMASS
// Test Result Import workbook. The "Latest Test Result" columns (L-O) win;
// rows where they are empty fall back to the entry columns (H-K).
func ReadTestResults(r io.Reader) ([]db.EMASSResult, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := TestResultSheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", sheet, err)
	}

	var out []db.EMASSResult
	var skipped []string
	for i := firstDataRow - 1; i < len(rows); i++ {
		row := rows[i]
		cciText := cell(row, 3)
		if cciText == "" {
			continue
		}
		n, err := model.ParseCCI(cciText)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		res := db.EMASSResult{
			CCINumber:   n,
			Compliance:  cell(row, 11),
			DateTested:  cell(row, 12),
			TestedBy:    cell(row, 13),
			TestResults: cell(row, 14),
		}
		if res.Compliance == "" {
			res.Compliance = cell(row, 7)
			res.DateTested = cell(row, 8)
			res.TestedBy = cell(row, 9)
			res.TestResults = cell(row, 10)
		}
		res.DateTested = normalizeDate(res.DateTested)
		out = append(out, res)
	}
	return out, skipped, nil
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// normalizeDate rewrites spreadsheet date serials and ISO dates in the
// eMASS layout; anything else is kept as written.
func normalizeDate(s string) string {
	if s == "" {
		return s
	}
	if _, err := time.Parse(DateLayout, s); err == nil {
		return s
	}
	for _, layout := range []string{"2006-01-02", "01-02-06", "1/2/2006", "1/2/06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(DateLayout)
		}
	}
	return s
}

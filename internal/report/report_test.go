package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
)

var (
	ac2  = model.Control{ID: 1, Family: "AC", Number: 2, Title: "Account Management", Description: "Manage accounts."}
	ac7  = model.Control{ID: 2, Family: "AC", Number: 7, Title: "Unsuccessful Logon Attempts"}
	cm6  = model.Control{ID: 3, Family: "CM", Number: 6, Title: "Configuration Settings"}
	cci1 = model.CCI{ID: 10, ControlID: 2, Number: 44, Definition: "Lock after attempts."}
	cci2 = model.CCI{ID: 11, ControlID: 3, Number: 366, Definition: "Implement settings.", IsImport: true,
		ImportCompliance: "Compliant", ImportDateTested: "01-Jan-2020", ImportTestedBy: "auditor", ImportTestResults: "ok"}
	cci3 = model.CCI{ID: 12, ControlID: 1, Number: 15, Definition: "Automate account management."}
	cci4 = model.CCI{ID: 13, ControlID: 1, Number: 1, Definition: "Define account types.", IsImport: true,
		ImportCompliance: "Non-Compliant", ImportDateTested: "02-Feb-2020", ImportTestedBy: "auditor", ImportTestResults: "old"}
)

func row(host string, control model.Control, cci model.CCI, vuln string, status model.Status, sev model.Severity) model.FindingRow {
	return model.FindingRow{
		Check:   model.CKLCheck{Status: status, FindingDetails: "details for " + vuln},
		Rule:    model.STIGCheck{Rule: "SV-" + vuln + "r1_rule", VulnNum: vuln, Severity: sev, Title: "Rule " + vuln},
		CCI:     cci,
		Control: control,
		Asset:   model.Asset{HostName: host},
		STIG:    model.STIG{Title: "Sample STIG", Version: 1, Release: "Release: 1"},
	}
}

func sampleFindings() []model.FindingRow {
	return []model.FindingRow{
		row("web01", ac7, cci1, "V-2", model.StatusNotAFinding, model.SeverityMedium),
		row("web01", cm6, cci2, "V-3", model.StatusNotAFinding, model.SeverityLow),
		row("db01", ac7, cci1, "V-1", model.StatusOpen, model.SeverityHigh),
		row("db01", ac2, cci3, "V-4", model.StatusNotReviewed, model.SeverityMedium),
	}
}

var testDate = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func TestBuildTestResults(t *testing.T) {
	imported := []db.CCIWithControl{{CCI: cci2, Control: cm6}, {CCI: cci4, Control: ac2}}
	got := BuildTestResults(sampleFindings(), imported, "tester", testDate)

	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3: %+v", len(got), got)
	}
	want := []struct {
		cci        int
		compliance string
	}{
		{44, NonCompliant},
		{366, Compliant},
		{1, ""},
	}
	for i, w := range want {
		if got[i].CCI.Number != w.cci || got[i].Compliance != w.compliance {
			t.Errorf("row %d = %s %q, want CCI %d %q", i, got[i].CCI, got[i].Compliance, w.cci, w.compliance)
		}
	}
	if got[0].DateTested != "04-Mar-2026" || got[0].TestedBy != "tester" {
		t.Errorf("date/tester = %q %q", got[0].DateTested, got[0].TestedBy)
	}
	if !strings.HasPrefix(got[0].TestResults, "The following checks are open:") ||
		!strings.Contains(got[0].TestResults, "db01: SV-V-1r1_rule (V-1) - high - details for V-1") {
		t.Errorf("open results = %q", got[0].TestResults)
	}
	if strings.Contains(got[0].TestResults, "V-2") {
		t.Errorf("passing check listed among open results: %q", got[0].TestResults)
	}
}

func TestTestResultsRoundTrip(t *testing.T) {
	results := BuildTestResults(sampleFindings(), []db.CCIWithControl{{CCI: cci4, Control: ac2}}, "tester", testDate)
	var buf bytes.Buffer
	if err := WriteTestResults(&buf, results, testDate); err != nil {
		t.Fatalf("WriteTestResults: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	header, _ := f.GetCellValue(TestResultSheet, "A6")
	ctrl, _ := f.GetCellValue(TestResultSheet, "A7")
	cci, _ := f.GetCellValue(TestResultSheet, "D7")
	f.Close()
	if header != "Control Number" || ctrl != "AC-7" || cci != "000044" {
		t.Errorf("layout: A6=%q A7=%q D7=%q", header, ctrl, cci)
	}

	read, skipped, err := ReadTestResults(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadTestResults: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %v", skipped)
	}
	if len(read) != 3 {
		t.Fatalf("read %d results, want 3", len(read))
	}
	if read[0].CCINumber != 44 || read[0].Compliance != NonCompliant || read[0].DateTested != "04-Mar-2026" || read[0].TestedBy != "tester" {
		t.Errorf("first result = %+v", read[0])
	}
	// The carried-over CCI keeps its imported latest result.
	if read[2].CCINumber != 1 || read[2].Compliance != "Non-Compliant" || read[2].TestResults != "old" {
		t.Errorf("carried result = %+v", read[2])
	}
}

func TestReadTestResultsNormalizesDates(t *testing.T) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", TestResultSheet)
	f.SetSheetRow(TestResultSheet, "A7", &[]any{"AC-2", "", "", "000015", "", "", "", "Compliant", "2021-05-06", "me", "fine"})
	f.SetSheetRow(TestResultSheet, "A8", &[]any{"AC-2", "", "", "bogus"})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	f.Close()

	read, skipped, err := ReadTestResults(&buf)
	if err != nil {
		t.Fatalf("ReadTestResults: %v", err)
	}
	if len(read) != 1 || read[0].DateTested != "06-May-2021" || read[0].Compliance != "Compliant" {
		t.Errorf("read = %+v", read)
	}
	if len(skipped) != 1 {
		t.Errorf("skipped = %v", skipped)
	}
}

func TestWriteFindings(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFindings(&buf, sampleFindings()); err != nil {
		t.Fatalf("WriteFindings: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(FindingsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "db01" || rows[1][7] != "CAT I" {
		t.Errorf("findings rows = %v", rows)
	}
	summary, err := f.GetRows(SummarySheet)
	if err != nil {
		t.Fatal(err)
	}
	// web01 appears first in the input.
	if len(summary) != 3 || summary[1][0] != "web01" || summary[1][1] != "2" || summary[2][2] != "1" {
		t.Errorf("summary rows = %v", summary)
	}
}

func TestNarrativeGroupsOpenFindings(t *testing.T) {
	rows := sampleFindings()
	rows = append(rows, row("app01", ac7, cci1, "V-9", model.StatusOpen, model.SeverityLow))
	rows[2].Check.FindingDetails = "<script>alert(1)</script>"

	var md bytes.Buffer
	if err := Narrative(&md, rows, testDate); err != nil {
		t.Fatalf("Narrative: %v", err)
	}
	text := md.String()
	if !strings.Contains(text, "2 open findings") || !strings.Contains(text, "## AC") || !strings.Contains(text, "### AC-7") {
		t.Errorf("narrative:\n%s", text)
	}
	if strings.Contains(text, "CM-6") || strings.Contains(text, "AC-2 ") {
		t.Errorf("narrative lists controls without open findings:\n%s", text)
	}
	if strings.Index(text, "app01") > strings.Index(text, "db01") {
		t.Errorf("findings not ordered by host:\n%s", text)
	}

	var page bytes.Buffer
	if err := RenderHTML(&page, "Findings & more", md.Bytes()); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	out := page.String()
	if !strings.Contains(out, "<title>Findings &amp; more</title>") || !strings.Contains(out, "<h2>AC</h2>") {
		t.Errorf("html:\n%s", out)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("finding details rendered as markup:\n%s", out)
	}
}

func TestSTIGMarkdown(t *testing.T) {
	st := model.STIG{Title: "Sample STIG", Version: 2, Release: "Release: 3"}
	checks := []model.STIGCheck{
		{CCIID: 10, Rule: "SV-1r1_rule", VulnNum: "V-1", Severity: model.SeverityHigh, Title: "Use | pipes", Fix: "Do it."},
	}
	var md bytes.Buffer
	if err := STIGMarkdown(&md, st, checks, map[int64]model.CCI{10: cci1}); err != nil {
		t.Fatal(err)
	}
	var page bytes.Buffer
	if err := RenderHTML(&page, st.Title, md.Bytes()); err != nil {
		t.Fatal(err)
	}
	out := page.String()
	for _, want := range []string{"<table>", "Use | pipes", "CCI-000044", "<h3>Fix</h3>"} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q:\n%s", want, out)
		}
	}
	if got := STIGPageName(st); got != "Sample_STIG_V2.html" {
		t.Errorf("STIGPageName = %q", got)
	}
}

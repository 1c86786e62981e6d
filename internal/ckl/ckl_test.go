package ckl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/yourorg/stigkeeper/internal/model"
)

func sampleRows() []Row {
	return []Row{
		{
			Rule:  model.STIGCheck{Rule: "SV-1r1_rule", VulnNum: "V-1", Severity: model.SeverityHigh, Title: "Lock accounts", Weight: 10},
			Check: model.CKLCheck{Status: model.StatusOpen, FindingDetails: "threshold is 10 <not 3> & unsafe", Comments: "ticket 42"},
			CCI:   44,
		},
		{
			Rule:  model.STIGCheck{Rule: "SV-2r1_rule", VulnNum: "V-2", Severity: model.SeverityLow},
			Check: model.CKLCheck{Status: model.StatusNotApplicable, SeverityOverride: model.SeverityMedium, SeverityJustification: "exposed"},
			CCI:   366,
		},
		{
			Rule:  model.STIGCheck{Rule: "SV-3r1_rule", VulnNum: "V-3", Severity: model.SeverityMedium},
			Check: model.CKLCheck{Status: model.StatusNotReviewed},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	asset := model.Asset{HostName: "web01", HostIP: "10.0.0.5", WebOrDatabase: true, WebDBSite: "shop"}
	st := model.STIG{Title: "Sample STIG", Version: 2, Release: "Release: 23 Benchmark Date: 17 Jun 2020", BenchmarkID: "Sample_STIG"}

	var buf bytes.Buffer
	if err := Write(&buf, New(asset, st, sampleRows())); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "<?xml") || !strings.Contains(buf.String(), "<!--DISA STIG Viewer") {
		t.Errorf("missing header:\n%s", buf.String()[:80])
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	a := got.Asset.ToAsset()
	if a.HostName != "web01" || a.HostIP != "10.0.0.5" || !a.WebOrDatabase || a.WebDBSite != "shop" || a.AssetType != "Computing" {
		t.Errorf("asset = %+v", a)
	}
	if len(got.STIGs) != 1 {
		t.Fatalf("got %d iSTIGs", len(got.STIGs))
	}
	if gotSTIG := got.STIGs[0].STIG(); gotSTIG.Title != st.Title || gotSTIG.Version != 2 || gotSTIG.Release != st.Release || gotSTIG.BenchmarkID != st.BenchmarkID {
		t.Errorf("stig = %+v", gotSTIG)
	}

	vulns := got.STIGs[0].Vulns
	if len(vulns) != 3 {
		t.Fatalf("got %d vulns", len(vulns))
	}
	for i, want := range sampleRows() {
		v := vulns[i]
		if v.Attr("Rule_ID") != want.Rule.Rule || v.Attr("Vuln_Num") != want.Rule.VulnNum {
			t.Errorf("vuln %d identity = %q %q", i, v.Attr("Rule_ID"), v.Attr("Vuln_Num"))
		}
		var c model.CKLCheck
		v.Apply(&c)
		if c != want.Check {
			t.Errorf("vuln %d state = %+v, want %+v", i, c, want.Check)
		}
	}
	if vulns[0].Attr("CCI_REF") != "CCI-000044" || vulns[2].Attr("CCI_REF") != "" {
		t.Errorf("CCI_REF = %q / %q", vulns[0].Attr("CCI_REF"), vulns[2].Attr("CCI_REF"))
	}
}

func TestReadRejectsMissingHost(t *testing.T) {
	_, err := Read(strings.NewReader(`<CHECKLIST><ASSET><HOST_NAME> </HOST_NAME></ASSET><STIGS/></CHECKLIST>`))
	if err == nil {
		t.Fatal("Read succeeded without a host name")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		host string
		st   model.STIG
		want string
	}{
		{"web01", model.STIG{BenchmarkID: "MS_Windows_10_STIG"}, "web01_MS_Windows_10_STIG.ckl"},
		{"db 02", model.STIG{Title: "Oracle/DB STIG"}, "db_02_Oracle_DB_STIG.ckl"},
	}
	for _, tt := range tests {
		if got := FileName(tt.host, tt.st); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

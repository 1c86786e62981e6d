package xccdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/yourorg/stigkeeper/internal/model"
)

const sampleBenchmark = `<?xml version="1.0" encoding="utf-8"?>
<Benchmark xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns="http://checklists.nist.gov/xccdf/1.1" id="Sample_OS_STIG" xml:lang="en">
  <status date="2020-06-17">accepted</status>
  <title>Sample OS Security Technical Implementation Guide</title>
  <description>This guide covers the sample OS.</description>
  <notice id="terms-of-use" xml:lang="en"></notice>
  <reference href="https://cyber.mil"><dc:publisher>DISA</dc:publisher></reference>
  <plain-text id="release-info">Release: 23 Benchmark Date: 17 Jun 2020</plain-text>
  <version>2</version>
  <Profile id="MAC-1_Classified">
    <title>I - Mission Critical Classified</title>
    <select idref="V-1001" selected="true" />
  </Profile>
  <Group id="V-1001">
    <title>SRG-OS-000001</title>
    <description>&lt;GroupDescription&gt;&lt;/GroupDescription&gt;</description>
    <Rule id="SV-1001r1_rule" severity="high" weight="10.0">
      <version>SOS-00-000001</version>
      <title>Accounts must be locked after three failed attempts.</title>
      <description>&lt;VulnDiscussion&gt;Brute force &amp;amp; guessing.&lt;/VulnDiscussion&gt;&lt;FalsePositives&gt;&lt;/FalsePositives&gt;&lt;FalseNegatives&gt;&lt;/FalseNegatives&gt;&lt;Documentable&gt;true&lt;/Documentable&gt;&lt;Mitigations&gt;None&lt;/Mitigations&gt;&lt;SeverityOverrideGuidance&gt;&lt;/SeverityOverrideGuidance&gt;&lt;PotentialImpacts&gt;&lt;/PotentialImpacts&gt;&lt;ThirdPartyTools&gt;&lt;/ThirdPartyTools&gt;&lt;MitigationControl&gt;&lt;/MitigationControl&gt;&lt;Responsibility&gt;System Administrator&lt;/Responsibility&gt;&lt;IAControls&gt;ECLO-1&lt;/IAControls&gt;</description>
      <reference><dc:title>DPMS Target Sample OS</dc:title></reference>
      <ident system="http://cyber.mil/legacy">V-1001</ident>
      <ident system="http://cyber.mil/cci">CCI-000044</ident>
      <fixtext fixref="F-1001r1_fix">Set the lockout threshold to 3.</fixtext>
      <fix id="F-1001r1_fix" />
      <check system="C-1001r1_chk">
        <check-content-ref name="M" href="DPMS_XCCDF_Benchmark_Sample.xml" />
        <check-content>Verify the lockout threshold is 3 or less.</check-content>
      </check>
    </Rule>
  </Group>
  <Group id="V-1002">
    <title>SRG-OS-000002</title>
    <Rule id="SV-1002r2_rule" severity="low" weight="10.0">
      <version>SOS-00-000002</version>
      <title>The banner must be displayed.</title>
      <description>&lt;VulnDiscussion&gt;Users must see the banner.&lt;/VulnDiscussion&gt;&lt;Documentable&gt;false&lt;/Documentable&gt;</description>
      <fixtext fixref="F-1002r1_fix">Configure the banner.</fixtext>
      <check system="C-1002r1_chk"><check-content>Look at the banner.</check-content></check>
    </Rule>
  </Group>
</Benchmark>`

func TestParseHeader(t *testing.T) {
	b, err := Parse(strings.NewReader(sampleBenchmark))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := model.STIG{
		Title:       "Sample OS Security Technical Implementation Guide",
		Description: "This guide covers the sample OS.",
		Release:     "Release: 23 Benchmark Date: 17 Jun 2020",
		Version:     2,
		BenchmarkID: "Sample_OS_STIG",
	}
	if b.STIG != want {
		t.Errorf("STIG = %+v\nwant %+v", b.STIG, want)
	}
}

func TestParseRules(t *testing.T) {
	b, err := Parse(strings.NewReader(sampleBenchmark))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(b.Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(b.Checks))
	}
	c := b.Checks[0]
	if c.Rule != "SV-1001r1_rule" || c.VulnNum != "V-1001" || c.GroupTitle != "SRG-OS-000001" {
		t.Errorf("identity = %q %q %q", c.Rule, c.VulnNum, c.GroupTitle)
	}
	if c.Title != "Accounts must be locked after three failed attempts." {
		t.Errorf("Title = %q (reference dc:title must not leak in)", c.Title)
	}
	if c.RuleVersion != "SOS-00-000001" || c.Severity != model.SeverityHigh || c.Weight != 10 {
		t.Errorf("version/severity/weight = %q %v %v", c.RuleVersion, c.Severity, c.Weight)
	}
	if c.CCINumber != 44 {
		t.Errorf("CCINumber = %d, want 44", c.CCINumber)
	}
	if c.VulnDiscussion != "Brute force & guessing." {
		t.Errorf("VulnDiscussion = %q", c.VulnDiscussion)
	}
	if !c.Documentable || c.Mitigations != "None" || c.Responsibility != "System Administrator" || c.IAControls != "ECLO-1" {
		t.Errorf("description fields = %+v", c)
	}
	if c.Fix != "Set the lockout threshold to 3." || c.Check != "Verify the lockout threshold is 3 or less." || c.CheckContentRef != "M" {
		t.Errorf("fix/check = %q %q %q", c.Fix, c.Check, c.CheckContentRef)
	}

	c = b.Checks[1]
	if c.VulnNum != "V-1002" || c.Severity != model.SeverityLow || c.Documentable {
		t.Errorf("second rule = %+v", c)
	}
	if len(b.Unmapped) != 1 || b.Unmapped[0] != "SV-1002r2_rule" {
		t.Errorf("Unmapped = %v", b.Unmapped)
	}
}

func TestParseRejectsNonBenchmark(t *testing.T) {
	if _, err := Parse(strings.NewReader(`<oval_definitions></oval_definitions>`)); err == nil {
		t.Error("Parse of a non-benchmark document succeeded")
	}
}

func zipOf(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadArchiveNested(t *testing.T) {
	inner := zipOf(t, map[string][]byte{
		"U_Sample_V2R23_Manual-xccdf.xml": []byte(sampleBenchmark),
	})
	outer := zipOf(t, map[string][]byte{
		"README.txt":              []byte("ignored"),
		"U_Sample_V2R23_STIG.zip": inner,
		"top-xccdf.xml":           []byte(sampleBenchmark),
	})
	entries, err := ReadArchive(bytes.NewReader(outer), int64(len(outer)))
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if len(entries) != 2 || !names["top-xccdf.xml"] || !names["U_Sample_V2R23_STIG.zip/U_Sample_V2R23_Manual-xccdf.xml"] {
		t.Errorf("entries = %v", names)
	}
}

func TestIsBenchmark(t *testing.T) {
	tests := map[string]bool{
		"U_Sample_Manual-xccdf.xml":     true,
		"dir/U_Sample_oval.xml":         false,
		"U_Sample_V1R1_Manual_STIG.xml": true,
		"nested.zip/x_oval-xccdf.xml":   true,
	}
	for name, want := range tests {
		if got := IsBenchmark(name); got != want {
			t.Errorf("IsBenchmark(%q) = %v, want %v", name, got, want)
		}
	}
}

package feed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/yourorg/stigkeeper/internal/model"
)

const familyIndex = `<!DOCTYPE html>
<html><head><title>NIST 800-53 Rev4</title></head>
<body>
<ul>
<li><a id="AC_FamilyLink" href="/800-53/Rev4/family/AC">AC - Access Control</a>
<li><a id="AU_FamilyLink" href="/800-53/Rev4/family/AU">AU -
   Audit and Accountability</a><br>
<li><a id="other" href="/about">About</a>
<li><a id="AC_FamilyLink2" href="/dup">AC - Access Control</a>
</ul>
</body>`

func TestParseFamilies(t *testing.T) {
	got, err := ParseFamilies(strings.NewReader(familyIndex))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d families: %+v", len(got), got)
	}
	if got[0].Acronym != "AC" || got[0].Description != "Access Control" || got[0].Href != "/800-53/Rev4/family/AC" {
		t.Errorf("first family = %+v", got[0])
	}
	if got[1].Acronym != "AU" || got[1].Description != "Audit and Accountability" {
		t.Errorf("second family = %+v", got[1])
	}
}

const controlFeed = `<?xml version="1.0" encoding="UTF-8"?>
<controls:controls xmlns:controls="http://scap.nist.gov/schema/sp800-53/feed/2.0"
  xmlns="http://scap.nist.gov/schema/sp800-53/2.0">
 <controls:control>
  <family>ACCESS CONTROL</family>
  <number>AC-2</number>
  <title>ACCOUNT MANAGEMENT</title>
  <statement>
   <description>The organization:</description>
   <statement><number>AC-2a.</number><description>Identifies account types</description></statement>
  </statement>
  <supplemental-guidance><description>Guidance text</description></supplemental-guidance>
  <control-enhancements>
   <control-enhancement>
    <number>AC-2 (1)</number>
    <title>ACCOUNT MANAGEMENT | AUTOMATED SYSTEM ACCOUNT MANAGEMENT</title>
    <statement><description>The organization employs automated mechanisms.</description></statement>
    <supplemental-guidance><description>More guidance</description></supplemental-guidance>
   </control-enhancement>
  </control-enhancements>
 </controls:control>
 <controls:control>
  <family>AUDIT AND ACCOUNTABILITY</family>
  <number>AU-1</number>
  <title>AUDIT POLICY</title>
 </controls:control>
</controls:controls>`

func TestParseControls(t *testing.T) {
	got, err := ParseControls(strings.NewReader(controlFeed))
	if err != nil {
		t.Fatal(err)
	}
	want := []ControlEntry{
		{Number: "AC-2", Title: "ACCOUNT MANAGEMENT", Description: "The organization:"},
		{Number: "AC-2 (1)", Title: "ACCOUNT MANAGEMENT | AUTOMATED SYSTEM ACCOUNT MANAGEMENT", Description: "The organization employs automated mechanisms."},
		{Number: "AU-1", Title: "AUDIT POLICY"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d controls: %+v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("control %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	id, err := model.ParseControlID(got[1].Number)
	if err != nil || id != (model.ControlID{Family: "AC", Number: 2, Enhancement: 1}) {
		t.Errorf("enhancement number parses to %+v, %v", id, err)
	}
}

const cciList = `<?xml version="1.0" encoding="utf-8"?>
<cci_list xmlns="http://iase.disa.mil/cci">
 <metadata><version>2022-04-05</version></metadata>
 <cci_items>
  <cci_item id="CCI-000015">
   <status>draft</status>
   <definition>The organization employs automated mechanisms to support account management.</definition>
   <type>technical</type>
   <references>
    <reference creator="NIST" title="NIST SP 800-53" version="3" location="x" index="AC-2 (1)" />
    <reference creator="NIST" title="NIST SP 800-53 Revision 4" version="4" location="x" index="AC-2 (1)" />
   </references>
  </cci_item>
  <cci_item id="CCI-000366">
   <definition>The organization implements the security configuration settings.</definition>
   <references>
    <reference creator="NIST" title="NIST SP 800-53 Revision 4" version="4" location="x" index="CM-6 b" />
   </references>
  </cci_item>
  <cci_item id="CCI-999999">
   <definition>rev5 only</definition>
   <references>
    <reference creator="NIST" title="NIST SP 800-53 Revision 5" version="5" location="x" index="AC-1" />
   </references>
  </cci_item>
 </cci_items>
</cci_list>`

func TestParseCCIList(t *testing.T) {
	entries, skipped, err := ParseCCIList(strings.NewReader(cciList))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries: %+v", len(entries), entries)
	}
	if entries[0].Number != 15 || entries[0].Control != "AC-2(1)" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Number != 366 || entries[1].Control != "CM-6" {
		t.Errorf("second entry = %+v", entries[1])
	}
	if len(skipped) != 1 || skipped[0] != "CCI-999999" {
		t.Errorf("skipped = %v", skipped)
	}
}

func TestReadCCIArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{"U_CCI_List.xml": cciList, "readme.txt": "ignore me"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	entries, _, err := ReadCCIArchive(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries from archive", len(entries))
	}
}

func TestPrivacyControlsParse(t *testing.T) {
	families := map[string]bool{}
	for _, f := range PrivacyFamilies {
		families[f.Acronym] = true
	}
	for _, c := range PrivacyControls {
		id, err := model.ParseControlID(c.Number)
		if err != nil {
			t.Errorf("%s: %v", c.Number, err)
			continue
		}
		if !families[id.Family] {
			t.Errorf("%s: family %s not in privacy families", c.Number, id.Family)
		}
	}
}

// Package ckl reads and writes DISA STIG Viewer checklist (.ckl) files.
package ckl

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourorg/stigkeeper/internal/model"
)

const viewerComment = "DISA STIG Viewer :: 2.17"

type Checklist struct {
	XMLName xml.Name `xml:"CHECKLIST"`
	Asset   Asset    `xml:"ASSET"`
	STIGs   []ISTIG  `xml:"STIGS>iSTIG"`
}

type Asset struct {
	Role          string `xml:"ROLE"`
	AssetType     string `xml:"ASSET_TYPE"`
	Marking       string `xml:"MARKING,omitempty"`
	HostName      string `xml:"HOST_NAME"`
	HostIP        string `xml:"HOST_IP"`
	HostMAC       string `xml:"HOST_MAC"`
	HostFQDN      string `xml:"HOST_FQDN"`
	TargetComment string `xml:"TARGET_COMMENT"`
	TechArea      string `xml:"TECH_AREA"`
	TargetKey     string `xml:"TARGET_KEY"`
	WebOrDatabase string `xml:"WEB_OR_DATABASE"`
	WebDBSite     string `xml:"WEB_DB_SITE"`
	WebDBInstance string `xml:"WEB_DB_INSTANCE"`
}

type ISTIG struct {
	Info  []SIData `xml:"STIG_INFO>SI_DATA"`
	Vulns []Vuln   `xml:"VULN"`
}

type SIData struct {
	Name string `xml:"SID_NAME"`
	Data string `xml:"SID_DATA,omitempty"`
}

type Vuln struct {
	Data                  []STIGData `xml:"STIG_DATA"`
	Status                string     `xml:"STATUS"`
	FindingDetails        string     `xml:"FINDING_DETAILS"`
	Comments              string     `xml:"COMMENTS"`
	SeverityOverride      string     `xml:"SEVERITY_OVERRIDE"`
	SeverityJustification string     `xml:"SEVERITY_JUSTIFICATION"`
}

type STIGData struct {
	Attribute string `xml:"VULN_ATTRIBUTE"`
	Data      string `xml:"ATTRIBUTE_DATA"`
}

// Row is one rule and its review state, as exported into a VULN element.
type Row struct {
	Rule  model.STIGCheck
	Check model.CKLCheck
	CCI   int
}

// New builds the checklist for one asset and one STIG.
func New(a model.Asset, st model.STIG, rows []Row) *Checklist {
	c := &Checklist{Asset: fromAsset(a)}
	is := ISTIG{Info: []SIData{
		{Name: "version", Data: strconv.Itoa(st.Version)},
		{Name: "classification", Data: "UNCLASSIFIED"},
		{Name: "customname"},
		{Name: "stigid", Data: st.BenchmarkID},
		{Name: "description", Data: st.Description},
		{Name: "filename", Data: st.FileName},
		{Name: "releaseinfo", Data: st.Release},
		{Name: "title", Data: st.Title},
		{Name: "uuid"},
		{Name: "notice", Data: "terms-of-use"},
		{Name: "source"},
	}}
	stigRef := fmt.Sprintf("%s :: Version %d, %s", st.Title, st.Version, st.Release)
	for _, r := range rows {
		is.Vulns = append(is.Vulns, newVuln(r, stigRef))
	}
	c.STIGs = append(c.STIGs, is)
	return c
}

func fromAsset(a model.Asset) Asset {
	assetType := a.AssetType
	if assetType == "" {
		assetType = "Computing"
	}
	return Asset{
		Role:          "None",
		AssetType:     assetType,
		HostName:      a.HostName,
		HostIP:        a.HostIP,
		HostMAC:       a.HostMAC,
		HostFQDN:      a.HostFQDN,
		TechArea:      a.TechArea,
		TargetKey:     a.TargetKey,
		WebOrDatabase: strconv.FormatBool(a.WebOrDatabase),
		WebDBSite:     a.WebDBSite,
		WebDBInstance: a.WebDBInstance,
	}
}

func newVuln(r Row, stigRef string) Vuln {
	rule := r.Rule
	severityOverride := ""
	if r.Check.SeverityOverride != model.SeverityNone {
		severityOverride = r.Check.SeverityOverride.String()
	}
	data := []STIGData{
		{"Vuln_Num", rule.VulnNum},
		{"Severity", rule.Severity.String()},
		{"Group_Title", rule.GroupTitle},
		{"Rule_ID", rule.Rule},
		{"Rule_Ver", rule.RuleVersion},
		{"Rule_Title", rule.Title},
		{"Vuln_Discuss", rule.VulnDiscussion},
		{"IA_Controls", rule.IAControls},
		{"Check_Content", rule.Check},
		{"Fix_Text", rule.Fix},
		{"False_Positives", rule.FalsePositives},
		{"False_Negatives", rule.FalseNegatives},
		{"Documentable", strconv.FormatBool(rule.Documentable)},
		{"Mitigations", rule.Mitigations},
		{"Potential_Impact", rule.PotentialImpact},
		{"Third_Party_Tools", rule.ThirdPartyTools},
		{"Mitigation_Control", rule.MitigationControl},
		{"Responsibility", rule.Responsibility},
		{"Security_Override_Guidance", rule.SeverityOverrideGuidance},
		{"Check_Content_Ref", rule.CheckContentRef},
		{"Weight", strconv.FormatFloat(rule.Weight, 'f', 1, 64)},
		{"Class", "Unclass"},
		{"STIGRef", stigRef},
		{"TargetKey", rule.TargetKey},
	}
	if r.CCI > 0 {
		data = append(data, STIGData{"CCI_REF", model.FormatCCI(r.CCI)})
	}
	return Vuln{
		Data:                  data,
		Status:                r.Check.Status.String(),
		FindingDetails:        r.Check.FindingDetails,
		Comments:              r.Check.Comments,
		SeverityOverride:      severityOverride,
		SeverityJustification: r.Check.SeverityJustification,
	}
}

// Write encodes c with the header STIG Viewer emits.
func Write(w io.Writer, c *Checklist) error {
	if _, err := io.WriteString(w, xml.Header+"<!--"+viewerComment+"-->\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func Read(r io.Reader) (*Checklist, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	var c Checklist
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode checklist: %w", err)
	}
	if strings.TrimSpace(c.Asset.HostName) == "" {
		return nil, errors.New("decode checklist: asset has no HOST_NAME")
	}
	return &c, nil
}

// ToAsset converts the checklist's ASSET element.
func (a Asset) ToAsset() model.Asset {
	return model.Asset{
		AssetType:     strings.TrimSpace(a.AssetType),
		HostName:      strings.TrimSpace(a.HostName),
		HostIP:        strings.TrimSpace(a.HostIP),
		HostMAC:       strings.TrimSpace(a.HostMAC),
		HostFQDN:      strings.TrimSpace(a.HostFQDN),
		TechArea:      strings.TrimSpace(a.TechArea),
		TargetKey:     strings.TrimSpace(a.TargetKey),
		WebOrDatabase: strings.EqualFold(strings.TrimSpace(a.WebOrDatabase), "true"),
		WebDBSite:     strings.TrimSpace(a.WebDBSite),
		WebDBInstance: strings.TrimSpace(a.WebDBInstance),
	}
}

func (s ISTIG) info(name string) string {
	for _, d := range s.Info {
		if d.Name == name {
			return strings.TrimSpace(d.Data)
		}
	}
	return ""
}

// STIG returns the identity fields recorded in STIG_INFO.
func (s ISTIG) STIG() model.STIG {
	version, _ := strconv.Atoi(s.info("version"))
	return model.STIG{
		Title:       s.info("title"),
		Description: s.info("description"),
		Release:     s.info("releaseinfo"),
		Version:     version,
		BenchmarkID: s.info("stigid"),
		FileName:    s.info("filename"),
	}
}

// Attr returns the ATTRIBUTE_DATA of the first STIG_DATA named name.
func (v Vuln) Attr(name string) string {
	for _, d := range v.Data {
		if d.Attribute == name {
			return strings.TrimSpace(d.Data)
		}
	}
	return ""
}

// Apply copies the review state of v onto c.
func (v Vuln) Apply(c *model.CKLCheck) {
	c.Status = model.ParseStatus(v.Status)
	c.FindingDetails = v.FindingDetails
	c.Comments = v.Comments
	c.SeverityOverride = model.ParseSeverity(v.SeverityOverride)
	c.SeverityJustification = v.SeverityJustification
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName is the export name for a checklist: <host>_<benchmark>.ckl.
func FileName(host string, st model.STIG) string {
	bench := st.BenchmarkID
	if bench == "" {
		bench = st.Title
	}
	return unsafeName.ReplaceAllString(host, "_") + "_" + unsafeName.ReplaceAllString(bench, "_") + ".ckl"
}

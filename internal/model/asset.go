package model

import "strings"

type Status int

const (
	StatusNotReviewed Status = iota
	StatusOpen
	StatusNotAFinding
	StatusNotApplicable
)

// String returns the checklist spelling used in CKL files.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusNotAFinding:
		return "NotAFinding"
	case StatusNotApplicable:
		return "Not_Applicable"
	default:
		return "Not_Reviewed"
	}
}

func ParseStatus(s string) Status {
	switch strings.ToLower(strings.NewReplacer("_", "", " ", "", "-", "").Replace(s)) {
	case "open":
		return StatusOpen
	case "notafinding", "closed", "pass":
		return StatusNotAFinding
	case "notapplicable", "na":
		return StatusNotApplicable
	default:
		return StatusNotReviewed
	}
}

type Asset struct {
	ID            int64
	AssetType     string
	HostName      string
	HostIP        string
	HostMAC       string
	HostFQDN      string
	TechArea      string
	TargetKey     string
	WebOrDatabase bool
	WebDBSite     string
	WebDBInstance string
}

func (a Asset) String() string {
	return a.HostName
}

type AssetSTIG struct {
	AssetID int64
	STIGID  int64
}

type CKLCheck struct {
	ID                    int64
	AssetID               int64
	STIGCheckID           int64
	Status                Status
	FindingDetails        string
	Comments              string
	SeverityOverride      Severity
	SeverityJustification string
}

// EffectiveSeverity is the override when one is set, else the rule severity.
func (c CKLCheck) EffectiveSeverity(rule Severity) Severity {
	if c.SeverityOverride != SeverityNone {
		return c.SeverityOverride
	}
	return rule
}

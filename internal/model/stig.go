package model

import (
	"fmt"
	"strings"
)

type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

// Category returns the DISA category label (CAT I is high).
func (s Severity) Category() string {
	switch s {
	case SeverityHigh:
		return "CAT I"
	case SeverityMedium:
		return "CAT II"
	case SeverityLow:
		return "CAT III"
	default:
		return ""
	}
}

func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "cat i", "i":
		return SeverityHigh
	case "medium", "cat ii", "ii":
		return SeverityMedium
	case "low", "cat iii", "iii":
		return SeverityLow
	default:
		return SeverityNone
	}
}

type STIG struct {
	ID          int64
	Title       string
	Description string
	Release     string
	Version     int
	BenchmarkID string
	FileName    string
}

func (s STIG) String() string {
	return fmt.Sprintf("%s Version: %d %s", s.Title, s.Version, s.Release)
}

type STIGCheck struct {
	ID     int64
	STIGID int64
	CCIID  int64
	// CCINumber is the CCI the rule references. CCIID differs from it when
	// that CCI was unknown at import and the rule went to the fallback.
	CCINumber int

	Rule        string
	VulnNum     string
	GroupTitle  string
	RuleVersion string
	Severity    Severity
	Weight      float64
	Title       string

	VulnDiscussion           string
	FalsePositives           string
	FalseNegatives           string
	Fix                      string
	Check                    string
	Documentable             bool
	Mitigations              string
	SeverityOverrideGuidance string
	CheckContentRef          string
	PotentialImpact          string
	ThirdPartyTools          string
	MitigationControl        string
	Responsibility           string
	IAControls               string
	TargetKey                string
}

func (c STIGCheck) String() string {
	if c.VulnNum == "" {
		return c.Rule
	}
	return c.Rule + " (" + c.VulnNum + ")"
}

package model

// FindingRow is one CKLCheck joined to its rule, CCI, control, asset and STIG.
// Report writers consume these rows.
type FindingRow struct {
	Check   CKLCheck
	Rule    STIGCheck
	CCI     CCI
	Control Control
	Asset   Asset
	STIG    STIG
}

func (r FindingRow) Severity() Severity {
	return r.Check.EffectiveSeverity(r.Rule.Severity)
}

type Summary struct {
	Total         int `json:"total"`
	Open          int `json:"open"`
	NotAFinding   int `json:"not_a_finding"`
	NotApplicable int `json:"not_applicable"`
	NotReviewed   int `json:"not_reviewed"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
}

// Add counts a check; severities are only counted for open checks.
func (s *Summary) Add(status Status, sev Severity) {
	s.Total++
	switch status {
	case StatusOpen:
		s.Open++
		switch sev {
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	case StatusNotAFinding:
		s.NotAFinding++
	case StatusNotApplicable:
		s.NotApplicable++
	default:
		s.NotReviewed++
	}
}

package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCCINumber is the CCI that STIG rules are remapped to when the CCI
// they reference is missing from the reference data.
const DefaultCCINumber = 366

type Family struct {
	ID          int64
	Acronym     string
	Description string
}

func (f Family) String() string {
	if f.Description == "" {
		return f.Acronym
	}
	return f.Acronym + " - " + f.Description
}

type Control struct {
	ID       int64
	FamilyID int64
	// Family is filled by lookups that join the family row.
	Family      string
	Number      int
	Enhancement int // 0 when the control is not an enhancement
	Title       string
	Description string
}

func (c Control) ControlID() ControlID {
	return ControlID{Family: c.Family, Number: c.Number, Enhancement: c.Enhancement}
}

func (c Control) String() string {
	return c.ControlID().String()
}

type CCI struct {
	ID         int64
	ControlID  int64
	Number     int
	Definition string

	IsImport          bool
	ImportCompliance  string
	ImportDateTested  string
	ImportTestedBy    string
	ImportTestResults string
}

func (c CCI) String() string {
	return FormatCCI(c.Number)
}

// FormatCCI prints a CCI number the way DISA publishes it (CCI-000366).
func FormatCCI(n int) string {
	return fmt.Sprintf("CCI-%06d", n)
}

// ParseCCI accepts "CCI-000366", "cci-366" or "000366".
func ParseCCI(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "CCI-") {
		s = s[4:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid CCI %q", s)
	}
	return n, nil
}

// ControlID is the textual identity of an RMF control: family letters,
// control number and optional enhancement.
type ControlID struct {
	Family      string
	Number      int
	Enhancement int
}

func (id ControlID) String() string {
	if id.Enhancement > 0 {
		return fmt.Sprintf("%s-%d(%d)", id.Family, id.Number, id.Enhancement)
	}
	return fmt.Sprintf("%s-%d", id.Family, id.Number)
}

var controlIDPattern = regexp.MustCompile(`^([A-Za-z]{2,3})-(\d+)\s*(?:\(\s*(\d+)\s*\))?`)

// ParseControlID parses strings such as "AC-2", "AC-2(1)" and "AC-2 (1)".
// Trailing text after the control ("AC-2 (1) (b)", "AC-2 a") is ignored.
func ParseControlID(s string) (ControlID, error) {
	m := controlIDPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ControlID{}, fmt.Errorf("invalid control %q", s)
	}
	id := ControlID{Family: strings.ToUpper(m[1])}
	id.Number, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		id.Enhancement, _ = strconv.Atoi(m[3])
	}
	return id, nil
}

// ControlFromReference reduces a CCI reference index such as
// "AC-2 (1) (a)" or "AC-17 a.1" to the control it names.
func ControlFromReference(index string) string {
	index = strings.TrimSpace(index)
	control := index
	if i := strings.IndexByte(control, ' '); i >= 0 {
		control = control[:i]
	}
	if i := strings.IndexByte(control, '.'); i >= 0 {
		control = control[:i]
	}
	if i := strings.IndexByte(control, '('); i >= 0 {
		control = control[:i]
	}
	// A parenthesis after the second space qualifies a lettered item, not
	// the control: "CM-6 b (1)" stays CM-6.
	open := strings.IndexByte(index, '(')
	if open >= 0 {
		second := -1
		if first := strings.IndexByte(index, ' '); first >= 0 {
			if n := strings.IndexByte(index[first+1:], ' '); n >= 0 {
				second = first + 1 + n
			}
		}
		end := strings.IndexByte(index[open:], ')')
		if end > 0 && (second < 0 || open < second) {
			control += index[open : open+end+1]
		}
	}
	return strings.ReplaceAll(control, " ", "")
}

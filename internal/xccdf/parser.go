// Package xccdf reads DISA STIG benchmarks (XCCDF 1.1 documents) and the
// zip archives they are distributed in.
package xccdf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yourorg/stigkeeper/internal/model"
)

// Benchmark is one parsed STIG with its rules. Rules carry the CCI number
// they reference in CCINumber; CCIID is resolved by the importer.
type Benchmark struct {
	STIG   model.STIG
	Checks []model.STIGCheck
	// Unmapped lists rules that carry no CCI ident.
	Unmapped []string
}

// Parse stream-decodes an XCCDF benchmark. Header fields are read until the
// first Profile or Group; after that only Group and Rule content matters.
func Parse(r io.Reader) (*Benchmark, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = passthroughCharset

	b := &Benchmark{}
	var (
		stack    []string
		inRules  bool
		vulnNum  string
		groupTtl string
		rule     *model.STIGCheck
		sawRoot  bool
	)
	parent := func() string {
		if len(stack) < 2 {
			return ""
		}
		return stack[len(stack)-2]
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if rule != nil {
				b.addRule(*rule)
			}
			if !sawRoot {
				return nil, fmt.Errorf("parse benchmark: %w", err)
			}
			return b, fmt.Errorf("parse benchmark: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			if name == "Benchmark" && !sawRoot {
				sawRoot = true
				b.STIG.BenchmarkID = attr(t, "id")
				continue
			}
			if !inRules {
				switch name {
				case "Profile", "Group":
					inRules = true
				}
			}
			if !inRules {
				if parent() != "Benchmark" {
					continue
				}
				switch name {
				case "title":
					b.STIG.Title, err = text(dec, &stack)
				case "description":
					b.STIG.Description, err = text(dec, &stack)
				case "plain-text":
					if attr(t, "id") == "release-info" {
						b.STIG.Release, err = text(dec, &stack)
					}
				case "version":
					var v string
					v, err = text(dec, &stack)
					b.STIG.Version, _ = strconv.Atoi(v)
				}
				if err != nil {
					return b, fmt.Errorf("parse benchmark header: %w", err)
				}
				continue
			}
			switch name {
			case "Group":
				if id := attr(t, "id"); id != "" {
					vulnNum, groupTtl = id, ""
				}
			case "Rule":
				if rule != nil {
					b.addRule(*rule)
				}
				rule = &model.STIGCheck{
					Rule:       attr(t, "id"),
					VulnNum:    vulnNum,
					GroupTitle: groupTtl,
					Severity:   model.ParseSeverity(attr(t, "severity")),
				}
				rule.Weight, _ = strconv.ParseFloat(attr(t, "weight"), 64)
			case "title":
				switch parent() {
				case "Group":
					groupTtl, err = text(dec, &stack)
				case "Rule":
					if rule != nil {
						rule.Title, err = text(dec, &stack)
					}
				}
			case "version":
				if rule != nil && parent() == "Rule" {
					rule.RuleVersion, err = text(dec, &stack)
				}
			case "description":
				if rule != nil && parent() == "Rule" {
					var raw string
					if raw, err = text(dec, &stack); err == nil {
						parseVulnDescription(raw, rule)
					}
				}
			case "ident":
				if rule != nil {
					var id string
					id, err = text(dec, &stack)
					if rule.CCINumber == 0 && strings.HasPrefix(strings.ToUpper(id), "CCI") {
						rule.CCINumber, _ = model.ParseCCI(id)
					}
				}
			case "fixtext":
				if rule != nil {
					rule.Fix, err = text(dec, &stack)
				}
			case "check-content-ref":
				if rule != nil {
					if n := attr(t, "name"); n != "" {
						rule.CheckContentRef = n
					}
				}
			case "check-content":
				if rule != nil {
					rule.Check, err = text(dec, &stack)
				}
			}
			if err != nil {
				return b, fmt.Errorf("parse rule %s: %w", vulnNum, err)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == "Rule" && rule != nil {
				b.addRule(*rule)
				rule = nil
			}
		}
	}
	if !sawRoot {
		return nil, errors.New("parse benchmark: no Benchmark element")
	}
	return b, nil
}

func (b *Benchmark) addRule(c model.STIGCheck) {
	if c.CCINumber == 0 {
		b.Unmapped = append(b.Unmapped, c.Rule)
	}
	b.Checks = append(b.Checks, c)
}

// parseVulnDescription fills the rule fields packed into an XCCDF rule
// description. DISA escapes these as markup inside the description text.
func parseVulnDescription(raw string, c *model.STIGCheck) {
	dec := xml.NewDecoder(strings.NewReader("<VulnDescription>" + raw + "</VulnDescription>"))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.AutoClose = xml.HTMLAutoClose
	var stack []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			if _, end := tok.(xml.EndElement); end && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		stack = append(stack, se.Name.Local)
		var field *string
		switch se.Name.Local {
		case "VulnDiscussion":
			field = &c.VulnDiscussion
		case "FalsePositives":
			field = &c.FalsePositives
		case "FalseNegatives":
			field = &c.FalseNegatives
		case "Mitigations":
			field = &c.Mitigations
		case "SeverityOverrideGuidance":
			field = &c.SeverityOverrideGuidance
		case "PotentialImpacts":
			field = &c.PotentialImpact
		case "ThirdPartyTools":
			field = &c.ThirdPartyTools
		case "MitigationControl":
			field = &c.MitigationControl
		case "Responsibility":
			field = &c.Responsibility
		case "IAControls":
			field = &c.IAControls
		case "Documentable":
			v, err := text(dec, &stack)
			if err != nil {
				return
			}
			c.Documentable = strings.HasPrefix(strings.ToLower(v), "t")
			continue
		default:
			continue
		}
		v, err := text(dec, &stack)
		if err != nil {
			return
		}
		*field = v
	}
}

// text reads the character data of the element just opened and consumes
// its end tag. Nested markup is flattened.
func text(dec *xml.Decoder, stack *[]string) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return strings.TrimSpace(sb.String()), err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	if n := len(*stack); n > 0 {
		*stack = (*stack)[:n-1]
	}
	return strings.TrimSpace(sb.String()), nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// Benchmarks in the wild declare utf-8, us-ascii or windows-1252; all are
// read as-is.
func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

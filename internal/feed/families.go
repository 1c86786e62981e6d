// Package feed parses the NIST and DISA reference feeds that populate the
// family, control and CCI tables. Fetching is left to the caller.
package feed

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// FamilyEntry is a control family as listed on the NIST family index.
type FamilyEntry struct {
	Acronym     string
	Description string
	// Href is the family page link, kept for logging.
	Href string
}

// ParseFamilies extracts the families from the NIST 800-53 rev4 index
// page. The page is not well-formed XML, so it is tokenized as HTML; the
// family links are anchors whose id ends in "FamilyLink" and whose text
// reads "AC - Access Control".
func ParseFamilies(r io.Reader) ([]FamilyEntry, error) {
	z := html.NewTokenizer(r)
	var (
		out     []FamilyEntry
		inLink  bool
		href    string
		text    strings.Builder
		seenAcr = map[string]bool{}
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("family index: %w", z.Err())
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			id, link := attr(tok, "id"), attr(tok, "href")
			if strings.HasSuffix(id, "FamilyLink") && link != "" {
				inLink, href = true, link
				text.Reset()
			}
		case html.TextToken:
			if inLink {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			if !inLink {
				continue
			}
			if name, _ := z.TagName(); string(name) != "a" {
				continue
			}
			inLink = false
			fam, ok := parseFamilyText(text.String())
			if !ok || seenAcr[fam.Acronym] {
				continue
			}
			seenAcr[fam.Acronym] = true
			fam.Href = href
			out = append(out, fam)
		}
	}
}

func parseFamilyText(s string) (FamilyEntry, bool) {
	s = strings.Join(strings.Fields(s), " ")
	acronym, name, ok := strings.Cut(s, " - ")
	if !ok || len(acronym) < 2 {
		return FamilyEntry{}, false
	}
	return FamilyEntry{Acronym: strings.ToUpper(acronym[:2]), Description: strings.TrimSpace(name)}, true
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ControlFeedPath is the rev4 control feed, relative to the NIST base URL.
const ControlFeedPath = "/static/feeds/xml/sp80053/rev4/800-53-controls.xml"

// ControlEntry is one control or enhancement from the control feed.
// Number is textual ("AC-2", "AC-2 (1)") and parses with
// model.ParseControlID.
type ControlEntry struct {
	Number      string
	Title       string
	Description string
}

// ParseControls stream-parses the 800-53 rev4 control feed. Only the
// number, the title and the top-level statement description of each
// control and enhancement are kept.
func ParseControls(r io.Reader) ([]ControlEntry, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		out     []ControlEntry
		stack   []string
		cur     *ControlEntry
		capture *string
		text    strings.Builder
	)
	flush := func() {
		if cur != nil && cur.Number != "" {
			out = append(out, *cur)
		}
		cur = nil
	}
	parent := func(depth int) string {
		if len(stack) > depth {
			return stack[len(stack)-1-depth]
		}
		return ""
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("control feed: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case isControlElement(name):
				flush()
				cur = &ControlEntry{}
			case cur == nil:
			case (name == "number" || name == "title") && isControlElement(parent(0)):
				if name == "number" {
					capture = &cur.Number
				} else {
					capture = &cur.Title
				}
				text.Reset()
			case name == "description" && parent(0) == "statement" && isControlElement(parent(1)) && cur.Description == "":
				capture = &cur.Description
				text.Reset()
			}
			stack = append(stack, name)
		case xml.CharData:
			if capture != nil {
				text.Write(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if capture != nil {
				*capture = strings.Join(strings.Fields(text.String()), " ")
				capture = nil
			}
		}
	}
	flush()
	return out, nil
}

func isControlElement(name string) bool {
	return name == "control" || name == "control-enhancement"
}

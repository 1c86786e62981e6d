package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/yourorg/stigkeeper/internal/model"
)

// CCIEntry is a CCI and the rev4 control it maps to.
type CCIEntry struct {
	Number     int
	Definition string
	// Control is the textual control reduced from the reference index.
	Control string
}

type cciItem struct {
	ID         string `xml:"id,attr"`
	Definition string `xml:"definition"`
	References []struct {
		Version string `xml:"version,attr"`
		Index   string `xml:"index,attr"`
	} `xml:"references>reference"`
}

// ParseCCIList stream-parses a DISA CCI list document. Items without a
// rev4 reference or with an unreadable id are skipped and reported.
func ParseCCIList(r io.Reader) (entries []CCIEntry, skipped []string, err error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return entries, skipped, nil
		}
		if err != nil {
			return entries, skipped, fmt.Errorf("cci list: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "cci_item" {
			continue
		}
		var item cciItem
		if err := dec.DecodeElement(&item, &start); err != nil {
			return entries, skipped, fmt.Errorf("cci list: %w", err)
		}
		entry, ok := item.entry()
		if !ok {
			skipped = append(skipped, item.ID)
			continue
		}
		entries = append(entries, entry)
	}
}

func (it cciItem) entry() (CCIEntry, bool) {
	n, err := model.ParseCCI(it.ID)
	if err != nil {
		return CCIEntry{}, false
	}
	for _, ref := range it.References {
		if ref.Version != "4" || strings.TrimSpace(ref.Index) == "" {
			continue
		}
		return CCIEntry{
			Number:     n,
			Definition: strings.TrimSpace(it.Definition),
			Control:    model.ControlFromReference(ref.Index),
		}, true
	}
	return CCIEntry{}, false
}

// ReadCCIArchive parses every XML document in the CCI list zip.
func ReadCCIArchive(r io.ReaderAt, size int64) (entries []CCIEntry, skipped []string, err error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, nil, fmt.Errorf("cci archive: %w", err)
	}
	for _, f := range zr.File {
		if !strings.EqualFold(path.Ext(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return entries, skipped, fmt.Errorf("cci archive %s: %w", f.Name, err)
		}
		e, s, err := ParseCCIList(rc)
		rc.Close()
		if err != nil {
			return entries, skipped, fmt.Errorf("%s: %w", f.Name, err)
		}
		entries = append(entries, e...)
		skipped = append(skipped, s...)
	}
	return entries, skipped, nil
}

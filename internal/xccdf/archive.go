package xccdf

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// maxNesting bounds how deep ReadArchive descends into zips inside zips.
const maxNesting = 3

// Entry is one XML document found in an archive.
type Entry struct {
	// Name is the entry path, prefixed with any enclosing zip entries.
	Name string
	Data []byte
}

// ReadArchive returns every .xml entry of a STIG zip, descending into nested
// .zip entries (DISA ships compilation archives that way).
func ReadArchive(r io.ReaderAt, size int64) ([]Entry, error) {
	return readArchive(r, size, "", 0)
}

func readArchive(r io.ReaderAt, size int64, prefix string, depth int) ([]Entry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	var out []Entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if ext != ".xml" && ext != ".zip" {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return out, fmt.Errorf("read %s%s: %w", prefix, f.Name, err)
		}
		if ext == ".xml" {
			out = append(out, Entry{Name: prefix + f.Name, Data: data})
			continue
		}
		if depth >= maxNesting {
			continue
		}
		nested, err := readArchive(bytes.NewReader(data), int64(len(data)), prefix+f.Name+"/", depth+1)
		if err != nil {
			return out, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// IsBenchmark reports whether an entry name looks like an XCCDF document
// rather than an OVAL or SCAP data stream shipped alongside it.
func IsBenchmark(name string) bool {
	base := strings.ToLower(path.Base(name))
	return strings.HasSuffix(base, "xccdf.xml") || !strings.Contains(base, "oval")
}

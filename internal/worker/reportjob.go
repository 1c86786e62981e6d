package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
	"github.com/yourorg/stigkeeper/internal/report"
	"github.com/yourorg/stigkeeper/internal/s3"
)

// Uploader copies generated reports to object storage.
type Uploader interface {
	UploadFile(ctx context.Context, bucket, key, filePath string, contentType string) error
}

// Publish is the optional upload target shared by the report jobs.
type Publish struct {
	Uploader Uploader
	Bucket   string
}

func (pub Publish) upload(ctx context.Context, p *Progress, files []string) error {
	if pub.Uploader == nil || pub.Bucket == "" {
		return nil
	}
	for _, f := range files {
		p.Status("Uploading " + filepath.Base(f) + "...")
		key := filepath.Base(f)
		err := retry(ctx, 3, 200*time.Millisecond, func() error {
			return pub.Uploader.UploadFile(ctx, pub.Bucket, key, f, s3.ContentType(f))
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EMASSExportJob writes the eMASS Test Result Import workbook.
type EMASSExportJob struct {
	Store    *db.Store
	OutPath  string
	TestedBy string
	Now      func() time.Time
	Publish  Publish
}

func (j *EMASSExportJob) Kind() string { return "emass-export" }

func (j *EMASSExportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Init(3, 0)
	p.Status("Collecting checklist entries...")
	rows, err := j.Store.ListFindingRows(ctx, db.CheckFilter{})
	if err != nil {
		return res, err
	}
	imported, err := j.Store.ListImportedCCIs(ctx)
	if err != nil {
		return res, err
	}
	p.Step(1)

	now := nowFunc(j.Now)()
	p.Status("Grouping by CCI...")
	results := report.BuildTestResults(rows, imported, j.TestedBy, now)
	for _, r := range results {
		switch r.Compliance {
		case report.NonCompliant:
			res.count("non-compliant", 1)
		case report.Compliant:
			res.count("compliant", 1)
		default:
			res.count("carried", 1)
		}
	}
	p.Step(1)

	p.Status("Writing " + filepath.Base(j.OutPath) + "...")
	var buf bytes.Buffer
	if err := report.WriteTestResults(&buf, results, now); err != nil {
		return res, err
	}
	if err := writeFile(j.OutPath, buf.Bytes()); err != nil {
		return res, err
	}
	res.Outputs = append(res.Outputs, j.OutPath)
	p.Step(1)
	if err := j.Publish.upload(ctx, p, res.Outputs); err != nil {
		return res, err
	}
	p.Status("Done!")
	return res, nil
}

// EMASSImportJob records the latest test results of an eMASS workbook
// against the CCIs they name.
type EMASSImportJob struct {
	Store *db.Store
	Path  string
}

func (j *EMASSImportJob) Kind() string { return "emass-import" }

func (j *EMASSImportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Init(2, 0)
	p.Status("Reading " + filepath.Base(j.Path) + "...")
	f, err := os.Open(j.Path)
	if err != nil {
		return res, err
	}
	results, bad, err := report.ReadTestResults(f)
	f.Close()
	if err != nil {
		return res, err
	}
	for _, msg := range bad {
		p.Warn(msg)
	}
	p.Step(1)

	p.Status("Updating CCIs...")
	skipped, err := j.Store.ImportEMASSResults(ctx, results)
	if err != nil {
		return res, err
	}
	for _, n := range skipped {
		p.Warn(fmt.Sprintf("%s is not in the database; skipped", model.FormatCCI(n)))
	}
	res.count("ccis", len(results)-len(skipped))
	p.Step(1)
	p.Status("Done!")
	return res, nil
}

// FindingsReportJob writes the detailed findings workbook.
type FindingsReportJob struct {
	Store   *db.Store
	AssetID int64
	OutPath string
	Publish Publish
}

func (j *FindingsReportJob) Kind() string { return "findings-report" }

func (j *FindingsReportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Init(2, 0)
	p.Status("Collecting checklist entries...")
	rows, err := j.Store.ListFindingRows(ctx, db.CheckFilter{AssetID: j.AssetID})
	if err != nil {
		return res, err
	}
	p.Step(1)
	p.Status("Writing " + filepath.Base(j.OutPath) + "...")
	var buf bytes.Buffer
	if err := report.WriteFindings(&buf, rows); err != nil {
		return res, err
	}
	if err := writeFile(j.OutPath, buf.Bytes()); err != nil {
		return res, err
	}
	for _, r := range rows {
		if r.Check.Status == model.StatusOpen {
			res.count("open", 1)
		}
	}
	res.Outputs = append(res.Outputs, j.OutPath)
	p.Step(1)
	if err := j.Publish.upload(ctx, p, res.Outputs); err != nil {
		return res, err
	}
	p.Status("Done!")
	return res, nil
}

// NarrativeJob writes the findings narrative as Markdown and HTML. OutPath
// names the Markdown file; the HTML page is written beside it.
type NarrativeJob struct {
	Store   *db.Store
	AssetID int64
	OutPath string
	Now     func() time.Time
	Publish Publish
}

func (j *NarrativeJob) Kind() string { return "narrative-report" }

func (j *NarrativeJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Init(3, 0)
	p.Status("Collecting checklist entries...")
	rows, err := j.Store.ListFindingRows(ctx, db.CheckFilter{AssetID: j.AssetID, OpenOnly: true})
	if err != nil {
		return res, err
	}
	res.count("open", len(rows))
	p.Step(1)

	p.Status("Writing narrative...")
	var md bytes.Buffer
	if err := report.Narrative(&md, rows, nowFunc(j.Now)()); err != nil {
		return res, err
	}
	if err := writeFile(j.OutPath, md.Bytes()); err != nil {
		return res, err
	}
	p.Step(1)

	htmlPath := replaceExt(j.OutPath, ".html")
	var page bytes.Buffer
	if err := report.RenderHTML(&page, "Findings Narrative", md.Bytes()); err != nil {
		return res, err
	}
	if err := writeFile(htmlPath, page.Bytes()); err != nil {
		return res, err
	}
	res.Outputs = append(res.Outputs, j.OutPath, htmlPath)
	p.Step(1)
	if err := j.Publish.upload(ctx, p, res.Outputs); err != nil {
		return res, err
	}
	p.Status("Done!")
	return res, nil
}

// STIGHTMLJob writes one HTML page per STIG plus an index page.
type STIGHTMLJob struct {
	Store   *db.Store
	STIGID  int64
	OutDir  string
	Publish Publish
}

func (j *STIGHTMLJob) Kind() string { return "stig-html" }

func (j *STIGHTMLJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	var stigs []model.STIG
	if j.STIGID != 0 {
		st, err := j.Store.GetSTIG(ctx, j.STIGID)
		if err != nil {
			return res, err
		}
		stigs = []model.STIG{st}
	} else {
		var err error
		if stigs, err = j.Store.ListSTIGs(ctx); err != nil {
			return res, err
		}
	}
	all, err := j.Store.ListCCIs(ctx)
	if err != nil {
		return res, err
	}
	ccis := make(map[int64]model.CCI, len(all))
	for _, c := range all {
		ccis[c.ID] = c
	}

	p.Init(len(stigs)+1, 0)
	for _, st := range stigs {
		p.Status("Exporting " + st.Title + "...")
		checks, err := j.Store.ListSTIGChecks(ctx, st.ID)
		if err != nil {
			return res, err
		}
		var md, page bytes.Buffer
		if err := report.STIGMarkdown(&md, st, checks, ccis); err != nil {
			return res, err
		}
		if err := report.RenderHTML(&page, st.String(), md.Bytes()); err != nil {
			return res, err
		}
		out := filepath.Join(j.OutDir, report.STIGPageName(st))
		if err := writeFile(out, page.Bytes()); err != nil {
			return res, err
		}
		res.Outputs = append(res.Outputs, out)
		res.count("stigs", 1)
		p.Step(1)
	}

	var md, page bytes.Buffer
	if err := report.IndexMarkdown(&md, stigs); err != nil {
		return res, err
	}
	if err := report.RenderHTML(&page, "STIGs", md.Bytes()); err != nil {
		return res, err
	}
	index := filepath.Join(j.OutDir, "index.html")
	if err := writeFile(index, page.Bytes()); err != nil {
		return res, err
	}
	res.Outputs = append(res.Outputs, index)
	p.Step(1)
	if err := j.Publish.upload(ctx, p, res.Outputs); err != nil {
		return res, err
	}
	p.Status("Done!")
	return res, nil
}

func nowFunc(f func() time.Time) func() time.Time {
	if f == nil {
		return time.Now
	}
	return f
}

func replaceExt(path, ext string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ext
}

package worker

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
	"github.com/yourorg/stigkeeper/internal/s3"
	"github.com/yourorg/stigkeeper/internal/xccdf"
)

// ObjectStore is the part of the s3 client the STIG import needs.
type ObjectStore interface {
	ListZips(ctx context.Context, bucket, prefix string) ([]s3.Object, error)
	DownloadToFile(ctx context.Context, bucket, key, filePath string) error
}

// STIGImportJob loads STIG benchmark archives. Archives are local paths,
// objects under Bucket/Prefix, the library compilation at LibraryURL, or
// any mix of those.
type STIGImportJob struct {
	Store       *db.Store
	Paths       []string
	Objects     ObjectStore
	Bucket      string
	Prefix      string
	Downloader  *Downloader
	LibraryURL  string
	ScratchDir  string
	Concurrency int
	Logger      *slog.Logger
}

type parsedArchive struct {
	path       string
	benchmarks []*xccdf.Benchmark
}

func (j *STIGImportJob) Kind() string { return "stig-import" }

func (j *STIGImportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	logger := j.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ccis, err := j.Store.CCINumbers(ctx)
	if err != nil {
		return res, err
	}
	if len(ccis) == 0 {
		return res, fmt.Errorf("no CCIs loaded; run the CCI import first: %w", db.ErrMissingParent)
	}

	paths := append([]string(nil), j.Paths...)
	fromBucket := j.Objects != nil && j.Bucket != ""
	fromLibrary := j.Downloader != nil && j.LibraryURL != ""
	if fromBucket || fromLibrary {
		dir, err := os.MkdirTemp(j.ScratchDir, "stigs-")
		if err != nil {
			return res, fmt.Errorf("scratch dir: %w", err)
		}
		defer os.RemoveAll(dir)
		if fromBucket {
			fetched, err := j.fetch(ctx, p, dir)
			if err != nil {
				return res, err
			}
			paths = append(paths, fetched...)
		}
		if fromLibrary {
			lib, err := j.downloadLibrary(ctx, p, dir)
			if err != nil {
				return res, err
			}
			paths = append(paths, lib)
		}
	}
	if len(paths) == 0 {
		return res, errors.New("no STIG archives to import")
	}

	p.Init(len(paths)*2, 0)
	parsed := make([]parsedArchive, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))
	for i, file := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.Status("Extracting " + filepath.Base(file) + "...")
			parsed[i] = parseArchive(file, p, logger)
			p.Step(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, a := range parsed {
		if len(a.benchmarks) == 0 {
			p.Step(1)
			continue
		}
		p.Status("Parsing " + filepath.Base(a.path) + "...")
		err := j.Store.BulkLoad(ctx, func(b *db.Batch) error {
			for _, bm := range a.benchmarks {
				if err := addBenchmark(b, p, bm, ccis, &res); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("import %s: %w", a.path, err)
		}
		p.Step(1)
	}
	p.Status("Done!")
	return res, nil
}

// fetch downloads the archives under the configured prefix into dir.
func (j *STIGImportJob) fetch(ctx context.Context, p *Progress, dir string) ([]string, error) {
	p.Status("Listing " + j.Bucket + "/" + j.Prefix + "...")
	objs, err := j.Objects.ListZips(ctx, j.Bucket, j.Prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(objs))
	for i, o := range objs {
		p.Status(fmt.Sprintf("Downloading %s (%s)...", o.Key, humanize.Bytes(uint64(o.Size))))
		local := filepath.Join(dir, fmt.Sprintf("%03d-%s", i, path.Base(o.Key)))
		err := retry(ctx, 3, 200*time.Millisecond, func() error {
			return j.Objects.DownloadToFile(ctx, j.Bucket, o.Key, local)
		})
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", o.Key, err)
		}
		out = append(out, local)
	}
	return out, nil
}

// downloadLibrary saves the STIG library compilation zip into dir.
func (j *STIGImportJob) downloadLibrary(ctx context.Context, p *Progress, dir string) (string, error) {
	p.Status("Downloading STIG library...")
	body, err := j.Downloader.Get(ctx, j.LibraryURL)
	if err != nil {
		return "", err
	}
	name := "stig-library.zip"
	if u, err := url.Parse(j.LibraryURL); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".zip") {
		name = path.Base(u.Path)
	}
	local := filepath.Join(dir, "library-"+name)
	if err := os.WriteFile(local, body, 0o600); err != nil {
		return "", fmt.Errorf("save %s: %w", j.LibraryURL, err)
	}
	return local, nil
}

// parseArchive extracts and parses every benchmark in one archive. Problems
// with individual documents become warnings.
func parseArchive(file string, p *Progress, logger *slog.Logger) parsedArchive {
	a := parsedArchive{path: file}
	data, err := os.ReadFile(file)
	if err != nil {
		p.Warn(fmt.Sprintf("%s: %v", file, err))
		return a
	}
	sum := blake3.Sum256(data)
	logger.Info("stig archive", "file", filepath.Base(file), "size", humanize.Bytes(uint64(len(data))), "blake3", hex.EncodeToString(sum[:]))

	entries, err := xccdf.ReadArchive(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		p.Warn(fmt.Sprintf("%s: %v", filepath.Base(file), err))
	}
	for _, e := range entries {
		if !xccdf.IsBenchmark(e.Name) {
			continue
		}
		bm, err := xccdf.Parse(bytes.NewReader(e.Data))
		if bm == nil {
			p.Warn(fmt.Sprintf("%s: %s: %v", filepath.Base(file), e.Name, err))
			continue
		}
		if err != nil {
			p.Warn(fmt.Sprintf("%s: %s parsed partially: %v", filepath.Base(file), e.Name, err))
		}
		bm.STIG.FileName = path.Base(e.Name)
		a.benchmarks = append(a.benchmarks, bm)
	}
	return a
}

func addBenchmark(b *db.Batch, p *Progress, bm *xccdf.Benchmark, ccis map[int]int64, res *Result) error {
	st := bm.STIG
	exists, err := b.HasSTIG(st.Title, st.Version, st.Release)
	if err != nil {
		return err
	}
	if exists {
		p.Warn(fmt.Sprintf("STIG already exists: %s", st))
		return nil
	}
	checks := resolveCCIs(st, bm.Checks, ccis, p)
	switch err := b.AddSTIG(&st, checks); {
	case err == nil:
		res.count("stigs", 1)
		res.count("checks", len(checks))
	case precondition(err):
		p.Warn(err.Error())
	default:
		return err
	}
	return nil
}

// resolveCCIs sets CCIID on each rule. Rules whose CCI is unknown are
// remapped to CCI-000366; when that is missing too they are dropped.
func resolveCCIs(st model.STIG, checks []model.STIGCheck, ccis map[int]int64, p *Progress) []model.STIGCheck {
	out := make([]model.STIGCheck, 0, len(checks))
	fallback, hasFallback := ccis[model.DefaultCCINumber]
	for _, c := range checks {
		if id, ok := ccis[c.CCINumber]; ok {
			c.CCIID = id
			out = append(out, c)
			continue
		}
		ref := model.FormatCCI(c.CCINumber)
		if c.CCINumber == 0 {
			ref = "no CCI"
		}
		if !hasFallback {
			p.Warn(fmt.Sprintf("%s: rule %s references %s and %s is missing; skipped",
				st.Title, c.Rule, ref, model.FormatCCI(model.DefaultCCINumber)))
			continue
		}
		p.Warn(fmt.Sprintf("%s: rule %s references %s; mapped to %s",
			st.Title, c.Rule, ref, model.FormatCCI(model.DefaultCCINumber)))
		c.CCIID = fallback
		out = append(out, c)
	}
	return out
}

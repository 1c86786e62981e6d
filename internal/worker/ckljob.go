package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourorg/stigkeeper/internal/ckl"
	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
)

// CKLExportJob writes one checklist per attached STIG. Zero AssetID or
// STIGID exports every asset or STIG.
type CKLExportJob struct {
	Store   *db.Store
	AssetID int64
	STIGID  int64
	OutDir  string
}

func (j *CKLExportJob) Kind() string { return "ckl-export" }

func (j *CKLExportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Status("Collecting checklist entries...")
	rows, err := j.Store.ListFindingRows(ctx, db.CheckFilter{AssetID: j.AssetID, STIGID: j.STIGID})
	if err != nil {
		return res, err
	}
	if err := os.MkdirAll(j.OutDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}

	type key struct{ asset, stig int64 }
	groups := map[key][]model.FindingRow{}
	var order []key
	for _, r := range rows {
		k := key{r.Asset.ID, r.STIG.ID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	p.Init(len(order), 0)
	for _, k := range order {
		g := groups[k]
		asset, st := g[0].Asset, g[0].STIG
		p.Status("Writing " + asset.HostName + " - " + st.Title + "...")
		cklRows := make([]ckl.Row, 0, len(g))
		for _, r := range g {
			cklRows = append(cklRows, ckl.Row{Rule: r.Rule, Check: r.Check, CCI: r.CCI.Number})
		}
		name := filepath.Join(j.OutDir, ckl.FileName(asset.HostName, st))
		if err := writeChecklist(name, ckl.New(asset, st, cklRows)); err != nil {
			return res, err
		}
		res.Outputs = append(res.Outputs, name)
		res.count("checklists", 1)
		p.Step(1)
	}
	p.Status("Done!")
	return res, nil
}

func writeChecklist(name string, c *ckl.Checklist) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ckl.Write(f, c)
}

// CKLImportJob applies checklist files to the store. STIGs that are not
// loaded are skipped. An unknown host becomes a new asset once at least one
// of its STIGs is loaded.
type CKLImportJob struct {
	Store *db.Store
	Paths []string
}

func (j *CKLImportJob) Kind() string { return "ckl-import" }

func (j *CKLImportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Init(len(j.Paths), 0)
	for _, path := range j.Paths {
		p.Status("Importing " + filepath.Base(path) + "...")
		if err := j.importFile(ctx, p, path, &res); err != nil {
			return res, err
		}
		p.Step(1)
	}
	p.Status("Done!")
	return res, nil
}

func (j *CKLImportJob) importFile(ctx context.Context, p *Progress, path string, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	c, err := ckl.Read(f)
	f.Close()
	if err != nil {
		p.Warn(fmt.Sprintf("%s: %v", filepath.Base(path), err))
		return nil
	}

	type loaded struct {
		stig  model.STIG
		vulns []ckl.Vuln
	}
	var stigs []loaded
	for _, is := range c.STIGs {
		want := is.STIG()
		st, err := j.Store.FindSTIG(ctx, want.Title, want.Version, want.Release)
		if errors.Is(err, db.ErrNotFound) {
			p.Warn(fmt.Sprintf("%s: STIG %s is not loaded; skipped", filepath.Base(path), want))
			continue
		}
		if err != nil {
			return err
		}
		stigs = append(stigs, loaded{st, is.Vulns})
	}
	if len(stigs) == 0 {
		return nil
	}

	asset, err := j.Store.GetAssetByHostname(ctx, c.Asset.ToAsset().HostName)
	switch {
	case errors.Is(err, db.ErrNotFound):
		asset = c.Asset.ToAsset()
		if err := j.Store.AddAsset(ctx, &asset); err != nil {
			return err
		}
		res.count("assets", 1)
	case err != nil:
		return err
	}

	for _, l := range stigs {
		attached, err := j.Store.IsAttached(ctx, asset.ID, l.stig.ID)
		if err != nil {
			return err
		}
		if !attached {
			if _, err := j.Store.AttachSTIG(ctx, asset.ID, l.stig.ID); err != nil {
				return err
			}
		}
		n, err := j.applyVulns(ctx, p, asset, l.stig, l.vulns)
		if err != nil {
			return err
		}
		res.count("checks", n)
	}
	return nil
}

// applyVulns matches VULN entries to checklist entries by rule id, falling
// back to the vuln number when the rule revision differs.
func (j *CKLImportJob) applyVulns(ctx context.Context, p *Progress, asset model.Asset, st model.STIG, vulns []ckl.Vuln) (int, error) {
	rules, err := j.Store.ListSTIGChecks(ctx, st.ID)
	if err != nil {
		return 0, err
	}
	byRule := make(map[string]int64, len(rules))
	byVuln := make(map[string]int64, len(rules))
	for _, r := range rules {
		byRule[r.Rule] = r.ID
		byVuln[r.VulnNum] = r.ID
	}
	entries, err := j.Store.ListCKLChecks(ctx, db.CheckFilter{AssetID: asset.ID, STIGID: st.ID})
	if err != nil {
		return 0, err
	}
	byCheck := make(map[int64]model.CKLCheck, len(entries))
	for _, e := range entries {
		byCheck[e.STIGCheckID] = e
	}

	var updates []model.CKLCheck
	for _, v := range vulns {
		ruleID, ok := byRule[v.Attr("Rule_ID")]
		if !ok {
			ruleID, ok = byVuln[v.Attr("Vuln_Num")]
		}
		entry, found := byCheck[ruleID]
		if !ok || !found {
			p.Warn(fmt.Sprintf("%s: rule %s not in %s; skipped", asset.HostName, v.Attr("Rule_ID"), st))
			continue
		}
		v.Apply(&entry)
		updates = append(updates, entry)
	}
	if err := j.Store.UpdateCKLChecks(ctx, updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}

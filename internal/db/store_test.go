package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yourorg/stigkeeper/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "stigkeeper_test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

type seeded struct {
	family  model.Family
	control model.Control
	cci366  model.CCI
	cci1    model.CCI
}

func seedReference(t *testing.T, s *Store) seeded {
	t.Helper()
	ctx := context.Background()
	var out seeded
	out.family = model.Family{Acronym: "AC", Description: "Access Control"}
	if err := s.AddFamily(ctx, &out.family); err != nil {
		t.Fatalf("AddFamily: %v", err)
	}
	out.control = model.Control{FamilyID: out.family.ID, Number: 2, Title: "Account Management"}
	if err := s.AddControl(ctx, &out.control); err != nil {
		t.Fatalf("AddControl: %v", err)
	}
	out.cci366 = model.CCI{ControlID: out.control.ID, Number: 366, Definition: "implements the security configuration settings"}
	if err := s.AddCCI(ctx, &out.cci366); err != nil {
		t.Fatalf("AddCCI 366: %v", err)
	}
	out.cci1 = model.CCI{ControlID: out.control.ID, Number: 1, Definition: "develops an access control policy"}
	if err := s.AddCCI(ctx, &out.cci1); err != nil {
		t.Fatalf("AddCCI 1: %v", err)
	}
	return out
}

func seedSTIG(t *testing.T, s *Store, ref seeded, title string) (model.STIG, []model.STIGCheck) {
	t.Helper()
	st := model.STIG{Title: title, Release: "Release: 1 Benchmark Date: 01 Jan 2024", Version: 1, BenchmarkID: "Test_STIG"}
	checks := []model.STIGCheck{
		{CCIID: ref.cci366.ID, Rule: "SV-1r1_rule", VulnNum: "V-1", Severity: model.SeverityHigh, Title: "first"},
		{CCIID: ref.cci1.ID, Rule: "SV-2r1_rule", VulnNum: "V-2", Severity: model.SeverityMedium, Title: "second"},
		{CCIID: ref.cci366.ID, Rule: "SV-3r1_rule", VulnNum: "V-3", Severity: model.SeverityLow, Title: "third"},
	}
	if err := s.AddSTIG(context.Background(), &st, checks); err != nil {
		t.Fatalf("AddSTIG: %v", err)
	}
	return st, checks
}

func TestOpenMigratesToLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	ctx := context.Background()
	s, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Errorf("version = %d, want %d", v, len(migrations))
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening an up-to-date database must not re-run anything.
	s, err = Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if v, _ := s.SchemaVersion(ctx); v != len(migrations) {
		t.Errorf("version after reopen = %d", v)
	}
}

func TestDuplicateReferenceDataRejected(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	ctx := context.Background()

	if err := s.AddFamily(ctx, &model.Family{Acronym: "AC"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate family: got %v, want ErrDuplicate", err)
	}
	if err := s.AddControl(ctx, &model.Control{FamilyID: ref.family.ID, Number: 2}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate control: got %v, want ErrDuplicate", err)
	}
	if err := s.AddCCI(ctx, &model.CCI{ControlID: ref.control.ID, Number: 366}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate cci: got %v, want ErrDuplicate", err)
	}
	ccis, err := s.ListCCIs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ccis) != 2 {
		t.Errorf("got %d CCIs after rejected duplicate, want 2", len(ccis))
	}
}

func TestParentsMustExist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.AddControl(ctx, &model.Control{FamilyID: 42, Number: 1}); !errors.Is(err, ErrMissingParent) {
		t.Errorf("control without family: got %v", err)
	}
	if err := s.AddCCI(ctx, &model.CCI{ControlID: 42, Number: 7}); !errors.Is(err, ErrMissingParent) {
		t.Errorf("cci without control: got %v", err)
	}
	st := model.STIG{Title: "orphan", Version: 1}
	err := s.AddSTIG(ctx, &st, []model.STIGCheck{{CCIID: 99, Rule: "SV-1"}})
	if !errors.Is(err, ErrMissingParent) {
		t.Errorf("stig check without cci: got %v", err)
	}
	if list, _ := s.ListSTIGs(ctx); len(list) != 0 {
		t.Errorf("rejected STIG was written: %v", list)
	}
}

func TestFindControlByTextualID(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	id, err := model.ParseControlID("AC-2")
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.FindControl(context.Background(), id)
	if err != nil {
		t.Fatalf("FindControl: %v", err)
	}
	if c.ID != ref.control.ID || c.Family != "AC" {
		t.Errorf("got %+v", c)
	}
	if _, err := s.FindControl(context.Background(), model.ControlID{Family: "AC", Number: 2, Enhancement: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("enhancement lookup: got %v, want ErrNotFound", err)
	}
}

func TestDuplicateSTIGRejected(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	st, _ := seedSTIG(t, s, ref, "Windows Server")
	again := model.STIG{Title: st.Title, Version: st.Version, Release: st.Release}
	if err := s.AddSTIG(context.Background(), &again, nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
	found, err := s.FindSTIG(context.Background(), st.Title, st.Version, st.Release)
	if err != nil || found.ID != st.ID {
		t.Errorf("FindSTIG = %+v, %v", found, err)
	}
}

func TestAttachCreatesNotReviewedChecks(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	st, checks := seedSTIG(t, s, ref, "Windows Server")
	ctx := context.Background()

	asset := model.Asset{HostName: "web01"}
	if err := s.AddAsset(ctx, &asset); err != nil {
		t.Fatal(err)
	}
	n, err := s.AttachSTIG(ctx, asset.ID, st.ID)
	if err != nil {
		t.Fatalf("AttachSTIG: %v", err)
	}
	if n != len(checks) {
		t.Errorf("created %d entries, want %d", n, len(checks))
	}
	got, err := s.ListCKLChecks(ctx, CheckFilter{AssetID: asset.ID, STIGID: st.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(checks) {
		t.Fatalf("got %d checklist entries, want %d", len(got), len(checks))
	}
	seen := map[int64]bool{}
	for _, c := range got {
		if c.Status != model.StatusNotReviewed {
			t.Errorf("entry %d status %v, want Not_Reviewed", c.ID, c.Status)
		}
		if seen[c.STIGCheckID] {
			t.Errorf("rule %d has two entries", c.STIGCheckID)
		}
		seen[c.STIGCheckID] = true
	}

	if _, err := s.AttachSTIG(ctx, asset.ID, st.ID); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second attach: got %v, want ErrDuplicate", err)
	}
	if got, _ := s.ListCKLChecks(ctx, CheckFilter{AssetID: asset.ID}); len(got) != len(checks) {
		t.Errorf("second attach changed entry count to %d", len(got))
	}
}

func TestDeleteAssetWithSTIGsFails(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	st, checks := seedSTIG(t, s, ref, "Windows Server")
	ctx := context.Background()

	asset := model.Asset{HostName: "db01"}
	if err := s.AddAsset(ctx, &asset); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AttachSTIG(ctx, asset.ID, st.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAsset(ctx, asset.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("DeleteAsset: got %v, want ErrInUse", err)
	}
	if _, err := s.GetAsset(ctx, asset.ID); err != nil {
		t.Errorf("asset gone after failed delete: %v", err)
	}
	if got, _ := s.ListCKLChecks(ctx, CheckFilter{AssetID: asset.ID}); len(got) != len(checks) {
		t.Errorf("failed delete changed entries: %d", len(got))
	}

	if err := s.DetachSTIG(ctx, asset.ID, st.ID); err != nil {
		t.Fatalf("DetachSTIG: %v", err)
	}
	if got, _ := s.ListCKLChecks(ctx, CheckFilter{AssetID: asset.ID}); len(got) != 0 {
		t.Errorf("detach left %d entries", len(got))
	}
	if err := s.DeleteAsset(ctx, asset.ID); err != nil {
		t.Errorf("DeleteAsset after detach: %v", err)
	}
}

func TestDeleteSTIGReferencedByAssetFails(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	st, checks := seedSTIG(t, s, ref, "RHEL 9")
	ctx := context.Background()

	asset := model.Asset{HostName: "app01"}
	if err := s.AddAsset(ctx, &asset); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AttachSTIG(ctx, asset.ID, st.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSTIG(ctx, st.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("DeleteSTIG: got %v, want ErrInUse", err)
	}
	if got, _ := s.ListSTIGChecks(ctx, st.ID); len(got) != len(checks) {
		t.Errorf("failed delete changed rules: %d", len(got))
	}
	if err := s.DeleteReferenceData(ctx); !errors.Is(err, ErrInUse) {
		t.Errorf("DeleteReferenceData with STIGs: got %v, want ErrInUse", err)
	}

	if err := s.DetachSTIG(ctx, asset.ID, st.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSTIG(ctx, st.ID); err != nil {
		t.Fatalf("DeleteSTIG after detach: %v", err)
	}
	if _, err := s.GetSTIG(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSTIG after delete: %v", err)
	}
	if err := s.DeleteReferenceData(ctx); err != nil {
		t.Errorf("DeleteReferenceData: %v", err)
	}
	if has, _ := s.HasReferenceData(ctx); has {
		t.Error("reference data survived delete")
	}
}

func TestDuplicateHostnameRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.AddAsset(ctx, &model.Asset{HostName: "web01"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddAsset(ctx, &model.Asset{HostName: " web01 "}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
}

func TestUpdateCKLCheckAndFindingRows(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	st, checks := seedSTIG(t, s, ref, "Windows Server")
	ctx := context.Background()

	asset := model.Asset{HostName: "web01", HostIP: "10.0.0.5"}
	if err := s.AddAsset(ctx, &asset); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AttachSTIG(ctx, asset.ID, st.ID); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ListCKLChecks(ctx, CheckFilter{AssetID: asset.ID})
	if err != nil {
		t.Fatal(err)
	}
	var open model.CKLCheck
	for _, e := range entries {
		if e.STIGCheckID == checks[0].ID {
			open = e
		}
	}
	open.Status = model.StatusOpen
	open.FindingDetails = "password policy not enforced"
	open.SeverityOverride = model.SeverityLow
	if err := s.UpdateCKLCheck(ctx, open); err != nil {
		t.Fatalf("UpdateCKLCheck: %v", err)
	}

	rows, err := s.ListFindingRows(ctx, CheckFilter{OpenOnly: true})
	if err != nil {
		t.Fatalf("ListFindingRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d open rows, want 1", len(rows))
	}
	r := rows[0]
	if r.Asset.HostName != "web01" || r.STIG.ID != st.ID || r.Rule.Rule != "SV-1r1_rule" {
		t.Errorf("unexpected join: %+v", r)
	}
	if r.Control.String() != "AC-2" || r.CCI.Number != 366 {
		t.Errorf("control/cci = %s/%d", r.Control, r.CCI.Number)
	}
	if r.Severity() != model.SeverityLow {
		t.Errorf("effective severity %v, want low override", r.Severity())
	}
	if r.Check.FindingDetails != open.FindingDetails {
		t.Errorf("details = %q", r.Check.FindingDetails)
	}

	all, err := s.ListFindingRows(ctx, CheckFilter{AssetID: asset.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("got %d rows, want 3", len(all))
	}
}

func TestBulkLoadRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.BulkLoad(ctx, func(b *Batch) error {
		if err := b.AddFamily(&model.Family{Acronym: "AU"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("BulkLoad: got %v", err)
	}
	if fams, _ := s.ListFamilies(ctx); len(fams) != 0 {
		t.Errorf("rolled back load left %d families", len(fams))
	}
}

func TestBulkLoadSkipsDuplicateSTIG(t *testing.T) {
	s := openTestStore(t)
	ref := seedReference(t, s)
	ctx := context.Background()

	err := s.BulkLoad(ctx, func(b *Batch) error {
		first := model.STIG{Title: "Apache", Version: 2, Release: "R1"}
		if err := b.AddSTIG(&first, []model.STIGCheck{{CCIID: ref.cci366.ID, Rule: "SV-10"}}); err != nil {
			return err
		}
		dup := model.STIG{Title: "Apache", Version: 2, Release: "R1"}
		if err := b.AddSTIG(&dup, nil); !errors.Is(err, ErrDuplicate) {
			t.Errorf("duplicate in batch: got %v", err)
		}
		bad := model.STIG{Title: "Nginx", Version: 1, Release: "R1"}
		if err := b.AddSTIG(&bad, []model.STIGCheck{{CCIID: 12345, Rule: "SV-11"}}); !errors.Is(err, ErrMissingParent) {
			t.Errorf("missing cci in batch: got %v", err)
		}
		found, err := b.HasSTIG("Apache", 2, "R1")
		if err != nil || !found {
			t.Errorf("HasSTIG = %v, %v", found, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}
	stigs, err := s.ListSTIGs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stigs) != 1 || stigs[0].Title != "Apache" {
		t.Errorf("stigs = %v", stigs)
	}
}

func TestEMASSImportAndClear(t *testing.T) {
	s := openTestStore(t)
	seedReference(t, s)
	ctx := context.Background()

	skipped, err := s.ImportEMASSResults(ctx, []EMASSResult{
		{CCINumber: 366, Compliance: "Compliant", DateTested: "01-Feb-2024", TestedBy: "auditor", TestResults: "ok"},
		{CCINumber: 999999, Compliance: "Non-Compliant"},
	})
	if err != nil {
		t.Fatalf("ImportEMASSResults: %v", err)
	}
	if len(skipped) != 1 || skipped[0] != 999999 {
		t.Errorf("skipped = %v", skipped)
	}
	c, err := s.GetCCIByNumber(ctx, 366)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsImport || c.ImportCompliance != "Compliant" || c.ImportTestedBy != "auditor" {
		t.Errorf("cci after import: %+v", c)
	}
	other, _ := s.GetCCIByNumber(ctx, 1)
	if other.IsImport {
		t.Error("import touched an unrelated CCI")
	}
	if ok, _ := s.IsEMASSImport(ctx); !ok {
		t.Error("IsEMASSImport = false")
	}
	if err := s.ClearEMASSImport(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.IsEMASSImport(ctx); ok {
		t.Error("IsEMASSImport after clear = true")
	}
}

func TestJobProgressIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, "job-1", "cci-import"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkRunning(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(ctx, "job-1", 40, "downloading", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(ctx, "job-1", 10, "stale", 2); err != nil {
		t.Fatal(err)
	}
	j, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.ProgressPct != 40 || j.ProgressMsg != "downloading" || j.Warnings != 2 {
		t.Errorf("job = %+v", j)
	}
	if j.StartedAt == nil {
		t.Error("StartedAt not set")
	}
	if err := s.MarkDone(ctx, "job-1", "completed", 2); err != nil {
		t.Fatal(err)
	}
	j, _ = s.GetJob(ctx, "job-1")
	if j.Status != model.JobDone || j.ProgressPct != 100 || j.FinishedAt == nil {
		t.Errorf("done job = %+v", j)
	}
	if err := s.MarkFailed(ctx, "job-1", "late failure", 0); err != nil {
		t.Fatal(err)
	}
	if j, _ = s.GetJob(ctx, "job-1"); j.Status != model.JobDone {
		t.Errorf("MarkFailed overwrote a finished job: %s", j.Status)
	}
}

func TestFailStaleRunning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateJob(ctx, id, "stig-import"); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.MarkRunning(ctx, "a")
	_ = s.MarkRunning(ctx, "b")
	_ = s.MarkDone(ctx, "b", "completed", 0)

	n, err := s.FailStaleRunning(ctx, "interrupted")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("failed %d stale jobs, want 2", n)
	}
	jobs, err := s.ListJobs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, j := range jobs {
		want := model.JobFailed
		if j.ID == "b" {
			want = model.JobDone
		}
		if j.Status != want {
			t.Errorf("job %s status %s, want %s", j.ID, j.Status, want)
		}
	}
}

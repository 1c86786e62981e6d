package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/feed"
	"github.com/yourorg/stigkeeper/internal/model"
)

// CCIImportJob populates families, controls and CCIs from the NIST and DISA
// feeds.
type CCIImportJob struct {
	Store       *db.Store
	Downloader  *Downloader
	NISTBaseURL string
	CCIListURL  string
	// CCIArchivePath reads the CCI list from a local zip instead of
	// CCIListURL.
	CCIArchivePath string
}

func (j *CCIImportJob) Kind() string { return "cci-import" }

func (j *CCIImportJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	base := strings.TrimRight(j.NISTBaseURL, "/")
	p.Init(4, 0)

	p.Status("Downloading families...")
	page, err := j.Downloader.Get(ctx, base+"/800-53/Rev4")
	if err != nil {
		return res, err
	}
	families, err := feed.ParseFamilies(bytes.NewReader(page))
	if err != nil {
		p.Warn(fmt.Sprintf("family index parsed partially: %v", err))
	}
	families = append(families, feed.PrivacyFamilies...)
	p.Step(1)

	p.Status("Downloading controls...")
	body, err := j.Downloader.Get(ctx, base+feed.ControlFeedPath)
	if err != nil {
		return res, err
	}
	controls, err := feed.ParseControls(bytes.NewReader(body))
	if err != nil {
		p.Warn(fmt.Sprintf("control feed parsed partially: %v", err))
	}
	controls = append(controls, feed.PrivacyControls...)
	p.Step(1)

	p.Status("Downloading CCIs...")
	archive, err := j.cciArchive(ctx)
	if err != nil {
		return res, err
	}
	p.Step(1)
	p.Status("Extracting CCIs...")
	ccis, skipped, err := feed.ReadCCIArchive(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return res, err
	}
	for _, id := range skipped {
		p.Warn(fmt.Sprintf("%s has no rev4 control reference; skipped", id))
	}
	p.Step(1)

	p.Init(len(families)+len(controls)+len(ccis), 0)
	err = j.Store.BulkLoad(ctx, func(b *db.Batch) error {
		if err := addFamilies(b, p, families, &res); err != nil {
			return err
		}
		if err := addControls(b, p, controls, &res); err != nil {
			return err
		}
		return addCCIs(b, p, ccis, &res)
	})
	if err != nil {
		return res, err
	}
	p.Status("Done!")
	return res, nil
}

func (j *CCIImportJob) cciArchive(ctx context.Context) ([]byte, error) {
	if j.CCIArchivePath != "" {
		data, err := os.ReadFile(j.CCIArchivePath)
		if err != nil {
			return nil, fmt.Errorf("read cci archive: %w", err)
		}
		return data, nil
	}
	return j.Downloader.Get(ctx, j.CCIListURL)
}

// precondition reports whether err is a rejected row that should become a
// warning rather than abort the load.
func precondition(err error) bool {
	return errors.Is(err, db.ErrDuplicate) || errors.Is(err, db.ErrMissingParent) || errors.Is(err, db.ErrNotFound)
}

func addFamilies(b *db.Batch, p *Progress, families []feed.FamilyEntry, res *Result) error {
	for _, f := range families {
		p.Status("Adding " + f.Acronym + " - " + f.Description + "...")
		fam := model.Family{Acronym: f.Acronym, Description: f.Description}
		err := b.AddFamily(&fam)
		p.Step(1)
		switch {
		case err == nil:
			res.count("families", 1)
		case precondition(err):
			p.Warn(err.Error())
		default:
			return err
		}
	}
	return nil
}

func addControls(b *db.Batch, p *Progress, controls []feed.ControlEntry, res *Result) error {
	familyIDs := map[string]int64{}
	for _, c := range controls {
		p.Step(1)
		id, err := model.ParseControlID(c.Number)
		if err != nil {
			p.Warn(fmt.Sprintf("control %q: %v", c.Number, err))
			continue
		}
		famID, ok := familyIDs[id.Family]
		if !ok {
			fam, found, err := b.FamilyByAcronym(id.Family)
			if err != nil {
				return err
			}
			if !found {
				p.Warn(fmt.Sprintf("control %s: family %s does not exist", id, id.Family))
				continue
			}
			famID = fam.ID
			familyIDs[id.Family] = famID
		}
		p.Status("Adding " + id.String())
		ctrl := model.Control{
			FamilyID:    famID,
			Family:      id.Family,
			Number:      id.Number,
			Enhancement: id.Enhancement,
			Title:       c.Title,
			Description: c.Description,
		}
		switch err := b.AddControl(&ctrl); {
		case err == nil:
			res.count("controls", 1)
		case precondition(err):
			p.Warn(err.Error())
		default:
			return err
		}
	}
	return nil
}

func addCCIs(b *db.Batch, p *Progress, ccis []feed.CCIEntry, res *Result) error {
	controlIDs := map[model.ControlID]int64{}
	for _, e := range ccis {
		p.Step(1)
		id, err := model.ParseControlID(e.Control)
		if err != nil {
			p.Warn(fmt.Sprintf("%s: control %q: %v", model.FormatCCI(e.Number), e.Control, err))
			continue
		}
		ctrlID, ok := controlIDs[id]
		if !ok {
			ctrl, found, err := b.FindControl(id)
			if err != nil {
				return err
			}
			if !found {
				p.Warn(fmt.Sprintf("%s: control %s does not exist; skipped", model.FormatCCI(e.Number), id))
				continue
			}
			ctrlID = ctrl.ID
			controlIDs[id] = ctrlID
		}
		p.Status("Adding " + model.FormatCCI(e.Number) + "...")
		c := model.CCI{ControlID: ctrlID, Number: e.Number, Definition: e.Definition}
		switch err := b.AddCCI(&c); {
		case err == nil:
			res.count("ccis", 1)
		case precondition(err):
			p.Warn(err.Error())
		default:
			return err
		}
	}
	return nil
}

// RemapJob moves rules that were imported onto CCI-000366 to the CCI they
// reference once that CCI has been loaded.
type RemapJob struct {
	Store *db.Store
}

func (j *RemapJob) Kind() string { return "cci-remap" }

func (j *RemapJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	p.Init(1, 0)
	p.Status("Remapping unmapped CCIs...")
	rr, err := j.Store.RemapUnmapped(ctx)
	if err != nil {
		return res, err
	}
	res.count("remapped", rr.Remapped)
	if rr.Unmapped > 0 {
		p.Warn(fmt.Sprintf("%d rules still reference unknown CCIs and stay on %s",
			rr.Unmapped, model.FormatCCI(model.DefaultCCINumber)))
	}
	p.Step(1)
	p.Status("Done!")
	return res, nil
}

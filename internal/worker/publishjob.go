package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
)

// Central receives published checklist results.
type Central interface {
	PublishAsset(ctx context.Context, a model.Asset, rows []model.FindingRow) error
}

// PublishJob pushes assets and their checklist results to the central
// database. AssetID 0 publishes every asset.
type PublishJob struct {
	Store   *db.Store
	Central Central
	AssetID int64
}

func (j *PublishJob) Kind() string { return "publish" }

func (j *PublishJob) Run(ctx context.Context, p *Progress) (Result, error) {
	var res Result
	var assets []model.Asset
	if j.AssetID != 0 {
		a, err := j.Store.GetAsset(ctx, j.AssetID)
		if err != nil {
			return res, err
		}
		assets = []model.Asset{a}
	} else {
		var err error
		if assets, err = j.Store.ListAssets(ctx); err != nil {
			return res, err
		}
	}

	p.Init(len(assets), 0)
	for _, a := range assets {
		p.Status("Publishing " + a.HostName + "...")
		rows, err := j.Store.ListFindingRows(ctx, db.CheckFilter{AssetID: a.ID})
		if err != nil {
			return res, err
		}
		if len(rows) == 0 {
			p.Warn(fmt.Sprintf("%s has no STIGs attached; published without results", a.HostName))
		}
		err = retry(ctx, 3, 500*time.Millisecond, func() error {
			return j.Central.PublishAsset(ctx, a, rows)
		})
		if err != nil {
			return res, fmt.Errorf("publish %s: %w", a.HostName, err)
		}
		res.count("assets", 1)
		res.count("results", len(rows))
		p.Step(1)
	}
	p.Status("Done!")
	return res, nil
}

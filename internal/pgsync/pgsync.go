// Package pgsync publishes assets and their checklist results to a central
// Postgres database shared by several stigkeeper installations.
package pgsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/stigkeeper/internal/model"
)

const batchSize = 100

type Store struct{ Pool *pgxpool.Pool }

func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

func (s *Store) Close() { s.Pool.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

// InsufficientPrivilege reports whether err is Postgres refusing DDL to a
// publish-only role.
func InsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS stig_assets (
  id BIGSERIAL PRIMARY KEY,
  host_name TEXT NOT NULL UNIQUE,
  host_ip TEXT,
  host_mac TEXT,
  host_fqdn TEXT,
  asset_type TEXT,
  tech_area TEXT,
  target_key TEXT,
  web_or_database BOOLEAN NOT NULL DEFAULT FALSE,
  web_db_site TEXT,
  web_db_instance TEXT,
  summary_json JSONB NOT NULL DEFAULT '{}'::jsonb,
  published_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stig_results (
  id BIGSERIAL PRIMARY KEY,
  asset_id BIGINT NOT NULL REFERENCES stig_assets(id) ON DELETE CASCADE,
  stig_title TEXT NOT NULL,
  stig_version INTEGER NOT NULL,
  stig_release TEXT NOT NULL,
  vuln_num TEXT NOT NULL,
  rule_id TEXT NOT NULL,
  severity TEXT NOT NULL,
  status TEXT NOT NULL,
  cci TEXT,
  control TEXT,
  finding_details TEXT,
  comments TEXT
);

ALTER TABLE stig_results DROP CONSTRAINT IF EXISTS stig_results_asset_id_stig_title_stig_version_rule_id_key;
CREATE UNIQUE INDEX IF NOT EXISTS idx_stig_results_identity
  ON stig_results (asset_id, stig_title, stig_version, stig_release, rule_id);
CREATE INDEX IF NOT EXISTS idx_stig_results_asset_status ON stig_results (asset_id, status);
CREATE INDEX IF NOT EXISTS idx_stig_results_control ON stig_results (control);
`)
	return err
}

// result is one row of stig_results.
type result struct {
	STIGTitle      string
	STIGVersion    int
	STIGRelease    string
	VulnNum        string
	RuleID         string
	Severity       string
	Status         string
	CCI            string
	Control        string
	FindingDetails string
	Comments       string
}

const resultColumns = 11

func (r result) args(assetID int64) []any {
	return []any{
		assetID,
		r.STIGTitle,
		r.STIGVersion,
		r.STIGRelease,
		r.VulnNum,
		r.RuleID,
		r.Severity,
		r.Status,
		nullableString(r.CCI),
		nullableString(r.Control),
		nullableString(r.FindingDetails),
		nullableString(r.Comments),
	}
}

// results converts finding rows, dropping repeats of the same rule within
// one STIG release.
func results(rows []model.FindingRow) []result {
	type key struct {
		title   string
		version int
		release string
		rule    string
	}
	seen := map[key]struct{}{}
	out := make([]result, 0, len(rows))
	for _, r := range rows {
		k := key{r.STIG.Title, r.STIG.Version, r.STIG.Release, r.Rule.Rule}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		res := result{
			STIGTitle:      r.STIG.Title,
			STIGVersion:    r.STIG.Version,
			STIGRelease:    r.STIG.Release,
			VulnNum:        r.Rule.VulnNum,
			RuleID:         r.Rule.Rule,
			Severity:       r.Severity().String(),
			Status:         r.Check.Status.String(),
			FindingDetails: r.Check.FindingDetails,
			Comments:       r.Check.Comments,
		}
		if r.CCI.Number != 0 {
			res.CCI = r.CCI.String()
		}
		if r.Control.Family != "" {
			res.Control = r.Control.String()
		}
		out = append(out, res)
	}
	return out
}

// insertResultsSQL builds a multi-value INSERT for n result rows. The asset
// id is repeated per row so every row binds the same number of arguments.
func insertResultsSQL(n int) string {
	const cols = resultColumns + 1
	var sb strings.Builder
	sb.WriteString(`
INSERT INTO stig_results (
  asset_id, stig_title, stig_version, stig_release, vuln_num, rule_id,
  severity, status, cci, control, finding_details, comments
) VALUES `)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*cols + 1
		sb.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+c)
		}
		sb.WriteString(")")
	}
	sb.WriteString(`
ON CONFLICT (asset_id, stig_title, stig_version, stig_release, rule_id) DO UPDATE SET
  vuln_num = EXCLUDED.vuln_num,
  severity = EXCLUDED.severity,
  status = EXCLUDED.status,
  finding_details = EXCLUDED.finding_details,
  comments = EXCLUDED.comments`)
	return sb.String()
}

func summarize(rows []model.FindingRow) model.Summary {
	var s model.Summary
	for _, r := range rows {
		s.Add(r.Check.Status, r.Severity())
	}
	return s
}

// PublishAsset upserts the asset and replaces all of its published results
// in one transaction.
func (s *Store) PublishAsset(ctx context.Context, a model.Asset, rows []model.FindingRow) error {
	summaryJSON, err := json.Marshal(summarize(rows))
	if err != nil {
		return err
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var assetID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO stig_assets (
		  host_name, host_ip, host_mac, host_fqdn, asset_type, tech_area, target_key,
		  web_or_database, web_db_site, web_db_instance, summary_json, published_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, now())
		ON CONFLICT (host_name) DO UPDATE SET
		  host_ip = EXCLUDED.host_ip,
		  host_mac = EXCLUDED.host_mac,
		  host_fqdn = EXCLUDED.host_fqdn,
		  asset_type = EXCLUDED.asset_type,
		  tech_area = EXCLUDED.tech_area,
		  target_key = EXCLUDED.target_key,
		  web_or_database = EXCLUDED.web_or_database,
		  web_db_site = EXCLUDED.web_db_site,
		  web_db_instance = EXCLUDED.web_db_instance,
		  summary_json = EXCLUDED.summary_json,
		  published_at = now()
		RETURNING id`,
		a.HostName,
		nullableString(a.HostIP),
		nullableString(a.HostMAC),
		nullableString(a.HostFQDN),
		nullableString(a.AssetType),
		nullableString(a.TechArea),
		nullableString(a.TargetKey),
		a.WebOrDatabase,
		nullableString(a.WebDBSite),
		nullableString(a.WebDBInstance),
		string(summaryJSON),
	).Scan(&assetID)
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.HostName, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM stig_results WHERE asset_id=$1`, assetID); err != nil {
		return err
	}
	if err := batchInsertResults(ctx, tx, assetID, results(rows)); err != nil {
		return fmt.Errorf("batch insert results: %w", err)
	}
	return tx.Commit(ctx)
}

func batchInsertResults(ctx context.Context, tx pgx.Tx, assetID int64, rows []result) error {
	for start := 0; start < len(rows); start += batchSize {
		chunk := rows[start:min(start+batchSize, len(rows))]
		args := make([]any, 0, len(chunk)*(resultColumns+1))
		for _, r := range chunk {
			args = append(args, r.args(assetID)...)
		}
		if _, err := tx.Exec(ctx, insertResultsSQL(len(chunk)), args...); err != nil {
			return err
		}
	}
	return nil
}

// PublishedHosts lists host names with the time each was last published.
func (s *Store) PublishedHosts(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.Pool.Query(ctx, `SELECT host_name, published_at FROM stig_assets ORDER BY host_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var host string
		var at time.Time
		if err := rows.Scan(&host, &at); err != nil {
			return nil, err
		}
		out[host] = at
	}
	return out, rows.Err()
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

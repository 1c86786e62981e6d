package db

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/model"
)

const cklCheckColumns = `k.id, k.asset_id, k.stig_check_id, k.status, k.finding_details, k.comments,
	k.severity_override, k.severity_justification`

const cklCheckColumnCount = 8

func scanCKLCheck(stmt *sqlite.Stmt) model.CKLCheck {
	return model.CKLCheck{
		ID:                    stmt.ColumnInt64(0),
		AssetID:               stmt.ColumnInt64(1),
		STIGCheckID:           stmt.ColumnInt64(2),
		Status:                model.Status(stmt.ColumnInt(3)),
		FindingDetails:        stmt.ColumnText(4),
		Comments:              stmt.ColumnText(5),
		SeverityOverride:      model.Severity(stmt.ColumnInt(6)),
		SeverityJustification: stmt.ColumnText(7),
	}
}

// CheckFilter narrows checklist queries. Zero fields match everything.
type CheckFilter struct {
	AssetID int64
	STIGID  int64
	// OpenOnly keeps checks whose status is Open.
	OpenOnly bool
}

func (f CheckFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.AssetID != 0 {
		conds = append(conds, "k.asset_id = ?")
		args = append(args, f.AssetID)
	}
	if f.STIGID != 0 {
		conds = append(conds, "sc.stig_id = ?")
		args = append(args, f.STIGID)
	}
	if f.OpenOnly {
		conds = append(conds, "k.status = ?")
		args = append(args, int(model.StatusOpen))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListCKLChecks(ctx context.Context, filter CheckFilter) ([]model.CKLCheck, error) {
	where, args := filter.where()
	var out []model.CKLCheck
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+cklCheckColumns+`
			FROM ckl_check k JOIN stig_check sc ON sc.id = k.stig_check_id`+where+` ORDER BY k.id`,
			&sqlitex.ExecOptions{
				Args: args,
				ResultFunc: func(stmt *sqlite.Stmt) error {
					out = append(out, scanCKLCheck(stmt))
					return nil
				},
			})
	})
	return out, err
}

func (s *Store) GetCKLCheck(ctx context.Context, id int64) (model.CKLCheck, error) {
	var c model.CKLCheck
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+cklCheckColumns+` FROM ckl_check k WHERE k.id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c, found = scanCKLCheck(stmt), true
				return nil
			},
		})
	})
	if err == nil && !found {
		err = fmt.Errorf("checklist entry %d: %w", id, ErrNotFound)
	}
	return c, err
}

// UpdateCKLCheck saves the reviewer-editable fields of a checklist entry.
func (s *Store) UpdateCKLCheck(ctx context.Context, c model.CKLCheck) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return updateCKLCheck(conn, c)
	})
}

// UpdateCKLChecks saves several entries in one transaction.
func (s *Store) UpdateCKLChecks(ctx context.Context, checks []model.CKLCheck) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		for _, c := range checks {
			if err := updateCKLCheck(conn, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func updateCKLCheck(conn *sqlite.Conn, c model.CKLCheck) error {
	err := sqlitex.Execute(conn, `
		UPDATE ckl_check SET status = ?, finding_details = ?, comments = ?,
		       severity_override = ?, severity_justification = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{int(c.Status), c.FindingDetails, c.Comments,
			int(c.SeverityOverride), c.SeverityJustification, c.ID}})
	if err != nil {
		return fmt.Errorf("checklist entry %d: %w", c.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("checklist entry %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// ListFindingRows joins checklist entries with their rule, CCI, control,
// asset and STIG. Rows come back ordered by asset, STIG and rule.
func (s *Store) ListFindingRows(ctx context.Context, filter CheckFilter) ([]model.FindingRow, error) {
	where, args := filter.where()
	query := `SELECT ` + cklCheckColumns + `, ` + stigCheckColumns + `,
		ci.id, ci.control_id, ci.number, ci.definition, ci.is_import, ci.import_compliance,
		ci.import_date_tested, ci.import_tested_by, ci.import_test_results,
		c.id, c.family_id, f.acronym, c.number, c.enhancement, c.title, c.description,
		a.id, a.asset_type, a.host_name, a.host_ip, a.host_mac, a.host_fqdn, a.tech_area,
		a.target_key, a.web_or_database, a.web_db_site, a.web_db_instance,
		s.id, s.title, s.description, s.release, s.version, s.benchmark_id, s.file_name
		FROM ckl_check k
		JOIN stig_check sc ON sc.id = k.stig_check_id
		JOIN cci ci ON ci.id = sc.cci_id
		JOIN control c ON c.id = ci.control_id
		JOIN family f ON f.id = c.family_id
		JOIN asset a ON a.id = k.asset_id
		JOIN stig s ON s.id = sc.stig_id` + where + `
		ORDER BY a.host_name, s.title, sc.vuln_num, sc.rule`

	const (
		ruleOff    = cklCheckColumnCount
		cciOff     = ruleOff + stigCheckColumnCount
		controlOff = cciOff + 9
		assetOff   = controlOff + 7
		stigOff    = assetOff + 11
	)
	var out []model.FindingRow
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, model.FindingRow{
					Check:   scanCKLCheck(stmt),
					Rule:    scanSTIGCheck(stmt, ruleOff),
					CCI:     scanCCI(stmt, cciOff),
					Control: scanControl(stmt, controlOff),
					Asset:   scanAsset(stmt, assetOff),
					STIG:    scanSTIG(stmt, stigOff),
				})
				return nil
			},
		})
	})
	return out, err
}

package db

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/model"
)

const stigColumns = `s.id, s.title, s.description, s.release, s.version, s.benchmark_id, s.file_name FROM stig s`

const stigCheckColumns = `sc.id, sc.stig_id, sc.cci_id, sc.rule, sc.vuln_num, sc.group_title, sc.rule_version,
	sc.severity, sc.weight, sc.title, sc.vuln_discussion, sc.false_positives, sc.false_negatives, sc.fix,
	sc.check_content, sc.documentable, sc.mitigations, sc.severity_override_guidance, sc.check_content_ref,
	sc.potential_impact, sc.third_party_tools, sc.mitigation_control, sc.responsibility, sc.ia_controls,
	sc.target_key, sc.cci_ref`

const stigCheckColumnCount = 26

func scanSTIG(stmt *sqlite.Stmt, off int) model.STIG {
	return model.STIG{
		ID:          stmt.ColumnInt64(off + 0),
		Title:       stmt.ColumnText(off + 1),
		Description: stmt.ColumnText(off + 2),
		Release:     stmt.ColumnText(off + 3),
		Version:     stmt.ColumnInt(off + 4),
		BenchmarkID: stmt.ColumnText(off + 5),
		FileName:    stmt.ColumnText(off + 6),
	}
}

// scanSTIGCheck reads stigCheckColumns starting at column off.
func scanSTIGCheck(stmt *sqlite.Stmt, off int) model.STIGCheck {
	return model.STIGCheck{
		ID:                       stmt.ColumnInt64(off + 0),
		STIGID:                   stmt.ColumnInt64(off + 1),
		CCIID:                    stmt.ColumnInt64(off + 2),
		Rule:                     stmt.ColumnText(off + 3),
		VulnNum:                  stmt.ColumnText(off + 4),
		GroupTitle:               stmt.ColumnText(off + 5),
		RuleVersion:              stmt.ColumnText(off + 6),
		Severity:                 model.Severity(stmt.ColumnInt(off + 7)),
		Weight:                   stmt.ColumnFloat(off + 8),
		Title:                    stmt.ColumnText(off + 9),
		VulnDiscussion:           stmt.ColumnText(off + 10),
		FalsePositives:           stmt.ColumnText(off + 11),
		FalseNegatives:           stmt.ColumnText(off + 12),
		Fix:                      stmt.ColumnText(off + 13),
		Check:                    stmt.ColumnText(off + 14),
		Documentable:             stmt.ColumnInt(off+15) != 0,
		Mitigations:              stmt.ColumnText(off + 16),
		SeverityOverrideGuidance: stmt.ColumnText(off + 17),
		CheckContentRef:          stmt.ColumnText(off + 18),
		PotentialImpact:          stmt.ColumnText(off + 19),
		ThirdPartyTools:          stmt.ColumnText(off + 20),
		MitigationControl:        stmt.ColumnText(off + 21),
		Responsibility:           stmt.ColumnText(off + 22),
		IAControls:               stmt.ColumnText(off + 23),
		TargetKey:                stmt.ColumnText(off + 24),
		CCINumber:                stmt.ColumnInt(off + 25),
	}
}

func findSTIG(conn *sqlite.Conn, title string, version int, release string) (model.STIG, bool, error) {
	var st model.STIG
	found := false
	err := sqlitex.Execute(conn, `SELECT `+stigColumns+` WHERE s.title = ? AND s.version = ? AND s.release = ?`,
		&sqlitex.ExecOptions{
			Args: []any{title, version, release},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				st, found = scanSTIG(stmt, 0), true
				return nil
			},
		})
	return st, found, err
}

// insertSTIG writes a STIG and its checks. Every check's CCIID must name an
// existing CCI; nothing is written when one does not.
func insertSTIG(conn *sqlite.Conn, st *model.STIG, checks []model.STIGCheck) error {
	_, dup, err := findSTIG(conn, st.Title, st.Version, st.Release)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("stig %s: %w", st, ErrDuplicate)
	}
	seen := make(map[int64]bool)
	for _, c := range checks {
		if seen[c.CCIID] {
			continue
		}
		ok, err := exists(conn, `SELECT COUNT(*) FROM cci WHERE id = ?`, c.CCIID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("stig %s: rule %s: cci %d: %w", st, c.Rule, c.CCIID, ErrMissingParent)
		}
		seen[c.CCIID] = true
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO stig (title, description, release, version, benchmark_id, file_name)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{st.Title, st.Description, st.Release, st.Version, st.BenchmarkID, st.FileName}})
	if err != nil {
		return constraintErr(err, "stig "+st.String())
	}
	st.ID = conn.LastInsertRowID()

	for i := range checks {
		c := &checks[i]
		c.STIGID = st.ID
		err := sqlitex.Execute(conn, `
			INSERT INTO stig_check (
				stig_id, cci_id, rule, vuln_num, group_title, rule_version, severity, weight, title,
				vuln_discussion, false_positives, false_negatives, fix, check_content, documentable,
				mitigations, severity_override_guidance, check_content_ref, potential_impact,
				third_party_tools, mitigation_control, responsibility, ia_controls, target_key, cci_ref
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				c.STIGID, c.CCIID, c.Rule, c.VulnNum, c.GroupTitle, c.RuleVersion, int(c.Severity), c.Weight, c.Title,
				c.VulnDiscussion, c.FalsePositives, c.FalseNegatives, c.Fix, c.Check, boolInt(c.Documentable),
				c.Mitigations, c.SeverityOverrideGuidance, c.CheckContentRef, c.PotentialImpact,
				c.ThirdPartyTools, c.MitigationControl, c.Responsibility, c.IAControls, c.TargetKey, c.CCINumber,
			}})
		if err != nil {
			return constraintErr(err, "rule "+c.Rule)
		}
		c.ID = conn.LastInsertRowID()
	}
	return nil
}

// AddSTIG stores a STIG and its checks in one transaction.
func (s *Store) AddSTIG(ctx context.Context, st *model.STIG, checks []model.STIGCheck) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		return insertSTIG(conn, st, checks)
	})
}

func (s *Store) GetSTIG(ctx context.Context, id int64) (model.STIG, error) {
	var st model.STIG
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+stigColumns+` WHERE s.id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				st, found = scanSTIG(stmt, 0), true
				return nil
			},
		})
	})
	if err == nil && !found {
		err = fmt.Errorf("stig %d: %w", id, ErrNotFound)
	}
	return st, err
}

// FindSTIG looks a STIG up by its identity.
func (s *Store) FindSTIG(ctx context.Context, title string, version int, release string) (model.STIG, error) {
	var st model.STIG
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		st, found, err = findSTIG(conn, title, version, release)
		return err
	})
	if err == nil && !found {
		err = fmt.Errorf("stig %q version %d %s: %w", title, version, release, ErrNotFound)
	}
	return st, err
}

func (s *Store) listSTIGs(ctx context.Context, query string, args ...any) ([]model.STIG, error) {
	var out []model.STIG
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanSTIG(stmt, 0))
				return nil
			},
		})
	})
	return out, err
}

func (s *Store) ListSTIGs(ctx context.Context) ([]model.STIG, error) {
	return s.listSTIGs(ctx, `SELECT `+stigColumns+` ORDER BY s.title, s.version, s.release`)
}

func (s *Store) ListSTIGsForAsset(ctx context.Context, assetID int64) ([]model.STIG, error) {
	return s.listSTIGs(ctx, `SELECT `+stigColumns+`
		JOIN asset_stig a ON a.stig_id = s.id
		WHERE a.asset_id = ? ORDER BY s.title`, assetID)
}

// DeleteSTIG removes a STIG and its checks. A STIG attached to any asset is
// left untouched and ErrInUse is returned.
func (s *Store) DeleteSTIG(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		found, err := exists(conn, `SELECT COUNT(*) FROM stig WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("stig %d: %w", id, ErrNotFound)
		}
		inUse, err := exists(conn, `SELECT COUNT(*) FROM asset_stig WHERE stig_id = ?`, id)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("stig %d is attached to assets: %w", id, ErrInUse)
		}
		if err := sqlitex.Execute(conn, `DELETE FROM stig_check WHERE stig_id = ?`, &sqlitex.ExecOptions{Args: []any{id}}); err != nil {
			return err
		}
		return sqlitex.Execute(conn, `DELETE FROM stig WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}})
	})
}

func (s *Store) ListSTIGChecks(ctx context.Context, stigID int64) ([]model.STIGCheck, error) {
	var out []model.STIGCheck
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+stigCheckColumns+` FROM stig_check sc WHERE sc.stig_id = ? ORDER BY sc.id`,
			&sqlitex.ExecOptions{
				Args: []any{stigID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					out = append(out, scanSTIGCheck(stmt, 0))
					return nil
				},
			})
	})
	return out, err
}

func (s *Store) GetSTIGCheckByRule(ctx context.Context, stigID int64, rule string) (model.STIGCheck, error) {
	var c model.STIGCheck
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+stigCheckColumns+` FROM stig_check sc WHERE sc.stig_id = ? AND sc.rule = ?`,
			&sqlitex.ExecOptions{
				Args: []any{stigID, rule},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					c, found = scanSTIGCheck(stmt, 0), true
					return nil
				},
			})
	})
	if err == nil && !found {
		err = fmt.Errorf("rule %s: %w", rule, ErrNotFound)
	}
	return c, err
}

// RemapResult counts the rules touched by RemapUnmapped.
type RemapResult struct {
	Remapped int
	// Unmapped rules still sit on the fallback CCI afterwards.
	Unmapped int
}

// RemapUnmapped moves rules that were imported onto the fallback CCI to the
// CCI they reference, for every such CCI that now exists.
func (s *Store) RemapUnmapped(ctx context.Context) (RemapResult, error) {
	var res RemapResult
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE stig_check
			SET cci_id = (SELECT id FROM cci WHERE number = stig_check.cci_ref)
			WHERE cci_id = (SELECT id FROM cci WHERE number = ?)
			  AND cci_ref <> ?
			  AND cci_ref IN (SELECT number FROM cci)`,
			&sqlitex.ExecOptions{Args: []any{model.DefaultCCINumber, model.DefaultCCINumber}})
		if err != nil {
			return err
		}
		res.Remapped = conn.Changes()
		return sqlitex.Execute(conn, `
			SELECT COUNT(*) FROM stig_check
			WHERE cci_id = (SELECT id FROM cci WHERE number = ?) AND cci_ref <> ?`,
			&sqlitex.ExecOptions{
				Args: []any{model.DefaultCCINumber, model.DefaultCCINumber},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					res.Unmapped = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	return res, err
}

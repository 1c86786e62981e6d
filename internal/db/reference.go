package db

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/model"
)

const controlColumns = `c.id, c.family_id, f.acronym, c.number, c.enhancement, c.title, c.description
	FROM control c JOIN family f ON f.id = c.family_id`

const cciColumns = `id, control_id, number, definition, is_import, import_compliance,
	import_date_tested, import_tested_by, import_test_results FROM cci`

func scanFamily(stmt *sqlite.Stmt) model.Family {
	return model.Family{
		ID:          stmt.ColumnInt64(0),
		Acronym:     stmt.ColumnText(1),
		Description: stmt.ColumnText(2),
	}
}

func scanControl(stmt *sqlite.Stmt, off int) model.Control {
	return model.Control{
		ID:          stmt.ColumnInt64(off + 0),
		FamilyID:    stmt.ColumnInt64(off + 1),
		Family:      stmt.ColumnText(off + 2),
		Number:      stmt.ColumnInt(off + 3),
		Enhancement: stmt.ColumnInt(off + 4),
		Title:       stmt.ColumnText(off + 5),
		Description: stmt.ColumnText(off + 6),
	}
}

func scanCCI(stmt *sqlite.Stmt, off int) model.CCI {
	return model.CCI{
		ID:                stmt.ColumnInt64(off + 0),
		ControlID:         stmt.ColumnInt64(off + 1),
		Number:            stmt.ColumnInt(off + 2),
		Definition:        stmt.ColumnText(off + 3),
		IsImport:          stmt.ColumnInt(off+4) != 0,
		ImportCompliance:  stmt.ColumnText(off + 5),
		ImportDateTested:  stmt.ColumnText(off + 6),
		ImportTestedBy:    stmt.ColumnText(off + 7),
		ImportTestResults: stmt.ColumnText(off + 8),
	}
}

func insertFamily(conn *sqlite.Conn, f *model.Family) error {
	dup, err := exists(conn, `SELECT COUNT(*) FROM family WHERE acronym = ?`, f.Acronym)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("family %s: %w", f.Acronym, ErrDuplicate)
	}
	err = sqlitex.Execute(conn, `INSERT INTO family (acronym, description) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{f.Acronym, f.Description}})
	if err != nil {
		return constraintErr(err, "family "+f.Acronym)
	}
	f.ID = conn.LastInsertRowID()
	return nil
}

func insertControl(conn *sqlite.Conn, c *model.Control) error {
	parent, err := exists(conn, `SELECT COUNT(*) FROM family WHERE id = ?`, c.FamilyID)
	if err != nil {
		return err
	}
	if !parent {
		return fmt.Errorf("control %s: family %d: %w", c, c.FamilyID, ErrMissingParent)
	}
	dup, err := exists(conn, `SELECT COUNT(*) FROM control WHERE family_id = ? AND number = ? AND enhancement = ?`,
		c.FamilyID, c.Number, c.Enhancement)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("control %s: %w", c, ErrDuplicate)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO control (family_id, number, enhancement, title, description)
		VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{c.FamilyID, c.Number, c.Enhancement, c.Title, c.Description}})
	if err != nil {
		return constraintErr(err, "control "+c.String())
	}
	c.ID = conn.LastInsertRowID()
	return nil
}

func insertCCI(conn *sqlite.Conn, c *model.CCI) error {
	parent, err := exists(conn, `SELECT COUNT(*) FROM control WHERE id = ?`, c.ControlID)
	if err != nil {
		return err
	}
	if !parent {
		return fmt.Errorf("%s: control %d: %w", c, c.ControlID, ErrMissingParent)
	}
	dup, err := exists(conn, `SELECT COUNT(*) FROM cci WHERE number = ?`, c.Number)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%s: %w", c, ErrDuplicate)
	}
	err = sqlitex.Execute(conn, `INSERT INTO cci (control_id, number, definition) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{c.ControlID, c.Number, c.Definition}})
	if err != nil {
		return constraintErr(err, c.String())
	}
	c.ID = conn.LastInsertRowID()
	return nil
}

func (s *Store) AddFamily(ctx context.Context, f *model.Family) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error { return insertFamily(conn, f) })
}

func (s *Store) AddControl(ctx context.Context, c *model.Control) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error { return insertControl(conn, c) })
}

func (s *Store) AddCCI(ctx context.Context, c *model.CCI) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error { return insertCCI(conn, c) })
}

func (s *Store) GetFamily(ctx context.Context, id int64) (model.Family, error) {
	return s.oneFamily(ctx, `SELECT id, acronym, description FROM family WHERE id = ?`, id)
}

func (s *Store) GetFamilyByAcronym(ctx context.Context, acronym string) (model.Family, error) {
	return s.oneFamily(ctx, `SELECT id, acronym, description FROM family WHERE acronym = ?`, acronym)
}

func (s *Store) oneFamily(ctx context.Context, query string, arg any) (model.Family, error) {
	var f model.Family
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{arg},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				f, found = scanFamily(stmt), true
				return nil
			},
		})
	})
	if err != nil {
		return f, err
	}
	if !found {
		return f, fmt.Errorf("family %v: %w", arg, ErrNotFound)
	}
	return f, nil
}

func (s *Store) ListFamilies(ctx context.Context) ([]model.Family, error) {
	var out []model.Family
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT id, acronym, description FROM family ORDER BY acronym`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanFamily(stmt))
				return nil
			},
		})
	})
	return out, err
}

func (s *Store) GetControl(ctx context.Context, id int64) (model.Control, error) {
	var c model.Control
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+controlColumns+` WHERE c.id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c, found = scanControl(stmt, 0), true
				return nil
			},
		})
	})
	if err == nil && !found {
		err = fmt.Errorf("control %d: %w", id, ErrNotFound)
	}
	return c, err
}

// FindControl looks a control up by its textual identity (AC-2(1)).
func (s *Store) FindControl(ctx context.Context, id model.ControlID) (model.Control, error) {
	var c model.Control
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		c, found, err = findControl(conn, id)
		return err
	})
	if err == nil && !found {
		err = fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	return c, err
}

func findControl(conn *sqlite.Conn, id model.ControlID) (model.Control, bool, error) {
	var c model.Control
	found := false
	err := sqlitex.Execute(conn, `SELECT `+controlColumns+`
		WHERE f.acronym = ? AND c.number = ? AND c.enhancement = ?`, &sqlitex.ExecOptions{
		Args: []any{id.Family, id.Number, id.Enhancement},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c, found = scanControl(stmt, 0), true
			return nil
		},
	})
	return c, found, err
}

func (s *Store) ListControls(ctx context.Context) ([]model.Control, error) {
	var out []model.Control
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+controlColumns+` ORDER BY f.acronym, c.number, c.enhancement`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanControl(stmt, 0))
				return nil
			},
		})
	})
	return out, err
}

func (s *Store) GetCCI(ctx context.Context, id int64) (model.CCI, error) {
	return s.oneCCI(ctx, `SELECT `+cciColumns+` WHERE id = ?`, id)
}

func (s *Store) GetCCIByNumber(ctx context.Context, number int) (model.CCI, error) {
	return s.oneCCI(ctx, `SELECT `+cciColumns+` WHERE number = ?`, number)
}

func (s *Store) oneCCI(ctx context.Context, query string, arg any) (model.CCI, error) {
	var c model.CCI
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{arg},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c, found = scanCCI(stmt, 0), true
				return nil
			},
		})
	})
	if err == nil && !found {
		err = fmt.Errorf("cci %v: %w", arg, ErrNotFound)
	}
	return c, err
}

func (s *Store) ListCCIs(ctx context.Context) ([]model.CCI, error) {
	var out []model.CCI
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+cciColumns+` ORDER BY number`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanCCI(stmt, 0))
				return nil
			},
		})
	})
	return out, err
}

// CCINumbers maps every CCI number to its row id. Import jobs resolve rule
// references against it without a query per rule.
func (s *Store) CCINumbers(ctx context.Context) (map[int]int64, error) {
	out := make(map[int]int64)
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT number, id FROM cci`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out[stmt.ColumnInt(0)] = stmt.ColumnInt64(1)
				return nil
			},
		})
	})
	return out, err
}

// DeleteReferenceData removes every family, control and CCI. It refuses
// while any STIG still references the CCIs.
func (s *Store) DeleteReferenceData(ctx context.Context) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		inUse, err := exists(conn, `SELECT COUNT(*) FROM stig`)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("reference data referenced by imported STIGs: %w", ErrInUse)
		}
		return sqlitex.ExecuteScript(conn, `
			DELETE FROM cci;
			DELETE FROM control;
			DELETE FROM family;`, nil)
	})
}

// HasReferenceData reports whether any CCI has been imported.
func (s *Store) HasReferenceData(ctx context.Context) (bool, error) {
	var found bool
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		found, err = exists(conn, `SELECT COUNT(*) FROM cci`)
		return err
	})
	return found, err
}

// EMASSResult is the latest test result recorded against a CCI in an eMASS
// Test Result workbook.
type EMASSResult struct {
	CCINumber   int
	Compliance  string
	DateTested  string
	TestedBy    string
	TestResults string
}

// ImportEMASSResults stores the latest eMASS test results and flags their
// CCIs as imported. Results for unknown CCIs are returned as skipped.
func (s *Store) ImportEMASSResults(ctx context.Context, results []EMASSResult) (skipped []int, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		for _, r := range results {
			err := sqlitex.Execute(conn, `
				UPDATE cci SET is_import = 1, import_compliance = ?, import_date_tested = ?,
				       import_tested_by = ?, import_test_results = ?
				WHERE number = ?`,
				&sqlitex.ExecOptions{Args: []any{r.Compliance, r.DateTested, r.TestedBy, r.TestResults, r.CCINumber}})
			if err != nil {
				return fmt.Errorf("%s: %w", model.FormatCCI(r.CCINumber), err)
			}
			if conn.Changes() == 0 {
				skipped = append(skipped, r.CCINumber)
			}
		}
		return nil
	})
	return skipped, err
}

// CCIWithControl pairs a CCI with the control it maps to.
type CCIWithControl struct {
	CCI     model.CCI
	Control model.Control
}

// ListImportedCCIs returns the CCIs carrying eMASS results, with their
// controls.
func (s *Store) ListImportedCCIs(ctx context.Context) ([]CCIWithControl, error) {
	var out []CCIWithControl
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT ci.id, ci.control_id, ci.number, ci.definition, ci.is_import, ci.import_compliance,
			       ci.import_date_tested, ci.import_tested_by, ci.import_test_results,
			       c.id, c.family_id, f.acronym, c.number, c.enhancement, c.title, c.description
			FROM cci ci JOIN control c ON c.id = ci.control_id JOIN family f ON f.id = c.family_id
			WHERE ci.is_import = 1 ORDER BY ci.number`,
			&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, CCIWithControl{CCI: scanCCI(stmt, 0), Control: scanControl(stmt, 9)})
				return nil
			}})
	})
	return out, err
}

func (s *Store) ClearEMASSImport(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			UPDATE cci SET is_import = 0, import_compliance = '', import_date_tested = '',
			       import_tested_by = '', import_test_results = ''
			WHERE is_import = 1`, nil)
	})
}

func (s *Store) IsEMASSImport(ctx context.Context) (bool, error) {
	var found bool
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		found, err = exists(conn, `SELECT COUNT(*) FROM cci WHERE is_import = 1`)
		return err
	})
	return found, err
}

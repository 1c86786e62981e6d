package db

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/model"
)

const assetColumns = `a.id, a.asset_type, a.host_name, a.host_ip, a.host_mac, a.host_fqdn, a.tech_area,
	a.target_key, a.web_or_database, a.web_db_site, a.web_db_instance FROM asset a`

func scanAsset(stmt *sqlite.Stmt, off int) model.Asset {
	return model.Asset{
		ID:            stmt.ColumnInt64(off + 0),
		AssetType:     stmt.ColumnText(off + 1),
		HostName:      stmt.ColumnText(off + 2),
		HostIP:        stmt.ColumnText(off + 3),
		HostMAC:       stmt.ColumnText(off + 4),
		HostFQDN:      stmt.ColumnText(off + 5),
		TechArea:      stmt.ColumnText(off + 6),
		TargetKey:     stmt.ColumnText(off + 7),
		WebOrDatabase: stmt.ColumnInt(off+8) != 0,
		WebDBSite:     stmt.ColumnText(off + 9),
		WebDBInstance: stmt.ColumnText(off + 10),
	}
}

func assetArgs(a *model.Asset) []any {
	assetType := a.AssetType
	if assetType == "" {
		assetType = "Computing"
	}
	return []any{assetType, a.HostName, a.HostIP, a.HostMAC, a.HostFQDN, a.TechArea,
		a.TargetKey, boolInt(a.WebOrDatabase), a.WebDBSite, a.WebDBInstance}
}

func (s *Store) AddAsset(ctx context.Context, a *model.Asset) error {
	a.HostName = strings.TrimSpace(a.HostName)
	if a.HostName == "" {
		return fmt.Errorf("asset: hostname is required")
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		dup, err := exists(conn, `SELECT COUNT(*) FROM asset WHERE host_name = ?`, a.HostName)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("asset %s: %w", a.HostName, ErrDuplicate)
		}
		err = sqlitex.Execute(conn, `
			INSERT INTO asset (asset_type, host_name, host_ip, host_mac, host_fqdn, tech_area,
			                   target_key, web_or_database, web_db_site, web_db_instance)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: assetArgs(a)})
		if err != nil {
			return constraintErr(err, "asset "+a.HostName)
		}
		a.ID = conn.LastInsertRowID()
		return nil
	})
}

func (s *Store) UpdateAsset(ctx context.Context, a model.Asset) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		args := append(assetArgs(&a), a.ID)
		err := sqlitex.Execute(conn, `
			UPDATE asset SET asset_type = ?, host_name = ?, host_ip = ?, host_mac = ?, host_fqdn = ?,
			       tech_area = ?, target_key = ?, web_or_database = ?, web_db_site = ?, web_db_instance = ?
			WHERE id = ?`,
			&sqlitex.ExecOptions{Args: args})
		if err != nil {
			return constraintErr(err, "asset "+a.HostName)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("asset %d: %w", a.ID, ErrNotFound)
		}
		return nil
	})
}

func (s *Store) GetAsset(ctx context.Context, id int64) (model.Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetColumns+` WHERE a.id = ?`, id)
}

func (s *Store) GetAssetByHostname(ctx context.Context, host string) (model.Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetColumns+` WHERE a.host_name = ?`, host)
}

func (s *Store) oneAsset(ctx context.Context, query string, arg any) (model.Asset, error) {
	var a model.Asset
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{arg},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				a, found = scanAsset(stmt, 0), true
				return nil
			},
		})
	})
	if err == nil && !found {
		err = fmt.Errorf("asset %v: %w", arg, ErrNotFound)
	}
	return a, err
}

func (s *Store) listAssets(ctx context.Context, query string, args ...any) ([]model.Asset, error) {
	var out []model.Asset
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanAsset(stmt, 0))
				return nil
			},
		})
	})
	return out, err
}

func (s *Store) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.listAssets(ctx, `SELECT `+assetColumns+` ORDER BY a.host_name`)
}

func (s *Store) ListAssetsForSTIG(ctx context.Context, stigID int64) ([]model.Asset, error) {
	return s.listAssets(ctx, `SELECT `+assetColumns+`
		JOIN asset_stig x ON x.asset_id = a.id
		WHERE x.stig_id = ? ORDER BY a.host_name`, stigID)
}

// DeleteAsset removes an asset with no STIGs attached. Otherwise it returns
// ErrInUse and the database is unchanged.
func (s *Store) DeleteAsset(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		inUse, err := exists(conn, `SELECT COUNT(*) FROM asset_stig WHERE asset_id = ?`, id)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("asset %d has STIGs attached: %w", id, ErrInUse)
		}
		if err := sqlitex.Execute(conn, `DELETE FROM asset WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("asset %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// AttachSTIG links a STIG to an asset and creates one Not_Reviewed checklist
// entry per STIG check, all in one transaction. It returns the number of
// checklist entries created.
func (s *Store) AttachSTIG(ctx context.Context, assetID, stigID int64) (int, error) {
	created := 0
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		var err error
		created, err = attachSTIG(conn, assetID, stigID)
		return err
	})
	return created, err
}

func attachSTIG(conn *sqlite.Conn, assetID, stigID int64) (int, error) {
	ok, err := exists(conn, `SELECT COUNT(*) FROM asset WHERE id = ?`, assetID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("asset %d: %w", assetID, ErrNotFound)
	}
	ok, err = exists(conn, `SELECT COUNT(*) FROM stig WHERE id = ?`, stigID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("stig %d: %w", stigID, ErrNotFound)
	}
	dup, err := exists(conn, `SELECT COUNT(*) FROM asset_stig WHERE asset_id = ? AND stig_id = ?`, assetID, stigID)
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, fmt.Errorf("stig %d already attached to asset %d: %w", stigID, assetID, ErrDuplicate)
	}
	err = sqlitex.Execute(conn, `INSERT INTO asset_stig (asset_id, stig_id) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{assetID, stigID}})
	if err != nil {
		return 0, constraintErr(err, "attach")
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO ckl_check (asset_id, stig_check_id, status)
		SELECT ?, id, ? FROM stig_check WHERE stig_id = ?`,
		&sqlitex.ExecOptions{Args: []any{assetID, int(model.StatusNotReviewed), stigID}})
	if err != nil {
		return 0, constraintErr(err, "create checklist")
	}
	return conn.Changes(), nil
}

// DetachSTIG unlinks a STIG from an asset and drops its checklist entries.
func (s *Store) DetachSTIG(ctx context.Context, assetID, stigID int64) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM asset_stig WHERE asset_id = ? AND stig_id = ?`,
			&sqlitex.ExecOptions{Args: []any{assetID, stigID}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("stig %d on asset %d: %w", stigID, assetID, ErrNotFound)
		}
		return sqlitex.Execute(conn, `
			DELETE FROM ckl_check
			WHERE asset_id = ? AND stig_check_id IN (SELECT id FROM stig_check WHERE stig_id = ?)`,
			&sqlitex.ExecOptions{Args: []any{assetID, stigID}})
	})
}

func (s *Store) IsAttached(ctx context.Context, assetID, stigID int64) (bool, error) {
	var found bool
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		found, err = exists(conn, `SELECT COUNT(*) FROM asset_stig WHERE asset_id = ? AND stig_id = ?`, assetID, stigID)
		return err
	})
	return found, err
}

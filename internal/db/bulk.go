package db

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/model"
	"github.com/yourorg/stigkeeper/internal/sqlitepool"
)

// Batch is the write surface available inside BulkLoad. It is bound to a
// single connection and must not escape the callback.
type Batch struct {
	conn *sqlite.Conn
}

// BulkLoad runs fn inside one IMMEDIATE transaction on a connection with
// synchronous commits disabled, commits once and restores the connection.
// An error from fn rolls back the whole load.
func (s *Store) BulkLoad(ctx context.Context, fn func(b *Batch) error) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		if err := sqlitepool.SetSynchronous(conn, "OFF"); err != nil {
			return err
		}
		defer func() {
			if rerr := sqlitepool.SetSynchronous(conn, "NORMAL"); rerr != nil {
				s.logger.Warn("restore synchronous mode", "error", rerr)
			}
		}()

		end, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("begin bulk load: %w", err)
		}
		defer end(&err)
		return fn(&Batch{conn: conn})
	})
}

func (b *Batch) AddFamily(f *model.Family) error {
	return insertFamily(b.conn, f)
}

func (b *Batch) AddControl(c *model.Control) error {
	return insertControl(b.conn, c)
}

func (b *Batch) AddCCI(c *model.CCI) error {
	return insertCCI(b.conn, c)
}

// AddSTIG writes a STIG under a savepoint, so a failure leaves the rest of
// the load intact.
func (b *Batch) AddSTIG(st *model.STIG, checks []model.STIGCheck) (err error) {
	release := sqlitex.Save(b.conn)
	defer release(&err)
	return insertSTIG(b.conn, st, checks)
}

func (b *Batch) FamilyByAcronym(acronym string) (model.Family, bool, error) {
	var f model.Family
	found := false
	err := sqlitex.Execute(b.conn, `SELECT id, acronym, description FROM family WHERE acronym = ?`, &sqlitex.ExecOptions{
		Args: []any{acronym},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			f, found = scanFamily(stmt), true
			return nil
		},
	})
	return f, found, err
}

func (b *Batch) FindControl(id model.ControlID) (model.Control, bool, error) {
	return findControl(b.conn, id)
}

func (b *Batch) HasSTIG(title string, version int, release string) (bool, error) {
	_, found, err := findSTIG(b.conn, title, version, release)
	return found, err
}

package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yourorg/stigkeeper/internal/sqlitepool"
)

var (
	ErrDuplicate     = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrInUse         = errors.New("in use")
	ErrMissingParent = errors.New("missing parent")
)

type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Store is the checklist database. Every method takes its own connection
// from the pool, so a Store is safe to share between job goroutines.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize < 4 {
		poolSize = 4
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// withTx runs fn inside one IMMEDIATE transaction. fn returning an error
// rolls everything back.
func (s *Store) withTx(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		end, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer end(&err)
		return fn(conn)
	})
}

// SchemaVersion reports the version stored in the variables table.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		v, err = readVersion(conn)
		return err
	})
	return v, err
}

func readVersion(conn *sqlite.Conn) (int, error) {
	version := 0
	err := sqlitex.Execute(conn, `SELECT value FROM variables WHERE name = 'version'`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n, err := strconv.Atoi(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("schema version %q: %w", stmt.ColumnText(0), err)
			}
			version = n
			return nil
		},
	})
	return version, err
}

func (s *Store) migrate(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteScript(conn, variablesSchema, nil); err != nil {
			return fmt.Errorf("create variables: %w", err)
		}
		current, err := readVersion(conn)
		if err != nil {
			return err
		}
		for v := current + 1; v <= len(migrations); v++ {
			if err := applyMigration(conn, v); err != nil {
				return fmt.Errorf("migrate to v%d: %w", v, err)
			}
			s.logger.Info("schema upgraded", "version", v)
		}
		return nil
	})
}

func applyMigration(conn *sqlite.Conn, version int) (err error) {
	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return err
	}
	defer end(&err)
	if err := sqlitex.ExecuteScript(conn, migrations[version-1], nil); err != nil {
		return err
	}
	return sqlitex.Execute(conn, `
		INSERT INTO variables (name, value) VALUES ('version', ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{strconv.Itoa(version)}})
}

// constraintErr maps SQLite constraint failures onto the package sentinels.
func constraintErr(err error, what string) error {
	if err == nil {
		return nil
	}
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	case sqlite.ResultConstraintForeignKey:
		return fmt.Errorf("%s: %w", what, ErrMissingParent)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// exists runs a COUNT-style query and reports whether it returned non-zero.
func exists(conn *sqlite.Conn, query string, args ...any) (bool, error) {
	found := false
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = stmt.ColumnInt64(0) > 0
			return nil
		},
	})
	return found, err
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// pgDeadlockDetected is the SQLSTATE PostgreSQL reports for deadlock_detected.
const pgDeadlockDetected = "40P01"

// dialect captures everything that differs between the supported backends:
// error classification, the full-text primitives and time binding.
type dialect interface {
	name() string
	migrationDriver(db *sql.DB) (database.Driver, string, error)

	// bindTime normalizes a timestamp before it is written or compared.
	bindTime(t time.Time) time.Time

	// textMatch adds the full-text predicate for query to q.
	textMatch(q *selectQuery, query string)
	// highlight wraps the limited inner search query with an excerpt column.
	// It returns false when excerpts are produced in Go instead.
	highlight(inner string, innerArgs []any, query string) (string, []any, bool)
	// nameMatch adds the sender-name predicate for text to q.
	nameMatch(q *selectQuery, text string)

	isWriteConflict(err error) bool
	isUnavailable(err error) bool

	maintenance(ctx context.Context, db *sqlx.DB) error
}

func dialectFor(driverName string) (dialect, error) {
	switch driverName {
	case DriverSQLite:
		return sqliteDialect{}, nil
	case DriverPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) migrationDriver(db *sql.DB) (database.Driver, string, error) {
	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	return drv, "sqlite", err
}

// SQLite stores timestamps as text; second precision in UTC keeps the
// encoding fixed-width so text comparison orders correctly.
func (sqliteDialect) bindTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (sqliteDialect) textMatch(q *selectQuery, query string) {
	for _, alts := range orGroups(query) {
		clauses := make([]string, len(alts))
		args := make([]any, len(alts))
		for i, term := range alts {
			if neg, ok := strings.CutPrefix(term, "-"); ok && neg != "" {
				clauses[i], args[i] = `msg_text NOT LIKE ? ESCAPE '\'`, likeContains(neg)
				continue
			}
			clauses[i], args[i] = `msg_text LIKE ? ESCAPE '\'`, likeContains(term)
		}
		if len(clauses) == 1 {
			q.where(clauses[0], args...)
			continue
		}
		q.where("("+strings.Join(clauses, " OR ")+")", args...)
	}
}

// orGroups splits query into ANDed groups of alternatives: "a b OR c" is
// a AND (b OR c). A leading, trailing or repeated OR is ignored.
func orGroups(query string) [][]string {
	var groups [][]string
	join := false
	for _, term := range strings.Fields(query) {
		if term == "OR" {
			join = len(groups) > 0
			continue
		}
		if join {
			groups[len(groups)-1] = append(groups[len(groups)-1], term)
		} else {
			groups = append(groups, []string{term})
		}
		join = false
	}
	return groups
}

func (sqliteDialect) highlight(inner string, innerArgs []any, _ string) (string, []any, bool) {
	return inner, innerArgs, false
}

func (sqliteDialect) nameMatch(q *selectQuery, text string) {
	q.where(`u.name LIKE ? ESCAPE '\'`, likeContains(text))
}

func (sqliteDialect) isWriteConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func (sqliteDialect) isUnavailable(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CANTOPEN
	}
	return false
}

func (sqliteDialect) maintenance(ctx context.Context, db *sqlx.DB) error {
	// VACUUM cannot run inside a transaction.
	_, err := db.ExecContext(ctx, "VACUUM;")
	return err
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) migrationDriver(db *sql.DB) (database.Driver, string, error) {
	drv, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	return drv, "pgx5", err
}

func (postgresDialect) bindTime(t time.Time) time.Time { return t }

func (postgresDialect) textMatch(q *selectQuery, query string) {
	q.where(`msg_text &@~ ?`, query)
}

// Highlighting runs in an outer query so pgroonga only marks up the rows that
// survived the inner LIMIT.
func (postgresDialect) highlight(inner string, innerArgs []any, query string) (string, []any, bool) {
	outer := `SELECT group_id, msg_id, from_user_id, from_user_name, created_at, updated_at, msg_text,
	pgroonga_highlight_html(msg_text, pgroonga_query_extract_keywords(?), 'message_idx') AS html
	FROM (` + inner + `) AS t
	ORDER BY created_at DESC`
	args := make([]any, 0, len(innerArgs)+1)
	args = append(args, query)
	args = append(args, innerArgs...)
	return outer, args, true
}

func (postgresDialect) nameMatch(q *selectQuery, text string) {
	q.where(`u.name &@ ?`, text)
}

func (postgresDialect) isWriteConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgDeadlockDetected
}

// A missing unix socket surfaces as ENOENT while the server restarts.
func (postgresDialect) isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

func (postgresDialect) maintenance(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, "ANALYZE messages, usernames;")
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

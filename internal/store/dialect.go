package store

import (
	"fmt"
	"strings"
)

// Dialect is the SQL backend a Store talks to. The ingestion pipeline must
// run unmodified against either: Postgres in production, sqlite for local
// development, tests, and as a fallback single-writer backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// placeholders builds the "$1, $2, ..." or "?, ?, ..." list a dialect expects
// for n bound parameters starting at startIdx (1-based, only meaningful for
// Postgres numbering).
func placeholders(d Dialect, startIdx, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		if d == DialectPostgres {
			parts[i] = fmt.Sprintf("$%d", startIdx+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// rebind rewrites a query written with "?" placeholders into Postgres's "$N"
// form. SQLite queries are returned unchanged.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// upsertConflictClause returns the dialect-appropriate "ON CONFLICT" tail;
// both Postgres and modern SQLite accept the same syntax here, so this exists
// mainly to keep call sites self-documenting about which columns form the
// conflict target.
func upsertConflictClause(conflictCols []string, setClause string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictCols, ", "), setClause)
}

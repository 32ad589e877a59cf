// Package sqlstore persists samples and training runs on any database/sql
// backend. Queries are written once with ? placeholders and rebound per dialect.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect describes the placeholder style of a driver
type Dialect struct {
	Name   string
	dollar bool
}

var (
	// DuckDB binds ? placeholders
	DuckDB = Dialect{Name: "duckdb"}
	// SQLite binds ? placeholders
	SQLite = Dialect{Name: "sqlite3"}
	// Postgres binds $1, $2, ...
	Postgres = Dialect{Name: "postgres", dollar: true}
)

// Rebind rewrites ? placeholders for the dialect. Question marks inside
// single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.dollar {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

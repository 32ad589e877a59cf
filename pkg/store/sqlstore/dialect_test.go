package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "SELECT * FROM samples WHERE sensor = ? AND ts >= ? AND source <> '?' LIMIT ?"

	require.Equal(t, q, DuckDB.Rebind(q))
	require.Equal(t, q, SQLite.Rebind(q))
	require.Equal(t,
		"SELECT * FROM samples WHERE sensor = $1 AND ts >= $2 AND source <> '?' LIMIT $3",
		Postgres.Rebind(q))
}

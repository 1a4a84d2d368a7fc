package main

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lumbercamp.ai/internal/persistence/indexdb"
	"lumbercamp.ai/internal/sim/world"
)

func TestSnapshotTicks_SortedAndFiltered(t *testing.T) {
	runDir := t.TempDir()
	dir := filepath.Join(runDir, "snapshots")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"300.snap.zst", "20.snap.zst", "notes.txt", "x.snap.zst", "1000.snap.zst"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	require.Equal(t, []uint64{20, 300, 1000}, snapshotTicks(runDir))
	require.Equal(t, filepath.Join(dir, "1000.snap.zst"), latestSnapshot(runDir))

	require.Empty(t, snapshotTicks(t.TempDir()))
	require.Equal(t, "", latestSnapshot(t.TempDir()))
}

func TestQueryRows_ReadsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camp.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	require.NoError(t, err)
	_ = idx.WriteAudit(world.AuditEntry{Tick: 4, Actor: "W1", Action: "EXTRACT", NodeID: "N1", Amount: 1})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 5, Actor: "W1", Action: "EXTRACT", NodeID: "N1", Amount: 1})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 9, Actor: "W1", Action: "DEPOSIT", Amount: 2})
	require.NoError(t, idx.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	type count struct {
		Action string
		N      int
	}
	var got []count
	err = queryRows(db, `SELECT action,COUNT(*) FROM audits GROUP BY action ORDER BY action`, nil, func(rows *sql.Rows) (any, error) {
		var c count
		err := rows.Scan(&c.Action, &c.N)
		got = append(got, c)
		return c, err
	})
	require.NoError(t, err)
	require.Equal(t, []count{{"DEPOSIT", 1}, {"EXTRACT", 2}}, got)

	err = queryRows(db, `SELECT nope FROM audits`, nil, func(*sql.Rows) (any, error) { return nil, nil })
	require.Error(t, err)
}

func TestAdminURL(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:8080/admin/v1/state", adminURL(" http://127.0.0.1:8080/ ", "/admin/v1/state", nil))

	q := url.Values{}
	q.Set("actor", "W1")
	q.Set("limit", "5")
	require.Equal(t, "http://h/admin/v1/audits?actor=W1&limit=5", adminURL("http://h", "/admin/v1/audits", q))
}

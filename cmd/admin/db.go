package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-world WORLD -run RUN | -db PATH] [-limit N] [-worker W] runs|snapshots|ticks|commands|audits|actions"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "camp", "world id")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	workerID := fs.String("worker", "", "worker filter (commands, audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, *worldID, *runID, "index", "camp.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	worker := strings.TrimSpace(*workerID)
	var err2 error
	switch q {
	case "runs":
		err2 = queryRows(db, `SELECT run_id,world_id,seed,tuning_digest,started_at FROM runs ORDER BY started_at DESC LIMIT ?`,
			[]any{*limit}, func(rows *sql.Rows) (any, error) {
				var r struct {
					RunID        string `json:"run_id"`
					WorldID      string `json:"world_id"`
					Seed         int64  `json:"seed"`
					TuningDigest string `json:"tuning_digest"`
					StartedAt    string `json:"started_at"`
				}
				err := rows.Scan(&r.RunID, &r.WorldID, &r.Seed, &r.TuningDigest, &r.StartedAt)
				return r, err
			})

	case "snapshots":
		err2 = queryRows(db, `SELECT tick,path,seed,workers,nodes,wood_stored,wood_remaining,digest FROM snapshots ORDER BY tick DESC LIMIT ?`,
			[]any{*limit}, func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick          int64  `json:"tick"`
					Path          string `json:"path"`
					Seed          int64  `json:"seed"`
					Workers       int    `json:"workers"`
					Nodes         int    `json:"nodes"`
					WoodStored    int    `json:"wood_stored"`
					WoodRemaining int    `json:"wood_remaining"`
					Digest        string `json:"digest"`
				}
				err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Workers, &r.Nodes, &r.WoodStored, &r.WoodRemaining, &r.Digest)
				return r, err
			})

	case "ticks":
		// Only ticks that carried commands; quiet ticks are all alike.
		err2 = queryRows(db, `SELECT tick,digest,commands FROM ticks WHERE commands > 0 ORDER BY tick DESC LIMIT ?`,
			[]any{*limit}, func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick     int64  `json:"tick"`
					Digest   string `json:"digest"`
					Commands int    `json:"commands"`
				}
				err := rows.Scan(&r.Tick, &r.Digest, &r.Commands)
				return r, err
			})

	case "commands":
		q := `SELECT tick,seq,source,ref,kind,worker_id,accepted,cmd_json FROM commands ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs := []any{*limit}
		if worker != "" {
			q = `SELECT tick,seq,source,ref,kind,worker_id,accepted,cmd_json FROM commands WHERE worker_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
			qargs = []any{worker, *limit}
		}
		err2 = queryRows(db, q, qargs, func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick     int64           `json:"tick"`
				Seq      int             `json:"seq"`
				Source   string          `json:"source"`
				Ref      string          `json:"ref,omitempty"`
				Kind     string          `json:"kind"`
				WorkerID string          `json:"worker_id,omitempty"`
				Accepted bool            `json:"accepted"`
				Command  json.RawMessage `json:"command"`
			}
			var accepted int
			var raw string
			err := rows.Scan(&r.Tick, &r.Seq, &r.Source, &r.Ref, &r.Kind, &r.WorkerID, &accepted, &raw)
			r.Accepted = accepted != 0
			r.Command = json.RawMessage(raw)
			return r, err
		})

	case "audits":
		q := `SELECT tick,actor,action,node_id,amount,x,y,reason FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs := []any{*limit}
		if worker != "" {
			q = `SELECT tick,actor,action,node_id,amount,x,y,reason FROM audits WHERE actor=? ORDER BY tick DESC, seq DESC LIMIT ?`
			qargs = []any{worker, *limit}
		}
		err2 = queryRows(db, q, qargs, func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick   int64   `json:"tick"`
				Actor  string  `json:"actor"`
				Action string  `json:"action"`
				NodeID string  `json:"node_id,omitempty"`
				Amount int     `json:"amount,omitempty"`
				X      float64 `json:"x"`
				Y      float64 `json:"y"`
				Reason string  `json:"reason,omitempty"`
			}
			err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.NodeID, &r.Amount, &r.X, &r.Y, &r.Reason)
			return r, err
		})

	case "actions":
		err2 = queryRows(db, `SELECT action,COUNT(*),COALESCE(SUM(amount),0) FROM audits GROUP BY action ORDER BY action`,
			nil, func(rows *sql.Rows) (any, error) {
				var r struct {
					Action string `json:"action"`
					Count  int    `json:"count"`
					Amount int    `json:"amount"`
				}
				err := rows.Scan(&r.Action, &r.Count, &r.Amount)
				return r, err
			})

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, dbUsage)
		os.Exit(2)
	}
	if err2 != nil {
		fmt.Fprintln(os.Stderr, q+":", err2)
		os.Exit(1)
	}
}

// queryRows runs q and prints one JSON line per row built by scan.
func queryRows(db *sql.DB, q string, args []any, scan func(*sql.Rows) (any, error)) error {
	rows, err := db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		printJSON(v)
	}
	return rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

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

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	since := fs.Uint64("since_tick", 0, "lower tick bound (ticks, edits, joins)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor_id filter (edits)")
	rejected := fs.Bool("rejected", false, "only rejected edits (edits)")
	budget := fs.Bool("budget", false, "only ticks that hit the wire budget (ticks)")
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
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, queryOpts{
		Since:    *since,
		Limit:    *limit,
		Actor:    strings.TrimSpace(*actor),
		Rejected: *rejected,
		Budget:   *budget,
	}, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] snapshots|ticks|edits|joins|configs")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type queryOpts struct {
	Since    uint64
	Limit    int
	Actor    string
	Rejected bool
	Budget   bool
}

type snapshotRow struct {
	Tick   int64  `json:"tick"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Blocks int    `json:"blocks"`
	Wires  int    `json:"wires"`
	Gates  int    `json:"gates"`
	Axles  int    `json:"axles"`
}

type tickRow struct {
	Tick           int64  `json:"tick"`
	Digest         string `json:"digest"`
	Joins          int    `json:"joins"`
	Leaves         int    `json:"leaves"`
	Edits          int    `json:"edits"`
	Rejected       int    `json:"rejected"`
	Passes         int    `json:"passes"`
	GateEvals      int    `json:"gate_evals"`
	WireUpdates    int    `json:"wire_updates"`
	WirePending    int    `json:"wire_pending"`
	BudgetExceeded bool   `json:"budget_exceeded"`
}

type editRow struct {
	Tick    int64           `json:"tick"`
	Seq     int             `json:"seq"`
	ActorID string          `json:"actor_id"`
	Op      string          `json:"op"`
	Pos     [3]int          `json:"pos"`
	Code    string          `json:"code,omitempty"`
	Edit    json.RawMessage `json:"edit"`
}

type joinRow struct {
	Tick    int64  `json:"tick"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
}

type configRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func runQuery(db *sql.DB, q string, o queryOpts, emit func(any)) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,digest,blocks,wires,gates,axles FROM snapshots ORDER BY tick DESC LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r snapshotRow
			if err := rows.Scan(&r.Tick, &r.Path, &r.Digest, &r.Blocks, &r.Wires, &r.Gates, &r.Axles); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "ticks":
		stmt := `SELECT tick,digest,joins,leaves,edits,rejected,passes,gate_evals,wire_updates,wire_pending,budget_exceeded FROM ticks WHERE tick>=? ORDER BY tick LIMIT ?`
		if o.Budget {
			stmt = `SELECT tick,digest,joins,leaves,edits,rejected,passes,gate_evals,wire_updates,wire_pending,budget_exceeded FROM ticks WHERE budget_exceeded=1 AND tick>=? ORDER BY tick LIMIT ?`
		}
		rows, err := db.Query(stmt, o.Since, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r tickRow
			var budget int
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Edits, &r.Rejected, &r.Passes, &r.GateEvals, &r.WireUpdates, &r.WirePending, &budget); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.BudgetExceeded = budget != 0
			emit(r)
		}
		return rows.Err()

	case "edits":
		stmt := `SELECT tick,seq,actor_id,op,x,y,z,code,edit_json FROM edits WHERE tick>=?`
		args := []any{o.Since}
		if o.Actor != "" {
			stmt += ` AND actor_id=?`
			args = append(args, o.Actor)
		}
		if o.Rejected {
			stmt += ` AND code<>''`
		}
		stmt += ` ORDER BY tick,seq LIMIT ?`
		args = append(args, o.Limit)
		rows, err := db.Query(stmt, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r editRow
			var raw string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.ActorID, &r.Op, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Code, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Edit = json.RawMessage(raw)
			emit(r)
		}
		return rows.Err()

	case "joins":
		rows, err := db.Query(`SELECT tick,actor_id,name FROM joins WHERE tick>=? ORDER BY tick,actor_id LIMIT ?`, o.Since, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r joinRow
			if err := rows.Scan(&r.Tick, &r.ActorID, &r.Name); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "configs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM configs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r configRow
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"

	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/sim/tuning"
	"circuitcraft.ai/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a secondary, queryable index of the tick log and snapshots.
// Writes are queued and applied by one background goroutine; the JSONL tick
// log stays the source of truth, so a full queue drops rows instead of
// blocking the tick.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
	flushed  chan struct{}
}

type snapshotRow struct {
	Tick   uint64
	Path   string
	Digest string
	Blocks int
	Wires  int
	Gates  int
	Axles  int
}

// Stats reports queue health for metrics.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropSnapshotTotal uint64
	WriteErrorTotal   uint64
}

func OpenSQLite(path string, log logrus.FieldLogger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: log.WithField("component", "indexdb"),
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sentry.Recover()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			edits INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			passes INTEGER NOT NULL,
			gate_evals INTEGER NOT NULL,
			wire_updates INTEGER NOT NULL,
			wire_pending INTEGER NOT NULL,
			budget_exceeded INTEGER NOT NULL,
			gates_pending INTEGER NOT NULL DEFAULT 0,
			pass_limit_hit INTEGER NOT NULL DEFAULT 0,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_budget ON ticks(budget_exceeded, tick);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, actor_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			PRIMARY KEY (tick, actor_id)
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			code TEXT NOT NULL,
			edit_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_actor_tick ON edits(actor_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos_tick ON edits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			wires INTEGER NOT NULL,
			gates INTEGER NOT NULL,
			axles INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTick implements world.TickLogger.
func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:   snap.Header.Tick,
		Path:   path,
		Digest: snap.Header.Digest,
		Blocks: len(snap.Blocks),
	}
	for _, b := range snap.Blocks {
		switch b.Block {
		case world.BlockWire.String():
			r.Wires++
		case world.BlockGate.String():
			r.Gates++
		case world.BlockAxle.String():
			r.Axles++
		}
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

// UpsertConfig stores the tuning actually applied and the raw layout file,
// keyed by content digest.
func (s *SQLiteIndex) UpsertConfig(tune tuning.Tuning, layoutPath string) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name string
		json []byte
	}
	var rows []kv
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", json: b})
	}
	if layoutPath != "" {
		b, err := os.ReadFile(layoutPath)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "layout", json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		digest := fmt.Sprintf("%016x", xxh3.Hash(r.json))
		if _, err := stmt.Exec(r.name, digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TickDigest returns the indexed digest of tick, or sql.ErrNoRows.
func (s *SQLiteIndex) TickDigest(ctx context.Context, tick uint64) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick=?`, int64(tick)).Scan(&d)
	return d, err
}

// LatestSnapshot returns the newest indexed snapshot at or before tick.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context, atOrBefore uint64) (path string, tick uint64, err error) {
	var t int64
	err = s.db.QueryRowContext(ctx,
		`SELECT path, tick FROM snapshots WHERE tick<=? ORDER BY tick DESC LIMIT 1`, int64(atOrBefore),
	).Scan(&path, &t)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("no snapshot at or before tick %d", atOrBefore)
	}
	return path, uint64(t), err
}

// Flush blocks until every row queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,edits,rejected,passes,gate_evals,wire_updates,wire_pending,budget_exceeded,gates_pending,pass_limit_hit,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,actor_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,actor_id) VALUES(?,?)`)
	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO edits(tick,seq,actor_id,op,x,y,z,code,edit_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,digest,blocks,wires,gates,axles) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertEdit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("begin tx")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.log.WithError(err).Warn("commit")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.writeErrors.Add(1)
		s.log.WithError(err).Warn("index write failed; rolling back batch")
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			t := int64(e.Tick)
			rejected := 0
			for _, ed := range e.Edits {
				if ed.Code != "" {
					rejected++
				}
			}
			raw, _ := json.Marshal(e)
			if !exec(insertTick, t, e.Digest, len(e.Joins), len(e.Leaves), len(e.Edits), rejected,
				e.Passes, e.GateEvals, e.WireUpdates, e.WirePending, boolInt(e.BudgetExceeded), e.GatesPending, boolInt(e.PassLimitHit), string(raw)) {
				continue
			}
			ok := true
			for _, j := range e.Joins {
				if ok = exec(insertJoin, t, j.ActorID, j.Name); !ok {
					break
				}
			}
			for _, id := range e.Leaves {
				if !ok {
					break
				}
				ok = exec(insertLeave, t, id)
			}
			for i, ed := range e.Edits {
				if !ok {
					break
				}
				b, _ := json.Marshal(ed.Edit)
				p := ed.Edit.Pos
				ok = exec(insertEdit, t, i, ed.ActorID, ed.Edit.Op, p[0], p[1], p[2], ed.Code, string(b))
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Digest, sn.Blocks, sn.Wires, sn.Gates, sn.Axles)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/tuning"
	"circuitcraft.ai/internal/sim/world"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func flush(t *testing.T, idx *SQLiteIndex) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestSQLiteIndex_WriteTickRows(t *testing.T) {
	idx := openTest(t)
	entry := world.TickLogEntry{
		Tick:   7,
		Digest: "00000000deadbeef",
		Joins:  []world.RecordedJoin{{ActorID: "A1", Name: "tester"}},
		Edits: []world.RecordedEdit{
			{ActorID: "A1", Edit: protocol.Edit{Op: protocol.OpPlace, Block: "WIRE", Pos: [3]int{1, 2, 3}}},
			{ActorID: "A1", Edit: protocol.Edit{Op: protocol.OpToggle, Pos: [3]int{4, 5, 6}}, Code: protocol.ErrInvalidTarget},
		},
		Passes:         2,
		BudgetExceeded: true,
		GatesPending:   3,
		PassLimitHit:   true,
	}
	if err := idx.WriteTick(entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	flush(t, idx)

	d, err := idx.TickDigest(context.Background(), 7)
	if err != nil || d != entry.Digest {
		t.Fatalf("digest = %q, %v", d, err)
	}
	var edits, rejected, budget, pending, limit int
	if err := idx.db.QueryRow(`SELECT edits, rejected, budget_exceeded, gates_pending, pass_limit_hit FROM ticks WHERE tick=7`).
		Scan(&edits, &rejected, &budget, &pending, &limit); err != nil {
		t.Fatalf("query ticks: %v", err)
	}
	if edits != 2 || rejected != 1 || budget != 1 {
		t.Fatalf("edits=%d rejected=%d budget=%d", edits, rejected, budget)
	}
	if pending != 3 || limit != 1 {
		t.Fatalf("gates_pending=%d pass_limit_hit=%d", pending, limit)
	}
	var code string
	var x int
	if err := idx.db.QueryRow(`SELECT code, x FROM edits WHERE tick=7 AND seq=1`).Scan(&code, &x); err != nil {
		t.Fatalf("query edits: %v", err)
	}
	if code != protocol.ErrInvalidTarget || x != 4 {
		t.Fatalf("edit row code=%q x=%d", code, x)
	}
	var name string
	if err := idx.db.QueryRow(`SELECT name FROM joins WHERE tick=7 AND actor_id='A1'`).Scan(&name); err != nil || name != "tester" {
		t.Fatalf("join row = %q, %v", name, err)
	}

	if _, err := idx.TickDigest(context.Background(), 8); err != sql.ErrNoRows {
		t.Fatalf("missing tick error = %v", err)
	}
}

func TestSQLiteIndex_LatestSnapshot(t *testing.T) {
	idx := openTest(t)
	for _, tick := range []uint64{100, 200, 300} {
		idx.RecordSnapshot(filepath.Join("snapshots", "x.snap.zst"), snapshot.SnapshotV1{
			Header: snapshot.Header{Version: snapshot.Version, Tick: tick, Digest: "d"},
			Blocks: []snapshot.BlockV1{{Block: "WIRE"}, {Block: "GATE"}, {Block: "AXLE"}, {Block: "STONE"}},
		})
	}
	flush(t, idx)

	_, tick, err := idx.LatestSnapshot(context.Background(), 250)
	if err != nil || tick != 200 {
		t.Fatalf("latest <= 250 = %d, %v", tick, err)
	}
	if _, _, err := idx.LatestSnapshot(context.Background(), 50); err == nil {
		t.Fatalf("expected no snapshot before tick 100")
	}
	var wires, gates, axles, blocks int
	if err := idx.db.QueryRow(`SELECT blocks, wires, gates, axles FROM snapshots WHERE tick=300`).Scan(&blocks, &wires, &gates, &axles); err != nil {
		t.Fatalf("query: %v", err)
	}
	if blocks != 4 || wires != 1 || gates != 1 || axles != 1 {
		t.Fatalf("counts = %d %d %d %d", blocks, wires, gates, axles)
	}
}

func TestSQLiteIndex_UpsertConfig(t *testing.T) {
	idx := openTest(t)
	if err := idx.UpsertConfig(tuning.Defaults(), filepath.Join("..", "..", "..", "configs", "layouts", "and_gate.yaml")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM configs`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("configs rows = %d, %v", n, err)
	}
	var v string
	if err := idx.db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil || v != schemaVersion {
		t.Fatalf("schema_version = %q, %v", v, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops = %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

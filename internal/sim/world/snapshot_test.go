package world

import (
	"path/filepath"
	"testing"

	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/protocol"
)

// buildBench loads every shipped layout at a distinct offset-free position set.
func buildBench(t *testing.T, w *World) {
	t.Helper()
	loadLayout(t, w, "axle_line.yaml")
	submit(t, w, "A1",
		protocol.Edit{Op: protocol.OpPlace, Block: "LEVER", Pos: [3]int{0, 5, 0}},
		protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{0, 5, 1}, Facing: "south", Logic: "PULSE_FORMER"},
		protocol.Edit{Op: protocol.OpPlace, Block: "WIRE", Pos: [3]int{0, 5, 2}},
		protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{0, 5, 3}, Facing: "south", Logic: "RS_LATCH"},
		protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{3, 5, 0}, Facing: "east", Logic: "SYNCHRONIZER"},
		protocol.Edit{Op: protocol.OpPlace, Block: "POWER", Pos: [3]int{2, 5, 0}, Strength: 9},
		protocol.Edit{Op: protocol.OpPlace, Block: "LAMP", Pos: [3]int{4, 5, 0}},
	)
}

func TestSnapshot_ResumeMatchesDigests(t *testing.T) {
	cfg := WorldConfig{ID: "bench", Seed: 99, ToggleCooldownTicks: 2, SynchronizerPhaseTicks: 3}
	a := newTestWorld(t, cfg)
	buildBench(t, a)
	submit(t, a, "A1", toggle(0, 5, 0))
	for i := 0; i < 4; i++ {
		a.StepOnce(nil, nil, nil)
	}

	snap := a.ExportSnapshot(a.CurrentTick() - 1)
	path := filepath.Join(t.TempDir(), "snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	read, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	b := newTestWorld(t, WorldConfig{})
	if err := b.ImportSnapshot(read); err != nil {
		t.Fatalf("import: %v", err)
	}
	if b.CurrentTick() != a.CurrentTick() {
		t.Fatalf("resumed at tick %d, want %d", b.CurrentTick(), a.CurrentTick())
	}
	if b.Config().SynchronizerPhaseTicks != 3 || b.Config().Seed != 99 {
		t.Fatalf("config not restored: %+v", b.Config())
	}

	script := [][]protocol.Edit{
		nil,
		{toggle(0, 5, 0)},
		nil,
		{toggle(0, 5, 0)},
		{{Op: protocol.OpBreak, Pos: [3]int{0, 1, 0}}},
		nil,
	}
	for i, edits := range script {
		var envs []EditEnvelope
		if edits != nil {
			envs = []EditEnvelope{{ActorID: "A1", Edits: edits}}
		}
		ta, da := a.StepOnce(nil, nil, envs)
		tb, db := b.StepOnce(nil, nil, envs)
		if ta != tb || da != db {
			t.Fatalf("step %d: a=(%d,%s) b=(%d,%s)", i, ta, da, tb, db)
		}
	}
}

func TestSnapshot_ExportIsSorted(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	submit(t, w, "A1",
		protocol.Edit{Op: protocol.OpPlace, Block: "WIRE", Pos: [3]int{5, 0, 0}},
		protocol.Edit{Op: protocol.OpPlace, Block: "WIRE", Pos: [3]int{-5, 0, 0}},
		protocol.Edit{Op: protocol.OpPlace, Block: "LEVER", Pos: [3]int{0, 0, 0}},
	)
	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	if len(snap.Blocks) != 3 || snap.Blocks[0].Pos != [3]int{-5, 0, 0} || snap.Blocks[2].Pos != [3]int{5, 0, 0} {
		t.Fatalf("blocks = %+v", snap.Blocks)
	}
	if snap.Header.Digest != w.LastDigest() {
		t.Fatalf("header digest %s, last %s", snap.Header.Digest, w.LastDigest())
	}
}

func TestWorld_DeterministicDigests(t *testing.T) {
	run := func() []string {
		w := newTestWorld(t, WorldConfig{Seed: 5, ToggleCooldownTicks: 1})
		buildBench(t, w)
		submit(t, w, "A1", protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{9, 0, 9}, Facing: "north", Logic: "RANDOMIZER"})
		submit(t, w, "A1", protocol.Edit{Op: protocol.OpPlace, Block: "LEVER", Pos: [3]int{9, 0, 10}})
		var out []string
		for i := 0; i < 12; i++ {
			var envs []EditEnvelope
			if i%2 == 0 {
				envs = []EditEnvelope{{ActorID: "A1", Edits: []protocol.Edit{toggle(9, 0, 10)}}}
			}
			_, d := w.StepOnce(nil, nil, envs)
			out = append(out, d)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tick %d: %s != %s", i, a[i], b[i])
		}
	}
	if a[0] == a[len(a)-1] {
		t.Fatalf("digest never changed")
	}
}

func TestImportSnapshot_RejectsBadBlock(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	err := w.ImportSnapshot(snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "x"},
		Blocks: []snapshot.BlockV1{{Pos: [3]int{0, 0, 0}, Block: "GATE", Facing: "north", Logic: "simplelogic:flux"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

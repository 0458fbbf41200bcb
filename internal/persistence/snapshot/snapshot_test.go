package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "120.snap.zst")
	in := SnapshotV1{
		Header:      Header{Version: Version, WorldID: "bench", Tick: 120, Digest: "00112233aabbccdd"},
		Seed:        42,
		TickRate:    20,
		MaxStrength: 15,
		PhaseTicks:  4,
		Blocks: []BlockV1{
			{Pos: [3]int{0, 0, 0}, Block: "WIRE"},
			{Pos: [3]int{1, 0, 0}, Block: "GATE", Facing: "east", Logic: "simplelogic:rs_latch",
				Gate: &GateStateV1{Outputs: [4]uint8{15, 0, 0, 0}, Latch: true}},
			{Pos: [3]int{2, 0, 0}, Block: "LEVER", On: true},
		},
		Cooldowns: []CooldownV1{{ActorID: "A1", Until: 124}},
		Counters:  CountersV1{NextActor: 3},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header = %+v, want %+v", h, in.Header)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out.Blocks) != 3 || out.Blocks[1].Gate == nil || !out.Blocks[1].Gate.Latch {
		t.Fatalf("blocks lost: %+v", out.Blocks)
	}
	if out.Blocks[1].Gate.Outputs[0] != 15 || !out.Blocks[2].On {
		t.Fatalf("block state lost: %+v", out.Blocks)
	}
	if out.PhaseTicks != 4 || out.Counters.NextActor != 3 || len(out.Cooldowns) != 1 {
		t.Fatalf("parameters lost: %+v", out)
	}
}

func TestReadSnapshot_RejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 9}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}

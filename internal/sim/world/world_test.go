package world

import (
	"path/filepath"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/layout"
)

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	w, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func loadLayout(t *testing.T, w *World, name string) {
	t.Helper()
	l, err := layout.Load(filepath.Join("..", "..", "..", "configs", "layouts", name))
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	if err := w.ApplyLayout(l); err != nil {
		t.Fatalf("apply %s: %v", name, err)
	}
}

// submit runs one tick carrying a single EDIT message and returns its ACK.
func submit(t *testing.T, w *World, actor string, edits ...protocol.Edit) protocol.AckMsg {
	t.Helper()
	resp := make(chan protocol.AckMsg, 1)
	w.StepOnce(nil, nil, []EditEnvelope{{ActorID: actor, ReqID: "r1", Edits: edits, Resp: resp}})
	select {
	case ack := <-resp:
		return ack
	default:
		t.Fatalf("no ACK delivered")
		return protocol.AckMsg{}
	}
}

func codes(ack protocol.AckMsg) []string {
	out := make([]string, len(ack.Results))
	for i, r := range ack.Results {
		out[i] = r.Code
	}
	return out
}

func toggle(x, y, z int) protocol.Edit {
	return protocol.Edit{Op: protocol.OpToggle, Pos: [3]int{x, y, z}}
}

func placeAt(block string, x, y, z int) protocol.Edit {
	return protocol.Edit{Op: protocol.OpPlace, Block: block, Pos: [3]int{x, y, z}}
}

func TestWorld_AndGateLightsLamp(t *testing.T) {
	w := newTestWorld(t, WorldConfig{ToggleCooldownTicks: 4})
	loadLayout(t, w, "and_gate.yaml")
	lampPos := Pos{0, 0, -3}

	w.StepOnce(nil, nil, nil)
	if w.LampLit(lampPos) {
		t.Fatalf("lamp lit with both levers off")
	}

	if c := codes(submit(t, w, "A1", toggle(-1, 0, 0))); c[0] != "" {
		t.Fatalf("toggle left: %v", c)
	}
	if w.LampLit(lampPos) {
		t.Fatalf("lamp lit with one lever on")
	}

	if c := codes(submit(t, w, "A2", toggle(1, 0, 0))); c[0] != "" {
		t.Fatalf("toggle right: %v", c)
	}
	if !w.LampLit(lampPos) {
		t.Fatalf("lamp dark with both levers on")
	}
	if got := w.WireStrength(Pos{0, 0, -2}); got != 14 {
		t.Fatalf("second wire = %d, want 14", got)
	}

	// Off again after the cooldown window.
	for i := 0; i < 4; i++ {
		w.StepOnce(nil, nil, nil)
	}
	submit(t, w, "A1", toggle(-1, 0, 0))
	if w.LampLit(lampPos) || w.WireStrength(Pos{0, 0, -1}) != 0 {
		t.Fatalf("circuit still on after a lever went off")
	}
}

func TestWorld_ToggleCooldownPerActor(t *testing.T) {
	w := newTestWorld(t, WorldConfig{ToggleCooldownTicks: 3})
	submit(t, w, "A1", placeAt("LEVER", 0, 0, 0))

	start := w.CurrentTick()
	if c := codes(submit(t, w, "A1", toggle(0, 0, 0))); c[0] != "" {
		t.Fatalf("first toggle: %v", c)
	}
	if c := codes(submit(t, w, "A1", toggle(0, 0, 0))); c[0] != protocol.ErrCooldown {
		t.Fatalf("second toggle = %v, want cooldown", c)
	}
	if c := codes(submit(t, w, "A2", toggle(0, 0, 0))); c[0] != "" {
		t.Fatalf("other actor blocked: %v", c)
	}
	for w.CurrentTick() < start+3 {
		w.StepOnce(nil, nil, nil)
	}
	if c := codes(submit(t, w, "A1", toggle(0, 0, 0))); c[0] != "" {
		t.Fatalf("toggle after cooldown: %v", c)
	}
}

func TestWorld_EditErrors(t *testing.T) {
	w := newTestWorld(t, WorldConfig{DisabledLogic: []string{"RANDOMIZER"}})
	gate := func(logic string, inverted ...string) protocol.Edit {
		return protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{5, 0, 0}, Facing: "north", Logic: logic, Inverted: inverted}
	}
	ack := submit(t, w, "A1",
		placeAt("WIRE", 0, 0, 0),
		placeAt("WIRE", 0, 0, 0),
		protocol.Edit{Op: protocol.OpBreak, Pos: [3]int{9, 9, 9}},
		gate("FLUX"),
		gate("simplelogic:randomizer"),
		gate("NAND", "back"),
		protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{5, 0, 0}, Facing: "up", Logic: "NAND"},
		toggle(0, 0, 0),
		protocol.Edit{Op: "MELT"},
		placeAt("TORCH", 1, 0, 0),
		gate("NAND", "left"),
	)
	want := []string{
		"",
		protocol.ErrOccupied,
		protocol.ErrInvalidTarget,
		protocol.ErrConfigUnknownLogic,
		protocol.ErrConfigDisabled,
		protocol.ErrConfigBadMask,
		protocol.ErrConfigBadFacing,
		protocol.ErrInvalidTarget,
		protocol.ErrBadRequest,
		protocol.ErrBadRequest,
		"",
	}
	got := codes(ack)
	if !ack.Accepted || len(got) != len(want) {
		t.Fatalf("ack = %+v", ack)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("edit %d: code %q, want %q", i, got[i], want[i])
		}
	}
	if w.BlockAt(Pos{5, 0, 0}) != BlockGate {
		t.Fatalf("valid gate not placed after rejected ones")
	}

	empty := submit(t, w, "A1")
	if empty.Accepted || empty.Code != protocol.ErrBadRequest {
		t.Fatalf("empty EDIT accepted: %+v", empty)
	}
}

func TestWorld_OnlyBottomFace(t *testing.T) {
	w := newTestWorld(t, WorldConfig{OnlyBottomFace: true})
	g := protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{0, 1, 0}, Facing: "east", Preset: "NOT"}
	if c := codes(submit(t, w, "A1", g)); c[0] != protocol.ErrNoSupport {
		t.Fatalf("floating gate = %v, want no support", c)
	}
	if c := codes(submit(t, w, "A1", placeAt("STONE", 0, 0, 0), g)); c[0] != "" || c[1] != "" {
		t.Fatalf("supported gate = %v", c)
	}
	// NOT of nothing is high.
	if got := w.Gate(Pos{0, 1, 0}).SignalStrength(cube.FaceEast); got != 15 {
		t.Fatalf("NOT output = %d", got)
	}
}

func TestWorld_WireLineAndLamps(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	loadLayout(t, w, "wire_line.yaml")
	w.StepOnce(nil, nil, nil)
	for d := 0; d < 20; d++ {
		if got, want := int(w.WireStrength(Pos{d, 0, 0})), max(0, 15-d); got != want {
			t.Fatalf("wire %d = %d, want %d", d, got, want)
		}
	}
	if !w.LampLit(Pos{14, 1, 0}) || w.LampLit(Pos{15, 1, 0}) {
		t.Fatalf("lamps: 14=%v 15=%v", w.LampLit(Pos{14, 1, 0}), w.LampLit(Pos{15, 1, 0}))
	}

	submit(t, w, "A1", protocol.Edit{Op: protocol.OpBreak, Pos: [3]int{-1, 0, 0}})
	if w.WireStrength(Pos{0, 0, 0}) != 0 || w.LampLit(Pos{14, 1, 0}) {
		t.Fatalf("line still powered after source removal")
	}
}

type captureLog struct{ entries []TickLogEntry }

func (c *captureLog) WriteTick(e TickLogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestWorld_WireBudgetCarriesOver(t *testing.T) {
	w := newTestWorld(t, WorldConfig{WireBudget: 4})
	logs := &captureLog{}
	w.SetTickLogger(logs)
	loadLayout(t, w, "wire_line.yaml")

	for i := 0; i < 50 && (i == 0 || w.Metrics().WirePending > 0); i++ {
		w.StepOnce(nil, nil, nil)
	}
	if w.Metrics().WirePending != 0 {
		t.Fatalf("wire work never drained")
	}
	if len(logs.entries) < 2 || !logs.entries[0].BudgetExceeded || logs.entries[0].WirePending == 0 {
		t.Fatalf("first tick should exceed the budget: %+v", logs.entries[0])
	}
	for d := 0; d < 20; d++ {
		if got, want := int(w.WireStrength(Pos{d, 0, 0})), max(0, 15-d); got != want {
			t.Fatalf("wire %d = %d, want %d", d, got, want)
		}
	}
	if tot := w.Metrics().Totals; tot.BudgetExceeded == 0 || tot.Ticks != uint64(len(logs.entries)) {
		t.Fatalf("totals = %+v", tot)
	}
}

func TestWorld_PassLimitReported(t *testing.T) {
	w := newTestWorld(t, WorldConfig{MaxPasses: 4})
	logs := &captureLog{}
	w.SetTickLogger(logs)

	// A NOR whose output loops back into its own left input never settles.
	nor := protocol.Edit{Op: protocol.OpPlace, Block: "GATE", Pos: [3]int{0, 0, 0}, Facing: "north", Logic: "NOR"}
	ack := submit(t, w, "A1", nor,
		placeAt("WIRE", 0, 0, -1), placeAt("WIRE", -1, 0, -1), placeAt("WIRE", -1, 0, 0))
	for i, c := range codes(ack) {
		if c != "" {
			t.Fatalf("edit %d rejected: %s", i, c)
		}
	}
	for i := 0; i < 4; i++ {
		w.StepOnce(nil, nil, nil)
	}

	hit := 0
	for _, e := range logs.entries {
		if e.PassLimitHit {
			hit++
			if e.GatesPending == 0 || e.Passes != 4 {
				t.Fatalf("pass limit entry = %+v", e)
			}
		}
	}
	if hit == 0 {
		t.Fatalf("no tick reported the pass limit: %+v", logs.entries)
	}
	m := w.Metrics()
	if m.Totals.PassLimitHits != uint64(hit) {
		t.Fatalf("PassLimitHits = %d, want %d", m.Totals.PassLimitHits, hit)
	}
	if last := logs.entries[len(logs.entries)-1]; last.PassLimitHit != m.PassLimitHit || last.GatesPending != m.GatesPending {
		t.Fatalf("metrics %+v disagree with last entry %+v", m, last)
	}
}

func TestTickStats_Settled(t *testing.T) {
	if !(TickStats{}).Settled() {
		t.Fatalf("zero stats should be settled")
	}
	if (TickStats{PassLimitHit: true, GatesPending: 1}).Settled() {
		t.Fatalf("pass limit hit reported as settled")
	}
	st := TickStats{}
	st.Wires.BudgetExceeded = true
	if st.Settled() {
		t.Fatalf("exceeded wire budget reported as settled")
	}
}

func TestWorld_LayoutSeedsLatch(t *testing.T) {
	w := newTestWorld(t, WorldConfig{ToggleCooldownTicks: 1})
	loadLayout(t, w, "rs_latch.yaml")
	w.StepOnce(nil, nil, nil)
	if !w.LampLit(Pos{0, 0, -1}) || w.LampLit(Pos{0, 0, 1}) {
		t.Fatalf("seeded latch: front=%v back=%v", w.LampLit(Pos{0, 0, -1}), w.LampLit(Pos{0, 0, 1}))
	}

	// Reset (right lever), release, and the bit stays cleared.
	submit(t, w, "A1", toggle(1, 0, 0))
	w.StepOnce(nil, nil, nil)
	submit(t, w, "A1", toggle(1, 0, 0))
	if w.LampLit(Pos{0, 0, -1}) || !w.LampLit(Pos{0, 0, 1}) {
		t.Fatalf("latch did not hold reset")
	}
}

func TestWorld_JoinAssignsActorIDs(t *testing.T) {
	w := newTestWorld(t, WorldConfig{DisabledLogic: []string{"SYNCHRONIZER"}})
	r1 := make(chan JoinResponse, 1)
	r2 := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: "ada", Resp: r1}, {Name: "bob", Resp: r2}}, nil, nil)
	a, b := <-r1, <-r2
	if a.Welcome.ActorID != "A1" || b.Welcome.ActorID != "A2" {
		t.Fatalf("ids = %s, %s", a.Welcome.ActorID, b.Welcome.ActorID)
	}
	for _, l := range a.Welcome.Logic {
		if l.Name == "SYNCHRONIZER" {
			t.Fatalf("disabled kind advertised")
		}
	}
	if len(a.Welcome.Logic) != 8 || a.Welcome.WorldParams.MaxStrength != 15 {
		t.Fatalf("welcome = %+v", a.Welcome)
	}
	w.StepOnce(nil, []string{"A1", "A9"}, nil)
	if w.Metrics().Actors != 1 {
		t.Fatalf("actors = %d, want 1", w.Metrics().Actors)
	}
}

func TestNew_RejectsUnknownDisabledLogic(t *testing.T) {
	if _, err := New(WorldConfig{DisabledLogic: []string{"FLUX"}}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

package circuit

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
)

func buildChain(t *testing.T, length int, s uint8) *fakeWorld {
	t.Helper()
	w := newFakeWorld(t)
	w.placeSource(Pos{-1, 0, 0}, s)
	for x := 0; x < length; x++ {
		w.placeWire(Pos{x, 0, 0})
	}
	return w
}

func TestWireNetwork_ChainDecay(t *testing.T) {
	w := buildChain(t, 20, 15)
	res := w.net.Propagate(0)
	if res.BudgetExceeded || res.Pending != 0 {
		t.Fatalf("unbounded propagate left work: %+v", res)
	}
	for d := 0; d < 20; d++ {
		want := max(0, 15-d)
		if got := w.strength(Pos{d, 0, 0}); got != want {
			t.Fatalf("distance %d: strength %d want %d", d, got, want)
		}
	}
}

func TestWireNetwork_WeakSourceDecay(t *testing.T) {
	w := buildChain(t, 8, 5)
	w.net.Propagate(0)
	for d := 0; d < 8; d++ {
		if got, want := w.strength(Pos{d, 0, 0}), max(0, 5-d); got != want {
			t.Fatalf("distance %d: strength %d want %d", d, got, want)
		}
	}
}

func TestWireNetwork_Idempotent(t *testing.T) {
	w := buildChain(t, 20, 15)
	w.net.Propagate(0)
	if len(w.net.TakeChanges()) == 0 {
		t.Fatalf("first propagation published nothing")
	}

	w.net.MarkAllDirty()
	res := w.net.Propagate(0)
	if res.Updated != 0 {
		t.Fatalf("re-propagation updated %d wires", res.Updated)
	}
	if ch := w.net.TakeChanges(); len(ch) != 0 {
		t.Fatalf("re-propagation published %v", ch)
	}
}

func TestWireNetwork_TriangleCycle(t *testing.T) {
	w := newFakeWorld(t)
	a, b, c := Pos{0, 0, 0}, Pos{1, 0, 0}, Pos{0, 0, 1}
	// b and c are not grid neighbors; link b's north face to c and c's east
	// face to b.
	w.portals[b.Side(cube.FaceNorth)] = c
	w.portals[c.Side(cube.FaceEast)] = b
	for _, p := range []Pos{a, b, c} {
		w.placeWire(p)
	}
	w.net.Propagate(0)

	w.placeSource(Pos{-1, 0, 0}, 15)
	if w.net.Pending() != 1 {
		t.Fatalf("pending seeds = %d, want 1", w.net.Pending())
	}
	res := w.net.Propagate(0)
	if res.Rounds > 2 {
		t.Fatalf("cycle took %d rounds", res.Rounds)
	}
	if got := w.strength(a); got != 15 {
		t.Fatalf("A = %d, want 15", got)
	}
	if w.strength(b) != 14 || w.strength(c) != 14 {
		t.Fatalf("B = %d, C = %d, want 14", w.strength(b), w.strength(c))
	}
	if res.Pending != 0 {
		t.Fatalf("cycle did not terminate: %+v", res)
	}
}

func TestWireNetwork_RingKeepsBestPath(t *testing.T) {
	// A 4x4 ring fed at one corner: each wire takes the shorter way around.
	w := newFakeWorld(t)
	var ring []Pos
	for x := 0; x < 4; x++ {
		ring = append(ring, Pos{x, 0, 0})
	}
	for z := 1; z < 4; z++ {
		ring = append(ring, Pos{3, 0, z})
	}
	for x := 2; x >= 0; x-- {
		ring = append(ring, Pos{x, 0, 3})
	}
	for z := 2; z >= 1; z-- {
		ring = append(ring, Pos{0, 0, z})
	}
	for _, p := range ring {
		w.placeWire(p)
	}
	w.placeSource(Pos{-1, 0, 0}, 15)
	w.net.Propagate(0)

	for i, p := range ring {
		hops := min(i, len(ring)-i)
		if got := w.strength(p); got != 15-hops {
			t.Fatalf("%v: strength %d want %d", p, got, 15-hops)
		}
	}
}

func TestWireNetwork_BreakAndReplace(t *testing.T) {
	w := buildChain(t, 10, 15)
	w.net.Propagate(0)

	w.breakWire(Pos{4, 0, 0})
	w.net.Propagate(0)
	for x := 5; x < 10; x++ {
		if got := w.strength(Pos{x, 0, 0}); got != 0 {
			t.Fatalf("x=%d still lit (%d) after cut", x, got)
		}
	}
	if got := w.strength(Pos{3, 0, 0}); got != 12 {
		t.Fatalf("upstream wire changed: %d", got)
	}

	w.placeWire(Pos{4, 0, 0})
	w.net.Propagate(0)
	for x := 0; x < 10; x++ {
		if got := w.strength(Pos{x, 0, 0}); got != 15-x {
			t.Fatalf("x=%d: %d after repair, want %d", x, got, 15-x)
		}
	}
}

func TestWireNetwork_SourceRemovalDarkens(t *testing.T) {
	w := buildChain(t, 6, 15)
	w.net.Propagate(0)
	delete(w.sources, Pos{-1, 0, 0})
	w.changed(Pos{-1, 0, 0})
	w.net.Propagate(0)
	for x := 0; x < 6; x++ {
		if got := w.strength(Pos{x, 0, 0}); got != 0 {
			t.Fatalf("x=%d: %d after source removal", x, got)
		}
	}
}

func TestWireNetwork_BudgetResumes(t *testing.T) {
	w := buildChain(t, 20, 15)
	first := w.net.Propagate(1)
	if !first.BudgetExceeded || first.Pending == 0 {
		t.Fatalf("budget not enforced: %+v", first)
	}
	if first.Seeds != 1 {
		t.Fatalf("seeds = %d, want 1", first.Seeds)
	}

	calls := 1
	for w.net.Pending() > 0 {
		w.net.Propagate(1)
		calls++
		if calls > 100 {
			t.Fatalf("propagation never drained")
		}
	}
	for d := 0; d < 20; d++ {
		if got, want := w.strength(Pos{d, 0, 0}), max(0, 15-d); got != want {
			t.Fatalf("distance %d: strength %d want %d", d, got, want)
		}
	}
}

func TestWireNetwork_NotifiesConsumers(t *testing.T) {
	w := buildChain(t, 3, 15)
	lamp := &sink{}
	w.sinks[Pos{2, 1, 0}] = lamp
	w.changed(Pos{2, 1, 0})
	w.net.Propagate(0)

	if lamp.last[cube.FaceDown] != 13 {
		t.Fatalf("lamp saw %v, want 13 on its down face", lamp.last)
	}
}

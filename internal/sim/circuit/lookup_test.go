package circuit

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// fakeWorld is a map-backed NeighborLookup and Notifier. Portals let a test
// link two non-adjacent positions so that topologies the grid cannot express
// (odd cycles) can be built.
type fakeWorld struct {
	t       *testing.T
	net     *WireNetwork
	gates   map[Pos]*GateNode
	sources map[Pos]*source
	sinks   map[Pos]*sink
	axles   map[Pos]*Axle
	wheels  map[Pos]*flywheel
	portals map[Pos]Pos

	notified []Pos
}

func newFakeWorld(t *testing.T) *fakeWorld {
	t.Helper()
	w := &fakeWorld{
		t:       t,
		gates:   map[Pos]*GateNode{},
		sources: map[Pos]*source{},
		sinks:   map[Pos]*sink{},
		axles:   map[Pos]*Axle{},
		wheels:  map[Pos]*flywheel{},
		portals: map[Pos]Pos{},
	}
	net, err := NewWireNetwork(w, 15)
	if err != nil {
		t.Fatalf("NewWireNetwork: %v", err)
	}
	w.net = net
	return w
}

func (w *fakeWorld) Resolve(pos Pos, face Face) Capability {
	if to, ok := w.portals[pos]; ok {
		pos = to
	}
	if wr := w.net.Wire(pos); wr != nil {
		return WireCapability(wr)
	}
	if g, ok := w.gates[pos]; ok {
		return SignalCapability(g, g)
	}
	if s, ok := w.sources[pos]; ok {
		return SignalCapability(s, nil)
	}
	if s, ok := w.sinks[pos]; ok {
		return SignalCapability(nil, s)
	}
	if a, ok := w.axles[pos]; ok {
		return a.Capability(face)
	}
	if f, ok := w.wheels[pos]; ok {
		return MechanicalCapability(f)
	}
	return Capability{}
}

func (w *fakeWorld) Invalidate(Pos) {}

func (w *fakeWorld) NeighborChanged(pos, from Pos) {
	w.notified = append(w.notified, pos)
	if a, ok := w.axles[pos]; ok {
		a.OnNeighborChanged(from)
	}
	if wr := w.net.Wire(pos); wr != nil {
		wr.OnNeighborChanged(from)
	}
	if g, ok := w.gates[pos]; ok {
		g.OnNeighborChanged(from)
	}
}

// changed tells every neighbor of pos (and any portal partner) that pos changed.
func (w *fakeWorld) changed(pos Pos) {
	for _, f := range cube.Faces() {
		w.NeighborChanged(pos.Side(f), pos)
	}
	for at, to := range w.portals {
		if to == pos {
			for _, f := range cube.Faces() {
				w.NeighborChanged(at.Side(f), at)
			}
		}
	}
}

func (w *fakeWorld) placeWire(pos Pos) *Wire {
	wr := w.net.Add(pos)
	w.changed(pos)
	return wr
}

func (w *fakeWorld) breakWire(pos Pos) {
	w.net.Remove(pos)
	w.changed(pos)
}

func (w *fakeWorld) placeSource(pos Pos, strength uint8) *source {
	s := &source{strength: strength}
	w.sources[pos] = s
	w.changed(pos)
	return s
}

func (w *fakeWorld) strength(pos Pos) int {
	wr := w.net.Wire(pos)
	if wr == nil {
		w.t.Fatalf("no wire at %v", pos)
	}
	return int(wr.Strength())
}

type source struct{ strength uint8 }

func (s *source) SignalStrength(Face) uint8 { return s.strength }

type sink struct {
	last  map[Face]uint8
	calls int
}

func (s *sink) OnSignalChanged(f Face, strength uint8) {
	if s.last == nil {
		s.last = map[Face]uint8{}
	}
	s.last[f] = strength
	s.calls++
}

type flywheel struct {
	accepting     bool
	speed, torque float64
	calls         int
}

func (f *flywheel) IsAcceptingPower() bool { return f.accepting }

func (f *flywheel) SetForce(speed, torque float64) {
	f.speed, f.torque = speed, torque
	f.calls++
}

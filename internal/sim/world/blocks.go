package world

import (
	"github.com/df-mc/dragonfly/server/block/cube"

	"circuitcraft.ai/internal/sim/circuit"
)

type (
	Pos  = circuit.Pos
	Face = circuit.Face
)

// block is one occupied cell. Exactly one of the node pointers is set for the
// types that take part in propagation.
type block struct {
	typ    BlockType
	pos    Pos
	facing Face
	axis   cube.Axis

	gate  *circuit.GateNode
	axle  *circuit.Axle
	lever *lever
	power *powerSource
	lamp  *lamp
	motor *motor
	wheel *flywheel
}

// capability is what a neighbor sees when looking at b through face.
func (w *World) capability(b *block, face Face) circuit.Capability {
	switch b.typ {
	case BlockWire:
		return circuit.WireCapability(w.wires.Wire(b.pos))
	case BlockGate:
		return circuit.SignalCapability(b.gate, b.gate)
	case BlockLever:
		return circuit.SignalCapability(b.lever, nil)
	case BlockPower:
		return circuit.SignalCapability(b.power, nil)
	case BlockLamp:
		return circuit.SignalCapability(nil, b.lamp)
	case BlockMotor:
		return circuit.SignalCapability(nil, b.motor)
	case BlockAxle:
		return b.axle.Capability(face)
	case BlockFlywheel:
		return circuit.MechanicalCapability(b.wheel)
	default:
		return circuit.Capability{}
	}
}

// lever emits high on every face while on.
type lever struct {
	on   bool
	high uint8
}

func (l *lever) SignalStrength(Face) uint8 {
	if l.on {
		return l.high
	}
	return 0
}

// powerSource is a constant emitter.
type powerSource struct{ strength uint8 }

func (p *powerSource) SignalStrength(Face) uint8 { return p.strength }

// lamp is lit while any neighbor drives a nonzero signal into it. It only
// records that it needs a recheck; the world rechecks after propagation.
type lamp struct {
	w     *World
	pos   Pos
	cache *circuit.NeighborCache
	lit   bool
}

func (l *lamp) OnSignalChanged(Face, uint8) { l.w.lampsDirty.Set(l.pos, struct{}{}) }

func (l *lamp) onNeighborChanged(from Pos) {
	l.cache.InvalidateFrom(from)
	l.w.lampsDirty.Set(l.pos, struct{}{})
}

// recheck recomputes lit and reports whether it changed.
func (l *lamp) recheck() bool {
	lit := receivesSignal(l.cache, -1)
	if lit == l.lit {
		return false
	}
	l.lit = lit
	return true
}

// motor runs while it receives a signal on any face other than its output and
// drives the mechanical neighbor on its facing.
type motor struct {
	pos     Pos
	facing  Face
	cache   *circuit.NeighborCache
	driving circuit.PowerConsumer
}

func (m *motor) OnSignalChanged(Face, uint8) {}

func (m *motor) onNeighborChanged(from Pos) {
	m.cache.InvalidateFrom(from)
}

func (m *motor) powered() bool { return receivesSignal(m.cache, int(m.facing)) }

// drive applies force to the output while powered and accepted, and releases
// a previously driven output otherwise. It reports whether the motor is driving.
func (m *motor) drive(speed, torque float64) bool {
	out := m.cache.Get(m.facing).Power
	if m.driving != nil && m.driving != out {
		m.driving.SetForce(0, 0)
		m.driving = nil
	}
	if out != nil && m.powered() && out.IsAcceptingPower() {
		out.SetForce(speed, torque)
		m.driving = out
		return true
	}
	if m.driving != nil {
		m.driving.SetForce(0, 0)
		m.driving = nil
	}
	return false
}

func (m *motor) release() {
	if m.driving != nil {
		m.driving.SetForce(0, 0)
		m.driving = nil
	}
}

// flywheel is a mechanical sink that accepts any force and records it.
type flywheel struct {
	speed  float64
	torque float64
}

func (f *flywheel) IsAcceptingPower() bool { return true }

func (f *flywheel) SetForce(speed, torque float64) {
	f.speed, f.torque = speed, torque
}

// receivesSignal reports whether any neighbor drives a nonzero signal into the
// cache's owner. skip is a face index to ignore, or -1.
func receivesSignal(c *circuit.NeighborCache, skip int) bool {
	for _, f := range cube.Faces() {
		if int(f) == skip {
			continue
		}
		if e := c.Get(f).Emitter; e != nil && e.SignalStrength(f.Opposite()) > 0 {
			return true
		}
	}
	return false
}

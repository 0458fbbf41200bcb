package world

import (
	"github.com/elliotchance/orderedmap/v2"

	"circuitcraft.ai/internal/sim/circuit"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

// TickStats summarizes the circuit work of one tick.
type TickStats struct {
	Passes    int
	GateEvals int
	Wires     circuit.PropagationResult

	// GatesPending counts gates still dirty when the pass loop stopped.
	// PassLimitHit is set when that happened because MaxPasses ran out.
	GatesPending int
	PassLimitHit bool
}

// Settled reports whether the tick reached a fixpoint within its limits.
func (st TickStats) Settled() bool {
	return !st.PassLimitHit && !st.Wires.BudgetExceeded
}

// propagate runs gate passes until nothing is dirty or MaxPasses is reached.
// Each pass evaluates every scheduled gate against the outputs committed by
// the previous pass, commits them together, then relaxes the dirty wires.
// The first pass evaluates every gate so that time-based kinds advance once
// per tick. Work left when a limit is hit stays queued for the next tick.
func (w *World) propagate(nowTick uint64) TickStats {
	var st TickStats
	budget := w.cfg.WireBudget
	for pass := 0; pass < w.cfg.MaxPasses; pass++ {
		var batch []*circuit.GateNode
		if pass == 0 {
			batch = orderedValues(w.gates)
		} else {
			batch = orderedValues(w.dirtyGates)
		}
		if len(batch) == 0 && w.wires.Pending() == 0 {
			break
		}
		w.dirtyGates = orderedmap.NewOrderedMap[Pos, *circuit.GateNode]()

		step := logic.Step{Tick: nowTick, Advance: pass == 0}
		for _, g := range batch {
			g.Evaluate(step)
		}
		for _, g := range batch {
			if changed := g.Commit(); len(changed) > 0 {
				w.gatesChanged.Set(g.Pos(), struct{}{})
			}
		}
		st.Passes++
		st.GateEvals += len(batch)

		if w.wires.Pending() == 0 {
			continue
		}
		limit := 0
		if budget > 0 {
			limit = budget - st.Wires.Visited
			if limit <= 0 {
				st.Wires.BudgetExceeded = true
				st.Wires.Pending = w.wires.Pending()
				break
			}
		}
		r := w.wires.Propagate(limit)
		st.Wires.Seeds += r.Seeds
		st.Wires.Visited += r.Visited
		st.Wires.Rounds += r.Rounds
		st.Wires.Updated += r.Updated
		if r.BudgetExceeded {
			st.Wires.BudgetExceeded = true
			break
		}
	}
	st.Wires.Pending = w.wires.Pending()
	st.GatesPending = w.dirtyGates.Len()
	st.PassLimitHit = st.GatesPending > 0 && st.Passes >= w.cfg.MaxPasses
	return st
}

func orderedValues[V any](m *orderedmap.OrderedMap[Pos, V]) []V {
	out := make([]V, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// updateLamps rechecks lamps whose neighborhood changed.
func (w *World) updateLamps() {
	for el := w.lampsDirty.Front(); el != nil; el = el.Next() {
		b, ok := w.blocks.Get(el.Key)
		if !ok || b.typ != BlockLamp {
			continue
		}
		if b.lamp.recheck() {
			w.lampsChanged.Set(el.Key, struct{}{})
		}
	}
	w.lampsDirty = orderedmap.NewOrderedMap[Pos, struct{}]()
}

// runMechanics lets every motor drive or release its output, then advances
// axle rotation. It returns the number of driving motors.
func (w *World) runMechanics() int {
	driving := 0
	for el := w.blocks.Front(); el != nil; el = el.Next() {
		if b := el.Value; b.typ == BlockMotor && b.motor.drive(w.cfg.MotorSpeed, w.cfg.MotorTorque) {
			driving++
		}
	}
	for el := w.blocks.Front(); el != nil; el = el.Next() {
		if b := el.Value; b.typ == BlockAxle {
			b.axle.Tick()
		}
	}
	return driving
}

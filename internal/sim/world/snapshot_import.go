package world

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/circuit"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

// ImportSnapshot replaces the world state with snap. The world resumes at the
// tick after the snapshot. Wire strengths are recomputed from the restored
// gate outputs and emitters. Must not be called while Run is active.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	cfg := w.cfg
	cfg.ID = snap.Header.WorldID
	cfg.Seed = snap.Seed
	cfg.TickRateHz = snap.TickRate
	cfg.MaxStrength = snap.MaxStrength
	cfg.WireBudget = snap.WireBudget
	cfg.MaxPasses = snap.MaxPasses
	cfg.PulseTicks = snap.PulseTicks
	cfg.SynchronizerPhaseTicks = snap.PhaseTicks
	cfg.ToggleCooldownTicks = snap.ToggleCooldownTicks
	cfg.OnlyBottomFace = snap.OnlyBottomFace
	cfg.DisabledLogic = append([]string(nil), snap.DisabledLogic...)
	cfg.SnapshotEveryTicks = snap.SnapshotEveryTicks
	cfg.MotorSpeed = snap.MotorSpeed
	cfg.MotorTorque = snap.MotorTorque
	cfg.applyDefaults()

	disabled := map[logic.Kind]bool{}
	for _, name := range cfg.DisabledLogic {
		k, err := logic.ParseKind(name)
		if err != nil {
			return fmt.Errorf("disabled logic %q: %w", name, err)
		}
		disabled[k] = true
	}
	wires, err := circuit.NewWireNetwork(w, uint8(cfg.MaxStrength))
	if err != nil {
		return err
	}

	w.cfg = cfg
	w.log = w.log.WithField("world", cfg.ID)
	w.disabled = disabled
	w.wires = wires
	w.blocks = orderedmap.NewOrderedMap[Pos, *block]()
	w.gates = orderedmap.NewOrderedMap[Pos, *circuit.GateNode]()
	w.dirtyGates = orderedmap.NewOrderedMap[Pos, *circuit.GateNode]()
	w.lampsDirty = orderedmap.NewOrderedMap[Pos, struct{}]()
	w.gatesChanged = orderedmap.NewOrderedMap[Pos, struct{}]()
	w.lampsChanged = orderedmap.NewOrderedMap[Pos, struct{}]()

	// Support is checked when the block is first placed, not on resume.
	onlyBottom := w.cfg.OnlyBottomFace
	w.cfg.OnlyBottomFace = false
	defer func() { w.cfg.OnlyBottomFace = onlyBottom }()

	for i, bv := range snap.Blocks {
		if err := w.place(importEdit(bv)); err != nil {
			return fmt.Errorf("blocks[%d]: %w", i, err)
		}
	}
	for _, bv := range snap.Blocks {
		b, _ := w.blocks.Get(posOf(bv.Pos))
		switch b.typ {
		case BlockGate:
			if bv.Gate != nil {
				g := bv.Gate
				b.gate.Restore(logic.State{
					Latch:     g.Latch,
					PrevInput: g.PrevInput,
					Remaining: g.Remaining,
					Phase:     g.Phase,
					Held:      g.Held,
					Pending:   g.Pending,
					Counter:   g.Counter,
				}, g.Outputs)
			}
		case BlockLever:
			b.lever.on = bv.On
		case BlockAxle:
			b.axle.Restore(bv.Angle)
		}
	}

	w.wires.MarkAllDirty()
	w.wires.Propagate(0)
	w.wires.TakeChanges()
	for el := w.blocks.Front(); el != nil; el = el.Next() {
		if el.Value.typ == BlockLamp {
			w.lampsDirty.Set(el.Key, struct{}{})
		}
	}
	w.updateLamps()
	w.lampsChanged = orderedmap.NewOrderedMap[Pos, struct{}]()

	w.cooldowns = map[string]uint64{}
	for _, c := range snap.Cooldowns {
		w.cooldowns[c.ActorID] = c.Until
	}
	w.nextActor.Store(snap.Counters.NextActor)
	w.tick.Store(snap.Header.Tick + 1)
	w.lastDigest = snap.Header.Digest
	for _, c := range w.observers {
		c.needsFull = true
	}
	w.log.WithFields(logrus.Fields{"tick": snap.Header.Tick, "blocks": len(snap.Blocks)}).Info("snapshot imported")
	return nil
}

func importEdit(b snapshot.BlockV1) protocol.Edit {
	return protocol.Edit{
		Op:       protocol.OpPlace,
		Pos:      b.Pos,
		Block:    b.Block,
		Facing:   b.Facing,
		Axis:     b.Axis,
		Logic:    b.Logic,
		Inverted: sideNames(logic.SideMask(b.Inverted)),
		Strength: b.Strength,
	}
}

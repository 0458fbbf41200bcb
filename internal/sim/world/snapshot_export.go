package world

import (
	"slices"

	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/sim/circuit"
)

// ExportSnapshot captures the world after tick nowTick completed.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			Digest:  w.lastDigest,
		},
		Seed:                w.cfg.Seed,
		TickRate:            w.cfg.TickRateHz,
		MaxStrength:         w.cfg.MaxStrength,
		WireBudget:          w.cfg.WireBudget,
		MaxPasses:           w.cfg.MaxPasses,
		PulseTicks:          w.cfg.PulseTicks,
		PhaseTicks:          w.cfg.SynchronizerPhaseTicks,
		ToggleCooldownTicks: w.cfg.ToggleCooldownTicks,
		OnlyBottomFace:      w.cfg.OnlyBottomFace,
		DisabledLogic:       append([]string(nil), w.cfg.DisabledLogic...),
		SnapshotEveryTicks:  w.cfg.SnapshotEveryTicks,
		MotorSpeed:          w.cfg.MotorSpeed,
		MotorTorque:         w.cfg.MotorTorque,
		Counters:            snapshot.CountersV1{NextActor: w.nextActor.Load()},
	}

	for _, pos := range w.sortedPositions() {
		b, _ := w.blocks.Get(pos)
		snap.Blocks = append(snap.Blocks, exportBlock(b))
	}

	ids := make([]string, 0, len(w.cooldowns))
	for id := range w.cooldowns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		snap.Cooldowns = append(snap.Cooldowns, snapshot.CooldownV1{ActorID: id, Until: w.cooldowns[id]})
	}
	return snap
}

func exportBlock(b *block) snapshot.BlockV1 {
	out := snapshot.BlockV1{Pos: arr(b.pos), Block: b.typ.String()}
	switch b.typ {
	case BlockGate:
		cfg := b.gate.Config()
		st := b.gate.State()
		out.Facing = circuit.FaceName(b.facing)
		out.Logic = cfg.Kind.ID()
		out.Inverted = uint8(cfg.Inverted)
		out.Gate = &snapshot.GateStateV1{
			Outputs:   b.gate.Outputs(),
			Latch:     st.Latch,
			PrevInput: st.PrevInput,
			Remaining: st.Remaining,
			Phase:     st.Phase,
			Held:      st.Held,
			Pending:   st.Pending,
			Counter:   st.Counter,
		}
	case BlockMotor:
		out.Facing = circuit.FaceName(b.facing)
	case BlockAxle:
		out.Axis = axisName(b.axis)
		out.Angle = b.axle.Angle()
	case BlockLever:
		out.On = b.lever.on
	case BlockPower:
		out.Strength = int(b.power.strength)
	}
	return out
}

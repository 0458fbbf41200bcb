package world

import (
	"fmt"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/protocol"
)

func (w *World) step(joins []JoinRequest, leaves []string, edits []EditEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.gatesChanged = orderedmap.NewOrderedMap[Pos, struct{}]()
	w.lampsChanged = orderedmap.NewOrderedMap[Pos, struct{}]()
	ch := &tickChanges{}

	// Leaves and joins apply at the tick boundary, before any edits.
	for _, id := range leaves {
		if _, ok := w.actors[id]; ok {
			delete(w.actors, id)
			ch.leaves = append(ch.leaves, id)
		}
	}
	for _, req := range joins {
		id := fmt.Sprintf("A%d", w.nextActor.Add(1))
		w.actors[id] = req.Name
		if req.Resp != nil {
			req.Resp <- JoinResponse{Welcome: w.welcome(id, nowTick)}
		}
		ch.joins = append(ch.joins, RecordedJoin{ActorID: id, Name: req.Name})
	}

	// Edits apply in receive order.
	w.pruneCooldowns(nowTick)
	for _, env := range edits {
		ack, rec := w.applyEnvelope(env, nowTick)
		ch.edits = append(ch.edits, rec...)
		if env.Resp != nil {
			select {
			case env.Resp <- ack:
			default:
			}
		}
	}

	// Systems: gates and wires -> lamps -> mechanics.
	st := w.propagate(nowTick)
	w.updateLamps()
	driving := w.runMechanics()

	ch.wires = w.wires.TakeChanges()
	ch.gates = orderedKeys(w.gatesChanged)
	ch.lamps = orderedKeys(w.lampsChanged)
	for el := w.blocks.Front(); el != nil; el = el.Next() {
		if b := el.Value; b.typ == BlockAxle && b.axle.TakeBroadcast() {
			ch.axles = append(ch.axles, b.pos)
		}
	}

	if st.Wires.BudgetExceeded {
		w.log.WithFields(logrus.Fields{
			"tick":    nowTick,
			"visited": st.Wires.Visited,
			"pending": st.Wires.Pending,
		}).Debug("wire budget exceeded; resuming next tick")
	}
	if st.PassLimitHit {
		w.log.WithFields(logrus.Fields{
			"tick":          nowTick,
			"passes":        st.Passes,
			"gates_pending": st.GatesPending,
		}).Debug("pass limit reached; resuming next tick")
	}

	digest := w.stateDigest(nowTick)
	w.lastDigest = digest
	w.stepObservers(nowTick, digest, st, ch)

	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:           nowTick,
			Joins:          ch.joins,
			Leaves:         ch.leaves,
			Edits:          ch.edits,
			Digest:         digest,
			Passes:         st.Passes,
			GateEvals:      st.GateEvals,
			WireVisited:    st.Wires.Visited,
			WireUpdates:    st.Wires.Updated,
			WirePending:    st.Wires.Pending,
			BudgetExceeded: st.Wires.BudgetExceeded,
			GatesPending:   st.GatesPending,
			PassLimitHit:   st.PassLimitHit,
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.WithError(err).WithField("tick", nowTick).Warn("tick log write failed")
		}
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				w.log.WithField("tick", nowTick).Warn("snapshot sink full; dropping snapshot")
			}
		}
	}

	w.totals.Ticks++
	w.totals.Passes += uint64(st.Passes)
	w.totals.GateEvals += uint64(st.GateEvals)
	w.totals.WireUpdates += uint64(st.Wires.Updated)
	if st.Wires.BudgetExceeded {
		w.totals.BudgetExceeded++
	}
	if st.PassLimitHit {
		w.totals.PassLimitHits++
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.metrics.Store(WorldMetrics{
		Tick:      nextTick,
		Digest:    digest,
		Blocks:    w.blocks.Len(),
		Wires:     w.wires.Len(),
		Gates:     w.gates.Len(),
		Actors:    len(w.actors),
		Observers: len(w.observers),
		QueueDepths: QueueDepths{
			Edits: len(w.edits),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:         stepMS,
		Passes:         st.Passes,
		GateEvals:      st.GateEvals,
		WireVisited:    st.Wires.Visited,
		WireUpdates:    st.Wires.Updated,
		WirePending:    st.Wires.Pending,
		BudgetExceeded: st.Wires.BudgetExceeded,
		GatesPending:   st.GatesPending,
		PassLimitHit:   st.PassLimitHit,
		DrivingMotors:  driving,
		Totals:         w.totals,
	})
}

func (w *World) welcome(actorID string, nowTick uint64) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         actorID,
		Tick:            nowTick,
		WorldParams:     w.WorldParams(),
		Logic:           w.LogicRefs(),
		Presets:         w.PresetRefs(),
	}
}

func orderedKeys(m *orderedmap.OrderedMap[Pos, struct{}]) []Pos {
	if m.Len() == 0 {
		return nil
	}
	out := make([]Pos, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key)
	}
	return out
}

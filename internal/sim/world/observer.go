package world

import (
	"context"
	"encoding/json"

	"circuitcraft.ai/internal/observerproto"
	"circuitcraft.ai/internal/sim/circuit"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

type observerClient struct {
	id          string
	tickOut     chan []byte
	region      *observerproto.Region
	changesOnly bool

	// needsFull forces the next TICK to carry every node (new session,
	// changed subscription).
	needsFull bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if w == nil || req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:          req.SessionID,
		tickOut:     req.TickOut,
		region:      req.Region,
		changesOnly: req.ChangesOnly,
		needsFull:   true,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.region = req.Region
	c.changesOnly = req.ChangesOnly
	c.needsFull = true
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

// tickChanges is what changed during one tick, collected for observers.
type tickChanges struct {
	wires  []circuit.WireChange
	gates  []Pos
	axles  []Pos
	lamps  []Pos
	edits  []RecordedEdit
	joins  []RecordedJoin
	leaves []string
}

func (c *tickChanges) empty() bool {
	return len(c.wires) == 0 && len(c.gates) == 0 && len(c.axles) == 0 && len(c.lamps) == 0 &&
		len(c.edits) == 0 && len(c.joins) == 0 && len(c.leaves) == 0
}

func (w *World) stepObservers(nowTick uint64, digest string, st TickStats, ch *tickChanges) {
	for _, c := range w.observers {
		if c.changesOnly && !c.needsFull && ch.empty() {
			continue
		}
		msg := observerproto.TickMsg{
			Type:            observerproto.TypeTick,
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Digest:          digest,
			Full:            c.needsFull,
			Passes:          st.Passes,
			BudgetExceeded:  st.Wires.BudgetExceeded,
			PassLimitHit:    st.PassLimitHit,
		}
		if c.needsFull {
			w.fillFull(&msg, c.region)
		} else {
			w.fillDelta(&msg, c.region, ch)
		}
		for _, e := range ch.edits {
			if c.region.Contains(e.Edit.Pos) {
				msg.Edits = append(msg.Edits, observerproto.RecordedEdit{ActorID: e.ActorID, Edit: e.Edit, Code: e.Code})
			}
		}
		for _, j := range ch.joins {
			msg.Joins = append(msg.Joins, observerproto.JoinInfo{ActorID: j.ActorID, Name: j.Name})
		}
		msg.Leaves = ch.leaves

		b, err := json.Marshal(msg)
		if err != nil {
			w.log.WithError(err).Warn("observer tick marshal")
			continue
		}
		sendLatest(c.tickOut, b)
		c.needsFull = false
	}
}

func (w *World) fillFull(msg *observerproto.TickMsg, region *observerproto.Region) {
	for _, pos := range w.sortedPositions() {
		if !region.Contains(arr(pos)) {
			continue
		}
		b, _ := w.blocks.Get(pos)
		w.appendNode(msg, b)
	}
}

func (w *World) fillDelta(msg *observerproto.TickMsg, region *observerproto.Region, ch *tickChanges) {
	for _, wc := range ch.wires {
		if region.Contains(arr(wc.Pos)) {
			msg.Wires = append(msg.Wires, observerproto.WireState{Pos: arr(wc.Pos), Strength: int(wc.Strength)})
		}
	}
	for _, list := range [][]Pos{ch.gates, ch.axles, ch.lamps} {
		for _, pos := range list {
			if !region.Contains(arr(pos)) {
				continue
			}
			if b, ok := w.blocks.Get(pos); ok {
				w.appendNode(msg, b)
			}
		}
	}
}

func (w *World) appendNode(msg *observerproto.TickMsg, b *block) {
	p := arr(b.pos)
	switch b.typ {
	case BlockWire:
		msg.Wires = append(msg.Wires, observerproto.WireState{Pos: p, Strength: int(w.WireStrength(b.pos))})
	case BlockGate:
		out := b.gate.Outputs()
		gs := observerproto.GateState{Pos: p, Logic: b.gate.Config().Kind.ID()}
		for s := logic.Side(0); s < logic.SideCount; s++ {
			gs.Outputs[s] = int(out[s])
		}
		msg.Gates = append(msg.Gates, gs)
	case BlockAxle:
		a := b.axle
		msg.Axles = append(msg.Axles, observerproto.AxleState{
			Pos:    p,
			State:  a.State().String(),
			Speed:  a.RotationSpeed(),
			Torque: a.Torque(),
			Angle:  a.Angle(),
		})
	case BlockLamp:
		msg.Lamps = append(msg.Lamps, observerproto.LampState{Pos: p, Lit: b.lamp.lit})
	}
}

// Bootstrap describes the static layout of the world for a new observer.
func (w *World) Bootstrap() observerproto.BootstrapResponse {
	resp := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		Tick:            w.tick.Load(),
		Digest:          w.lastDigest,
		WorldParams:     w.WorldParams(),
		Logic:           w.LogicRefs(),
	}
	for _, pos := range w.sortedPositions() {
		b, _ := w.blocks.Get(pos)
		bs := observerproto.BlockState{Pos: arr(pos), Block: b.typ.String()}
		switch b.typ {
		case BlockGate, BlockMotor:
			bs.Facing = circuit.FaceName(b.facing)
			if b.gate != nil {
				bs.Logic = b.gate.Config().Kind.ID()
			}
		case BlockAxle:
			bs.Axis = axisName(b.axis)
		}
		resp.Blocks = append(resp.Blocks, bs)
	}
	return resp
}

type bootstrapReq struct {
	resp chan observerproto.BootstrapResponse
}

// RequestBootstrap asks the running world loop for a bootstrap view.
func (w *World) RequestBootstrap(ctx context.Context) (observerproto.BootstrapResponse, error) {
	req := bootstrapReq{resp: make(chan observerproto.BootstrapResponse, 1)}
	select {
	case w.bootstrap <- req:
	case <-ctx.Done():
		return observerproto.BootstrapResponse{}, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return observerproto.BootstrapResponse{}, ctx.Err()
	}
}

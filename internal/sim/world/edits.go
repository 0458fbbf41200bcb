package world

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/circuit"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

// EditError is a rejected edit with a protocol error code.
type EditError struct {
	Code    string
	Message string
}

func (e *EditError) Error() string { return e.Code + ": " + e.Message }

func editErr(code, format string, args ...any) *EditError {
	return &EditError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// editCode maps an edit error onto the code and message reported in ACKs.
func editCode(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var ee *EditError
	if errors.As(err, &ee) {
		return ee.Code, ee.Message
	}
	var ce *circuit.ConfigError
	if errors.As(err, &ce) {
		return ce.Code, ce.Error()
	}
	return protocol.ErrInternal, err.Error()
}

func (w *World) applyEdit(actorID string, e protocol.Edit, nowTick uint64) error {
	switch strings.ToUpper(strings.TrimSpace(e.Op)) {
	case protocol.OpPlace:
		return w.place(e)
	case protocol.OpBreak:
		return w.breakAt(posOf(e.Pos))
	case protocol.OpToggle:
		return w.toggle(actorID, posOf(e.Pos), nowTick)
	default:
		return editErr(protocol.ErrBadRequest, "unknown op %q", e.Op)
	}
}

// applyEnvelope applies one EDIT message in order and builds its ACK.
func (w *World) applyEnvelope(env EditEnvelope, nowTick uint64) (protocol.AckMsg, []RecordedEdit) {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          env.ReqID,
		Tick:            nowTick,
	}
	if len(env.Edits) == 0 || len(env.Edits) > w.cfg.MaxEditsPerMessage {
		ack.Code = protocol.ErrBadRequest
		ack.Message = fmt.Sprintf("edits must contain 1..%d entries", w.cfg.MaxEditsPerMessage)
		return ack, nil
	}
	ack.Accepted = true
	recorded := make([]RecordedEdit, 0, len(env.Edits))
	for _, e := range env.Edits {
		code, msg := editCode(w.applyEdit(env.ActorID, e, nowTick))
		ack.Results = append(ack.Results, protocol.EditResult{Code: code, Message: msg})
		recorded = append(recorded, RecordedEdit{ActorID: env.ActorID, Edit: e, Code: code})
		w.totals.Edits++
		if code != "" {
			w.totals.EditsRejected++
			w.log.WithFields(logrus.Fields{"actor": env.ActorID, "op": e.Op, "pos": e.Pos, "code": code}).Debug("edit rejected")
		}
	}
	return ack, recorded
}

func (w *World) place(e protocol.Edit) error {
	pos := posOf(e.Pos)
	bt, ok := ParseBlockType(e.Block)
	if !ok || bt == BlockAir {
		return editErr(protocol.ErrBadRequest, "unknown block %q", e.Block)
	}
	if _, taken := w.blocks.Get(pos); taken {
		return editErr(protocol.ErrOccupied, "%v is occupied", pos)
	}

	b := &block{typ: bt, pos: pos}
	switch bt {
	case BlockStone:
	case BlockFlywheel:
		b.wheel = &flywheel{}
	case BlockWire:
		w.wires.Add(pos)
	case BlockGate:
		g, facing, err := w.newGate(pos, e)
		if err != nil {
			return err
		}
		b.gate, b.facing = g, facing
	case BlockAxle:
		axis, err := axisOf(e)
		if err != nil {
			return err
		}
		b.axis = axis
		b.axle = circuit.NewAxle(w, w, pos, axis)
	case BlockLever:
		b.lever = &lever{high: uint8(w.cfg.MaxStrength)}
	case BlockPower:
		s := e.Strength
		if s <= 0 || s > w.cfg.MaxStrength {
			s = w.cfg.MaxStrength
		}
		b.power = &powerSource{strength: uint8(s)}
	case BlockLamp:
		b.lamp = &lamp{w: w, pos: pos, cache: circuit.NewNeighborCache(w, pos)}
		w.lampsDirty.Set(pos, struct{}{})
	case BlockMotor:
		f, ok := circuit.ParseFace(strings.ToLower(e.Facing))
		if !ok {
			return editErr(protocol.ErrBadRequest, "motor needs a facing")
		}
		b.facing = f
		b.motor = &motor{pos: pos, facing: f, cache: circuit.NewNeighborCache(w, pos)}
	}

	w.blocks.Set(pos, b)
	if b.gate != nil {
		w.gates.Set(pos, b.gate)
		b.gate.MarkDirty()
	}
	w.changed(pos)
	return nil
}

func (w *World) newGate(pos Pos, e protocol.Edit) (*circuit.GateNode, Face, error) {
	facing, ok := circuit.ParseFace(strings.ToLower(e.Facing))
	if !ok {
		return nil, 0, &circuit.ConfigError{Code: protocol.ErrConfigBadFacing, Field: "facing", Err: circuit.ErrBadFacing}
	}
	if w.cfg.OnlyBottomFace {
		if _, ok := w.blocks.Get(pos.Side(cube.FaceDown)); !ok {
			return nil, 0, editErr(protocol.ErrNoSupport, "gate at %v needs a block below", pos)
		}
	}
	cfg, err := gateConfig(e)
	if err != nil {
		return nil, 0, err
	}
	cfg.Options = logic.Options{
		PulseTicks: w.cfg.PulseTicks,
		PhaseTicks: w.cfg.SynchronizerPhaseTicks,
		Seed:       uint64(w.cfg.Seed) ^ posSeed(pos),
	}
	g, err := circuit.NewGateNode(circuit.GateEnv{
		Lookup:  w,
		High:    uint8(w.cfg.MaxStrength),
		Enabled: w.enabled,
		OnDirty: func(g *circuit.GateNode) { w.dirtyGates.Set(g.Pos(), g) },
	}, pos, facing, cfg)
	if err != nil {
		return nil, 0, err
	}
	return g, facing, nil
}

// gateConfig resolves the logic of a gate edit. A preset supplies kind and
// inversion; extra inverted sides from the edit are added to the preset's.
func gateConfig(e protocol.Edit) (circuit.GateConfig, error) {
	inv, err := parseSides(e.Inverted)
	if err != nil {
		return circuit.GateConfig{}, &circuit.ConfigError{Code: protocol.ErrConfigBadMask, Field: "inverted", Err: err}
	}
	if e.Preset != "" {
		p, ok := logic.LookupPreset(e.Preset)
		if !ok {
			return circuit.GateConfig{}, &circuit.ConfigError{
				Code: protocol.ErrConfigUnknownLogic, Field: "preset", Err: fmt.Errorf("%w: preset %q", logic.ErrUnknownKind, e.Preset),
			}
		}
		return circuit.GateConfig{Kind: p.Kind, Inverted: p.Inverted | inv}, nil
	}
	k, err := logic.ParseKind(e.Logic)
	if err != nil {
		return circuit.GateConfig{}, &circuit.ConfigError{Code: protocol.ErrConfigUnknownLogic, Field: "logic", Err: fmt.Errorf("%w: %q", err, e.Logic)}
	}
	return circuit.GateConfig{Kind: k, Inverted: inv}, nil
}

func axisOf(e protocol.Edit) (cube.Axis, error) {
	if e.Axis != "" {
		if a, ok := parseAxis(e.Axis); ok {
			return a, nil
		}
		return 0, editErr(protocol.ErrBadRequest, "bad axis %q", e.Axis)
	}
	if f, ok := circuit.ParseFace(strings.ToLower(e.Facing)); ok {
		return f.Axis(), nil
	}
	return 0, editErr(protocol.ErrBadRequest, "axle needs an axis")
}

func posSeed(pos Pos) uint64 {
	var b [24]byte
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint64(b[i*8:], uint64(int64(pos[i])))
	}
	return xxh3.Hash(b[:])
}

func (w *World) breakAt(pos Pos) error {
	b, ok := w.blocks.Get(pos)
	if !ok {
		return editErr(protocol.ErrInvalidTarget, "nothing at %v", pos)
	}
	switch b.typ {
	case BlockAxle:
		neg, posFace := circuit.AxisFaces(b.axis)
		b.axle.Side(neg).SetForce(0, 0)
		b.axle.Side(posFace).SetForce(0, 0)
	case BlockMotor:
		b.motor.release()
	}

	w.blocks.Delete(pos)
	switch b.typ {
	case BlockWire:
		w.wires.Remove(pos)
	case BlockGate:
		w.gates.Delete(pos)
		w.dirtyGates.Delete(pos)
		w.gatesChanged.Delete(pos)
	case BlockLamp:
		w.lampsDirty.Delete(pos)
		w.lampsChanged.Delete(pos)
	}
	w.changed(pos)
	return nil
}

// toggle flips a lever. Each actor may toggle at most once per cooldown window.
func (w *World) toggle(actorID string, pos Pos, nowTick uint64) error {
	if until, ok := w.cooldowns[actorID]; ok && nowTick < until {
		return editErr(protocol.ErrCooldown, "toggle available at tick %d", until)
	}
	b, ok := w.blocks.Get(pos)
	if !ok || b.typ != BlockLever {
		return editErr(protocol.ErrInvalidTarget, "no lever at %v", pos)
	}
	b.lever.on = !b.lever.on
	if w.cfg.ToggleCooldownTicks > 0 {
		w.cooldowns[actorID] = nowTick + uint64(w.cfg.ToggleCooldownTicks)
	}
	w.signalChanged(pos, b.lever)
	return nil
}

// signalChanged tells the consumers around an emitter at pos that its output
// changed.
func (w *World) signalChanged(pos Pos, e circuit.SignalEmitter) {
	for _, f := range cube.Faces() {
		np, nf := circuit.Across(pos, f)
		if c := w.Resolve(np, nf); c.Consumer != nil {
			c.Consumer.OnSignalChanged(nf, e.SignalStrength(f))
		}
	}
}

// pruneCooldowns drops expired toggle cooldowns.
func (w *World) pruneCooldowns(nowTick uint64) {
	for id, until := range w.cooldowns {
		if until <= nowTick {
			delete(w.cooldowns, id)
		}
	}
}

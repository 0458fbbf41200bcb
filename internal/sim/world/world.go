package world

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/circuit"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

// World is a single-threaded authoritative circuit simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log logrus.FieldLogger

	tick atomic.Uint64

	blocks     *orderedmap.OrderedMap[Pos, *block]
	wires      *circuit.WireNetwork
	gates      *orderedmap.OrderedMap[Pos, *circuit.GateNode]
	dirtyGates *orderedmap.OrderedMap[Pos, *circuit.GateNode]
	lampsDirty *orderedmap.OrderedMap[Pos, struct{}]
	disabled   map[logic.Kind]bool

	// Per-tick change sets for observers, reset at the start of each step.
	gatesChanged *orderedmap.OrderedMap[Pos, struct{}]
	lampsChanged *orderedmap.OrderedMap[Pos, struct{}]

	actors    map[string]string
	cooldowns map[string]uint64
	nextActor atomic.Uint64

	observers map[string]*observerClient

	edits         chan EditEnvelope
	join          chan JoinRequest
	leave         chan string
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	bootstrap     chan bootstrapReq
	stop          chan struct{}

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1

	lastDigest string
	totals     Totals
	metrics    atomic.Value // WorldMetrics
}

func New(cfg WorldConfig, log logrus.FieldLogger) (*World, error) {
	cfg.applyDefaults()
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	w := &World{
		cfg:           cfg,
		log:           log.WithField("world", cfg.ID),
		blocks:        orderedmap.NewOrderedMap[Pos, *block](),
		gates:         orderedmap.NewOrderedMap[Pos, *circuit.GateNode](),
		dirtyGates:    orderedmap.NewOrderedMap[Pos, *circuit.GateNode](),
		lampsDirty:    orderedmap.NewOrderedMap[Pos, struct{}](),
		gatesChanged:  orderedmap.NewOrderedMap[Pos, struct{}](),
		lampsChanged:  orderedmap.NewOrderedMap[Pos, struct{}](),
		disabled:      map[logic.Kind]bool{},
		actors:        map[string]string{},
		cooldowns:     map[string]uint64{},
		observers:     map[string]*observerClient{},
		edits:         make(chan EditEnvelope, 1024),
		join:          make(chan JoinRequest, 64),
		leave:         make(chan string, 64),
		observerJoin:  make(chan ObserverJoinRequest, 32),
		observerSub:   make(chan ObserverSubscribeRequest, 32),
		observerLeave: make(chan string, 32),
		bootstrap:     make(chan bootstrapReq, 8),
		stop:          make(chan struct{}),
	}
	for _, name := range cfg.DisabledLogic {
		k, err := logic.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("disabled logic %q: %w", name, err)
		}
		w.disabled[k] = true
	}
	wires, err := circuit.NewWireNetwork(w, uint8(cfg.MaxStrength))
	if err != nil {
		return nil, err
	}
	w.wires = wires
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig {
	cfg := w.cfg
	cfg.DisabledLogic = append([]string(nil), cfg.DisabledLogic...)
	return cfg
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// LastDigest is the digest computed at the end of the last completed tick.
// Only safe from the world loop goroutine or while the loop is stopped.
func (w *World) LastDigest() string { return w.lastDigest }

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) EditChan() chan<- EditEnvelope                          { return w.edits }
func (w *World) JoinChan() chan<- JoinRequest                           { return w.join }
func (w *World) LeaveChan() chan<- string                               { return w.leave }
func (w *World) ObserverJoinChan() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribeChan() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeaveChan() chan<- string                       { return w.observerLeave }

// Resolve implements circuit.NeighborLookup.
func (w *World) Resolve(pos Pos, face Face) circuit.Capability {
	b, ok := w.blocks.Get(pos)
	if !ok {
		return circuit.Capability{}
	}
	return w.capability(b, face)
}

// Invalidate implements circuit.NeighborLookup: every neighbor of pos drops its
// cached view of pos without being scheduled.
func (w *World) Invalidate(pos Pos) {
	for _, f := range cube.Faces() {
		b, ok := w.blocks.Get(pos.Side(f))
		if !ok {
			continue
		}
		if c := w.cacheOf(b); c != nil {
			c.InvalidateFrom(pos)
		}
	}
}

func (w *World) cacheOf(b *block) *circuit.NeighborCache {
	switch b.typ {
	case BlockLamp:
		return b.lamp.cache
	case BlockMotor:
		return b.motor.cache
	default:
		return nil
	}
}

// NeighborChanged implements circuit.Notifier.
func (w *World) NeighborChanged(pos, from Pos) {
	b, ok := w.blocks.Get(pos)
	if !ok {
		return
	}
	switch b.typ {
	case BlockWire:
		if wr := w.wires.Wire(pos); wr != nil {
			wr.OnNeighborChanged(from)
		}
	case BlockGate:
		b.gate.OnNeighborChanged(from)
	case BlockAxle:
		b.axle.OnNeighborChanged(from)
	case BlockLamp:
		b.lamp.onNeighborChanged(from)
	case BlockMotor:
		b.motor.onNeighborChanged(from)
	}
}

// changed notifies the six neighbors of pos.
func (w *World) changed(pos Pos) {
	for _, f := range cube.Faces() {
		w.NeighborChanged(pos.Side(f), pos)
	}
}

// BlockAt reports the block type at pos.
func (w *World) BlockAt(pos Pos) BlockType {
	if b, ok := w.blocks.Get(pos); ok {
		return b.typ
	}
	return BlockAir
}

// WireStrength returns the strength of the wire at pos, or 0.
func (w *World) WireStrength(pos Pos) uint8 {
	if wr := w.wires.Wire(pos); wr != nil {
		return wr.Strength()
	}
	return 0
}

// Gate returns the gate at pos, or nil.
func (w *World) Gate(pos Pos) *circuit.GateNode {
	g, _ := w.gates.Get(pos)
	return g
}

// Axle returns the axle at pos, or nil.
func (w *World) Axle(pos Pos) *circuit.Axle {
	if b, ok := w.blocks.Get(pos); ok && b.typ == BlockAxle {
		return b.axle
	}
	return nil
}

// LampLit reports whether the lamp at pos is lit.
func (w *World) LampLit(pos Pos) bool {
	if b, ok := w.blocks.Get(pos); ok && b.typ == BlockLamp {
		return b.lamp.lit
	}
	return false
}

// Flywheel returns the force last received by the flywheel at pos.
func (w *World) Flywheel(pos Pos) (speed, torque float64, ok bool) {
	if b, found := w.blocks.Get(pos); found && b.typ == BlockFlywheel {
		return b.wheel.speed, b.wheel.torque, true
	}
	return 0, 0, false
}

func (w *World) BlockCount() int { return w.blocks.Len() }

func (w *World) enabled(k logic.Kind) bool { return !w.disabled[k] }

func (w *World) WorldParams() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:     w.cfg.TickRateHz,
		MaxStrength:    w.cfg.MaxStrength,
		WireBudget:     w.cfg.WireBudget,
		MaxPasses:      w.cfg.MaxPasses,
		ToggleCooldown: w.cfg.ToggleCooldownTicks,
		OnlyBottomFace: w.cfg.OnlyBottomFace,
	}
}

// LogicRefs lists the enabled gate kinds with their side layouts.
func (w *World) LogicRefs() []protocol.LogicRef {
	var out []protocol.LogicRef
	for _, k := range logic.Kinds() {
		if !w.enabled(k) {
			continue
		}
		l := logic.LayoutOf(k)
		out = append(out, protocol.LogicRef{
			ID:      k.ID(),
			Name:    k.String(),
			Inputs:  sideNames(l.Inputs),
			Outputs: sideNames(l.Outputs),
		})
	}
	return out
}

// PresetRefs lists presets whose kind is enabled.
func (w *World) PresetRefs() []protocol.PresetRef {
	var out []protocol.PresetRef
	for _, p := range logic.Presets() {
		if !w.enabled(p.Kind) {
			continue
		}
		out = append(out, protocol.PresetRef{Name: p.Name, Logic: p.Kind.ID(), Inverted: sideNames(p.Inverted)})
	}
	return out
}

func sideNames(m logic.SideMask) []string {
	var out []string
	for s := logic.Side(0); s < logic.SideCount; s++ {
		if m.Has(s) {
			out = append(out, strings.ToLower(s.String()))
		}
	}
	return out
}

func parseSides(names []string) (logic.SideMask, error) {
	var m logic.SideMask
	for _, n := range names {
		found := false
		for s := logic.Side(0); s < logic.SideCount; s++ {
			if strings.EqualFold(n, s.String()) {
				m |= logic.MaskOf(s)
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown side %q", n)
		}
	}
	return m, nil
}

func posOf(p [3]int) Pos { return Pos{p[0], p[1], p[2]} }
func arr(p Pos) [3]int   { return [3]int{p[0], p[1], p[2]} }

func axisName(a cube.Axis) string {
	switch a {
	case cube.X:
		return "x"
	case cube.Z:
		return "z"
	default:
		return "y"
	}
}

func parseAxis(s string) (cube.Axis, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return cube.X, true
	case "y":
		return cube.Y, true
	case "z":
		return cube.Z, true
	default:
		return 0, false
	}
}

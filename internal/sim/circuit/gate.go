package circuit

import (
	"fmt"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

// GateConfig is the immutable definition of one gate.
type GateConfig struct {
	Kind     logic.Kind
	Inverted logic.SideMask
	Options  logic.Options
}

// GateEnv is what a gate needs from the simulation that owns it.
type GateEnv struct {
	Lookup NeighborLookup
	// High is the maximum signal strength; true outputs are emitted at High.
	High uint8
	// Enabled filters kinds switched off by configuration. Nil allows all.
	Enabled func(logic.Kind) bool
	// OnDirty is called when the gate transitions to dirty and must be
	// evaluated on the next pass.
	OnDirty func(*GateNode)
}

// GateNode runs one logic function against its neighbors. Evaluation and
// publication are split so that an owner can evaluate every dirty gate against
// the same snapshot before any of them publishes.
type GateNode struct {
	pos    Pos
	facing Face
	cfg    GateConfig
	layout logic.Layout
	fn     logic.Logic
	cache  *NeighborCache
	high   uint8

	inputs  logic.Signals
	staged  logic.Signals
	outputs logic.Signals
	dirty   bool
	onDirty func(*GateNode)
}

// NewGateNode validates cfg and builds the node. All failures are *ConfigError.
func NewGateNode(env GateEnv, pos Pos, facing Face, cfg GateConfig) (*GateNode, error) {
	if env.High == 0 {
		return nil, configErr(protocol.ErrConfigInvalid, "max_strength", ErrBadStrength)
	}
	if !cfg.Kind.Valid() {
		return nil, logicConfigErr("logic", logic.ErrUnknownKind)
	}
	if env.Enabled != nil && !env.Enabled(cfg.Kind) {
		return nil, configErr(protocol.ErrConfigDisabled, "logic", fmt.Errorf("%w: %s", ErrKindDisabled, cfg.Kind))
	}
	if err := logic.ValidateMask(cfg.Kind, cfg.Inverted); err != nil {
		return nil, logicConfigErr("inverted", err)
	}
	if !Horizontal(facing) {
		return nil, configErr(protocol.ErrConfigBadFacing, "facing", ErrBadFacing)
	}
	fn, err := logic.New(cfg.Kind, cfg.Options)
	if err != nil {
		return nil, logicConfigErr("logic", err)
	}
	return &GateNode{
		pos:     pos,
		facing:  facing,
		cfg:     cfg,
		layout:  logic.LayoutOf(cfg.Kind),
		fn:      fn,
		cache:   NewNeighborCache(env.Lookup, pos),
		high:    env.High,
		onDirty: env.OnDirty,
	}, nil
}

func (g *GateNode) ID() NodeID            { return NodeID{Pos: g.pos, Face: g.facing} }
func (g *GateNode) Pos() Pos              { return g.pos }
func (g *GateNode) Facing() Face          { return g.facing }
func (g *GateNode) Config() GateConfig    { return g.cfg }
func (g *GateNode) Inputs() logic.Signals { return g.inputs }

// Outputs returns the published output vector.
func (g *GateNode) Outputs() logic.Signals { return g.outputs }

func (g *GateNode) Dirty() bool { return g.dirty }

// FaceOf maps a gate side onto a world face.
func (g *GateNode) FaceOf(s logic.Side) Face {
	switch s {
	case logic.Back:
		return g.facing.Opposite()
	case logic.Left:
		return RotateLeft(g.facing)
	case logic.Right:
		return RotateRight(g.facing)
	default:
		return g.facing
	}
}

// SideAt maps a world face onto a gate side. Vertical faces have no side.
func (g *GateNode) SideAt(f Face) (logic.Side, bool) {
	for s := logic.Side(0); s < logic.SideCount; s++ {
		if g.FaceOf(s) == f {
			return s, true
		}
	}
	return 0, false
}

// SignalStrength implements SignalEmitter. Only output sides emit.
func (g *GateNode) SignalStrength(f Face) uint8 {
	s, ok := g.SideAt(f)
	if !ok || !g.layout.Outputs.Has(s) {
		return 0
	}
	return g.outputs[s]
}

// OnSignalChanged implements SignalConsumer.
func (g *GateNode) OnSignalChanged(f Face, _ uint8) {
	if s, ok := g.SideAt(f); ok && g.layout.Inputs.Has(s) {
		g.MarkDirty()
	}
}

// OnNeighborChanged drops the cached lookup toward from and schedules the gate.
func (g *GateNode) OnNeighborChanged(from Pos) {
	g.cache.InvalidateFrom(from)
	g.MarkDirty()
}

func (g *GateNode) MarkDirty() {
	if g.dirty {
		return
	}
	g.dirty = true
	if g.onDirty != nil {
		g.onDirty(g)
	}
}

// Evaluate reads the inputs, runs the logic and stages the result. It clears the
// dirty flag: changes that arrive after this point schedule another pass.
func (g *GateNode) Evaluate(step logic.Step) {
	g.dirty = false
	step.High = g.high

	var in logic.Signals
	for s := logic.Side(0); s < logic.SideCount; s++ {
		if !g.layout.Inputs.Has(s) {
			continue
		}
		f := g.FaceOf(s)
		if c := g.cache.Get(f); c.Emitter != nil {
			in[s] = min(c.Emitter.SignalStrength(f.Opposite()), g.high)
		}
	}
	g.inputs = in

	in = logic.Invert(in, g.cfg.Inverted&g.layout.Inputs, g.high)
	out := g.fn.Evaluate(in, step)
	out = logic.Invert(out, g.cfg.Inverted&g.layout.Outputs, g.high)
	for s := logic.Side(0); s < logic.SideCount; s++ {
		if !g.layout.Outputs.Has(s) {
			out[s] = 0
		}
	}
	g.staged = out
}

// Commit publishes the staged outputs and notifies consumers on every face whose
// value changed. It returns those faces.
func (g *GateNode) Commit() []Face {
	if g.staged == g.outputs {
		return nil
	}
	var changed []Face
	for s := logic.Side(0); s < logic.SideCount; s++ {
		if g.staged[s] != g.outputs[s] {
			changed = append(changed, g.FaceOf(s))
		}
	}
	g.outputs = g.staged
	for _, f := range changed {
		if c := g.cache.Get(f); c.Consumer != nil {
			s, _ := g.SideAt(f)
			c.Consumer.OnSignalChanged(f.Opposite(), g.outputs[s])
		}
	}
	return changed
}

// Tick evaluates and publishes in one call.
func (g *GateNode) Tick(step logic.Step) []Face {
	g.Evaluate(step)
	return g.Commit()
}

// State returns the kind-specific memory for persistence.
func (g *GateNode) State() logic.State { return g.fn.State() }

// Restore loads persisted memory and published outputs. Outputs are taken as
// given so a resumed circuit does not glitch on its first tick.
func (g *GateNode) Restore(st logic.State, outputs logic.Signals) {
	g.fn.SetState(st)
	for s := logic.Side(0); s < logic.SideCount; s++ {
		if !g.layout.Outputs.Has(s) {
			outputs[s] = 0
		}
		outputs[s] = min(outputs[s], g.high)
	}
	g.outputs = outputs
	g.staged = outputs
}

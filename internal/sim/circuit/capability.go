package circuit

// SignalEmitter exposes the strength a node drives out of one of its faces.
type SignalEmitter interface {
	SignalStrength(face Face) uint8
}

// SignalConsumer is told when the strength arriving on one of its faces changed.
// Implementations must not re-evaluate synchronously; they schedule themselves.
type SignalConsumer interface {
	OnSignalChanged(face Face, strength uint8)
}

// PowerConsumer is a mechanical endpoint that can be driven.
type PowerConsumer interface {
	IsAcceptingPower() bool
	SetForce(speed, torque float64)
}

// PowerProducer is a mechanical endpoint that drives others. It shares the
// consumer's method set so that a linear element can pass power through.
type PowerProducer interface {
	PowerConsumer
}

// CapabilityKind tags which fields of a Capability are meaningful.
type CapabilityKind uint8

const (
	CapNone CapabilityKind = iota
	// CapSignal: Emitter and/or Consumer are set.
	CapSignal
	// CapWire: Wire is set; Emitter and Consumer point at the same wire.
	CapWire
	// CapMechanical: Power is set.
	CapMechanical
)

// Capability is the result of one neighbor lookup. The zero value means absent.
type Capability struct {
	Kind     CapabilityKind
	Emitter  SignalEmitter
	Consumer SignalConsumer
	Wire     *Wire
	Power    PowerConsumer
}

func (c Capability) Present() bool { return c.Kind != CapNone }

func SignalCapability(e SignalEmitter, c SignalConsumer) Capability {
	if e == nil && c == nil {
		return Capability{}
	}
	return Capability{Kind: CapSignal, Emitter: e, Consumer: c}
}

func WireCapability(w *Wire) Capability {
	if w == nil {
		return Capability{}
	}
	return Capability{Kind: CapWire, Emitter: w, Consumer: w, Wire: w}
}

func MechanicalCapability(p PowerConsumer) Capability {
	if p == nil {
		return Capability{}
	}
	return Capability{Kind: CapMechanical, Power: p}
}

// NeighborLookup resolves what occupies pos as seen through face (the face of
// pos that touches the asker). Invalidate drops any cached resolution that
// involves pos.
type NeighborLookup interface {
	Resolve(pos Pos, face Face) Capability
	Invalidate(pos Pos)
}

// Notifier receives outward neighbor-changed notifications raised by nodes.
type Notifier interface {
	NeighborChanged(pos, from Pos)
}

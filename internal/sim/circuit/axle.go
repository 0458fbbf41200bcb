package circuit

import "math"

// SpeedMultiplier scales received speed into presentation rotation per tick.
const SpeedMultiplier = 4.5

// AxleState is the element-level driving state of an axle.
type AxleState uint8

const (
	AxleIdle AxleState = iota
	AxleDrivenFromA
	AxleDrivenFromB
)

func (s AxleState) String() string {
	switch s {
	case AxleDrivenFromA:
		return "DRIVEN_FROM_A"
	case AxleDrivenFromB:
		return "DRIVEN_FROM_B"
	default:
		return "IDLE"
	}
}

// AxleSide is one half-edge of an axle. It is reached through face facing of
// the axle and passes power out of the opposite face.
type AxleSide struct {
	axle   *Axle
	i      int
	facing Face
	speed  float64
	torque float64
}

func (s *AxleSide) Facing() Face     { return s.facing }
func (s *AxleSide) Speed() float64   { return s.speed }
func (s *AxleSide) Torque() float64  { return s.torque }
func (s *AxleSide) other() *AxleSide { return s.axle.sides[s.i^1] }

func (s *AxleSide) output() PowerConsumer {
	return s.axle.cache.Get(s.facing.Opposite()).Power
}

// IsAcceptingPower implements PowerConsumer. A half refuses while the opposite
// half carries torque, otherwise it defers to whatever is beyond the axle.
func (s *AxleSide) IsAcceptingPower() bool {
	if s.other().torque != 0 {
		return false
	}
	out := s.output()
	return out != nil && out.IsAcceptingPower()
}

// SetForce implements PowerConsumer. Nonzero torque arriving while the opposite
// half is driving is dropped without any state change.
func (s *AxleSide) SetForce(speed, torque float64) {
	a := s.axle
	if torque != 0 && s.other().torque != 0 {
		a.refused++
		return
	}
	if !a.forwarding {
		if out := s.output(); out != nil {
			a.forwarding = true
			out.SetForce(speed, torque)
			a.forwarding = false
		}
	}
	if s.speed == speed && s.torque == torque {
		return
	}
	lost := s.torque != 0 && torque == 0
	s.speed, s.torque = speed, torque
	a.broadcast = true
	if lost && a.notify != nil {
		a.notify.NeighborChanged(a.pos.Side(s.facing), a.pos)
	}
}

// Axle is a two-sided mechanical element along one axis.
type Axle struct {
	pos    Pos
	axis   Axis
	sides  [2]*AxleSide
	cache  *NeighborCache
	notify Notifier

	forwarding bool
	broadcast  bool
	refused    int
	rotSpeed   float64
	angle      float64
}

func NewAxle(lookup NeighborLookup, notify Notifier, pos Pos, axis Axis) *Axle {
	a := &Axle{pos: pos, axis: axis, cache: NewNeighborCache(lookup, pos), notify: notify}
	neg, posFace := AxisFaces(axis)
	a.sides[0] = &AxleSide{axle: a, i: 0, facing: neg}
	a.sides[1] = &AxleSide{axle: a, i: 1, facing: posFace}
	return a
}

func (a *Axle) Pos() Pos   { return a.pos }
func (a *Axle) Axis() Axis { return a.axis }

// Side returns the half reached through face f, or nil when f is off-axis.
func (a *Axle) Side(f Face) *AxleSide {
	if f.Axis() != a.axis {
		return nil
	}
	if Positive(f) {
		return a.sides[1]
	}
	return a.sides[0]
}

// Capability is what a neighbor sees when it looks at the axle through face f.
func (a *Axle) Capability(f Face) Capability {
	if s := a.Side(f); s != nil {
		return MechanicalCapability(s)
	}
	return Capability{}
}

func (a *Axle) State() AxleState {
	switch {
	case a.sides[0].torque != 0:
		return AxleDrivenFromA
	case a.sides[1].torque != 0:
		return AxleDrivenFromB
	default:
		return AxleIdle
	}
}

// OnNeighborChanged drops cached neighbors and releases both halves. Drivers
// re-apply force on their next tick.
func (a *Axle) OnNeighborChanged(from Pos) {
	a.cache.InvalidateFrom(from)
	for _, s := range a.sides {
		s.SetForce(0, 0)
	}
}

// Tick advances the presentation rotation.
func (a *Axle) Tick() {
	speed := a.speed() * SpeedMultiplier
	if speed != a.rotSpeed {
		a.rotSpeed = speed
		a.broadcast = true
	}
	a.angle = math.Mod(a.angle+speed, 360)
	if a.angle < 0 {
		a.angle += 360
	}
}

// Restore sets the presentation angle of a resumed axle.
func (a *Axle) Restore(angle float64) {
	a.angle = math.Mod(angle, 360)
	if a.angle < 0 {
		a.angle += 360
	}
}

func (a *Axle) RotationSpeed() float64 { return a.rotSpeed }
func (a *Axle) Angle() float64         { return a.angle }

// Torque is the driving half's torque, signed.
func (a *Axle) Torque() float64 {
	return dominant(a.sides[0].torque, a.sides[1].torque)
}

// speed follows the driving half; an undriven axle takes whichever half
// was asked to turn faster in either direction.
func (a *Axle) speed() float64 {
	switch a.State() {
	case AxleDrivenFromA:
		return a.sides[0].speed
	case AxleDrivenFromB:
		return a.sides[1].speed
	}
	return dominant(a.sides[0].speed, a.sides[1].speed)
}

// dominant returns the argument with the larger magnitude, keeping its sign.
func dominant(x, y float64) float64 {
	if math.Abs(y) > math.Abs(x) {
		return y
	}
	return x
}

// Refused counts SetForce calls dropped because the opposite half was driving.
func (a *Axle) Refused() int { return a.refused }

// TakeBroadcast reports and clears the pending state-broadcast mark.
func (a *Axle) TakeBroadcast() bool {
	b := a.broadcast
	a.broadcast = false
	return b
}

package logic

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// pulseFormer emits a fixed-length pulse on each rising edge of Back. A held
// input produces one pulse only.
type pulseFormer struct {
	ticks     int
	remaining int
	prev      bool
}

func (p *pulseFormer) Kind() Kind { return PulseFormer }

func (p *pulseFormer) Evaluate(in Signals, step Step) Signals {
	if step.Advance && p.remaining > 0 {
		p.remaining--
	}
	cur := in[Back] > 0
	if cur && !p.prev {
		p.remaining = p.ticks
	}
	p.prev = cur

	var out Signals
	out[Front] = level(p.remaining > 0, step.High)
	return out
}

func (p *pulseFormer) State() State {
	return State{Remaining: p.remaining, PrevInput: p.prev}
}

func (p *pulseFormer) SetState(s State) {
	p.remaining = max(0, min(s.Remaining, p.ticks))
	p.prev = s.PrevInput
}

// rsLatch stores one bit. Reset wins over set; with both low the bit holds.
type rsLatch struct {
	q bool
}

func (l *rsLatch) Kind() Kind { return RSLatch }

func (l *rsLatch) Evaluate(in Signals, step Step) Signals {
	set, reset := in[Left] > 0, in[Right] > 0
	switch {
	case reset:
		l.q = false
	case set:
		l.q = true
	}
	var out Signals
	out[Front] = level(l.q, step.High)
	out[Back] = level(!l.q, step.High)
	return out
}

func (l *rsLatch) State() State     { return State{Latch: l.q} }
func (l *rsLatch) SetState(s State) { l.q = s.Latch }

// randomizer advances a counter on each rising edge of Back and drives its
// outputs from bits of the counter's hash. It stays dark until first triggered.
type randomizer struct {
	seed    uint64
	counter uint64
	prev    bool
}

func (r *randomizer) Kind() Kind { return Randomizer }

func (r *randomizer) Evaluate(in Signals, step Step) Signals {
	cur := in[Back] > 0
	if cur && !r.prev {
		r.counter++
	}
	r.prev = cur

	var out Signals
	if r.counter == 0 {
		return out
	}
	v := r.value()
	out[Front] = level(v&1 != 0, step.High)
	out[Left] = level(v&2 != 0, step.High)
	out[Right] = level(v&4 != 0, step.High)
	return out
}

func (r *randomizer) value() uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], r.counter)
	return xxh3.HashSeed(b[:], r.seed)
}

func (r *randomizer) State() State { return State{Counter: r.counter, PrevInput: r.prev} }

func (r *randomizer) SetState(s State) {
	r.counter = s.Counter
	r.prev = s.PrevInput
}

// synchronizer samples Back continuously but only republishes it when its
// phase counter wraps, so every input change inside a phase lands on the same
// boundary tick.
type synchronizer struct {
	phaseTicks int
	phase      int
	pending    uint8
	held       uint8
}

func (s *synchronizer) Kind() Kind { return Synchronizer }

func (s *synchronizer) Evaluate(in Signals, step Step) Signals {
	s.pending = in[Back]
	if step.Advance {
		s.phase = (s.phase + 1) % s.phaseTicks
		if s.phase == 0 {
			s.held = s.pending
		}
	}
	var out Signals
	out[Front] = s.held
	return out
}

func (s *synchronizer) State() State {
	return State{Phase: s.phase, Pending: s.pending, Held: s.held}
}

func (s *synchronizer) SetState(st State) {
	s.phase = ((st.Phase % s.phaseTicks) + s.phaseTicks) % s.phaseTicks
	s.pending = st.Pending
	s.held = st.Held
}

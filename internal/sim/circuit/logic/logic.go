// Package logic implements the gate logic family: pure functions from a per-side
// input vector to a per-side output vector, with memory only for the kinds that need it.
package logic

import "fmt"

// Side is a gate side relative to the gate's facing.
type Side uint8

const (
	Front Side = iota
	Left
	Back
	Right
)

const SideCount = 4

func (s Side) String() string {
	switch s {
	case Front:
		return "FRONT"
	case Left:
		return "LEFT"
	case Back:
		return "BACK"
	case Right:
		return "RIGHT"
	default:
		return fmt.Sprintf("SIDE(%d)", uint8(s))
	}
}

// SideMask is a bitset over gate sides, bit i = Side(i).
type SideMask uint8

const AllSides SideMask = 1<<SideCount - 1

func MaskOf(sides ...Side) SideMask {
	var m SideMask
	for _, s := range sides {
		m |= 1 << s
	}
	return m
}

func (m SideMask) Has(s Side) bool { return m&(1<<s) != 0 }

// Signals holds one strength per side. Unused slots are zero.
type Signals [SideCount]uint8

// Step carries the tick context of one evaluation.
type Step struct {
	Tick uint64
	// Advance is true on the first evaluation of a tick. Time-based state
	// (countdowns, phases) moves only then, so re-evaluations inside the same
	// tick do not age it.
	Advance bool
	// High is the strength emitted for a true boolean output.
	High uint8
}

// Logic is one gate function. Implementations with memory use pointer receivers
// and keep their state on the concrete type.
type Logic interface {
	Kind() Kind
	Evaluate(in Signals, step Step) Signals
	State() State
	SetState(State)
}

// State is the persisted, kind-specific memory of a gate. Only the fields
// relevant to the owning kind are populated.
type State struct {
	Latch     bool   `json:"latch,omitempty"`
	PrevInput bool   `json:"prev_input,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	Phase     int    `json:"phase,omitempty"`
	Held      uint8  `json:"held,omitempty"`
	Pending   uint8  `json:"pending,omitempty"`
	Counter   uint64 `json:"counter,omitempty"`
}

// Options parameterize the stateful kinds.
type Options struct {
	PulseTicks int
	PhaseTicks int
	Seed       uint64
}

func (o *Options) applyDefaults() {
	if o.PulseTicks <= 0 {
		o.PulseTicks = 2
	}
	if o.PhaseTicks <= 0 {
		o.PhaseTicks = 1
	}
}

// New builds the logic for kind k.
func New(k Kind, opts Options) (Logic, error) {
	opts.applyDefaults()
	switch k {
	case NAND:
		return &combinational{kind: k, fn: func(a, b bool) bool { return !(a && b) }}, nil
	case NOR:
		return &combinational{kind: k, fn: func(a, b bool) bool { return !(a || b) }}, nil
	case XOR:
		return &combinational{kind: k, fn: func(a, b bool) bool { return a != b }}, nil
	case Multiplexer:
		return multiplexer{}, nil
	case Buffer:
		return buffer{}, nil
	case PulseFormer:
		return &pulseFormer{ticks: opts.PulseTicks}, nil
	case RSLatch:
		return &rsLatch{}, nil
	case Randomizer:
		return &randomizer{seed: opts.Seed}, nil
	case Synchronizer:
		return &synchronizer{phaseTicks: opts.PhaseTicks}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// Invert flips the boolean sense of every side in mask: a zero strength becomes
// high and any nonzero strength becomes zero.
func Invert(s Signals, mask SideMask, high uint8) Signals {
	for i := range s {
		if !mask.Has(Side(i)) {
			continue
		}
		if s[i] > 0 {
			s[i] = 0
		} else {
			s[i] = high
		}
	}
	return s
}

func level(on bool, high uint8) uint8 {
	if on {
		return high
	}
	return 0
}

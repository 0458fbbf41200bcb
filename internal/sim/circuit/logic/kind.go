package logic

import (
	"errors"
	"strings"
)

// Kind identifies a gate logic function.
type Kind uint8

const (
	KindInvalid Kind = iota
	NAND
	NOR
	XOR
	Multiplexer
	PulseFormer
	Buffer
	RSLatch
	Randomizer
	Synchronizer
)

var (
	ErrUnknownKind = errors.New("unknown logic kind")
	ErrMaskRange   = errors.New("inversion mask outside gate sides")
	ErrMaskSide    = errors.New("inversion mask references unused side")
)

var kindNames = [...]string{
	KindInvalid:  "INVALID",
	NAND:         "NAND",
	NOR:          "NOR",
	XOR:          "XOR",
	Multiplexer:  "MULTIPLEXER",
	PulseFormer:  "PULSE_FORMER",
	Buffer:       "BUFFER",
	RSLatch:      "RS_LATCH",
	Randomizer:   "RANDOMIZER",
	Synchronizer: "SYNCHRONIZER",
}

// Kinds returns every valid kind in registry order.
func Kinds() []Kind {
	return []Kind{NAND, NOR, XOR, Multiplexer, PulseFormer, Buffer, RSLatch, Randomizer, Synchronizer}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindInvalid]
}

// ID returns the namespaced registry id, e.g. "simplelogic:pulse_former".
func (k Kind) ID() string {
	if !k.Valid() {
		return ""
	}
	return "simplelogic:" + strings.ToLower(k.String())
}

func (k Kind) Valid() bool { return k > KindInvalid && k <= Synchronizer }

// ParseKind accepts either the upper-case name or the namespaced id.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return KindInvalid, ErrUnknownKind
	}
	s = strings.TrimPrefix(strings.ToLower(s), "simplelogic:")
	for _, k := range Kinds() {
		if strings.ToLower(k.String()) == s {
			return k, nil
		}
	}
	return KindInvalid, ErrUnknownKind
}

// Layout describes which sides a kind reads and drives. It is fixed per kind.
type Layout struct {
	Inputs  SideMask
	Outputs SideMask
}

func (l Layout) Sides() SideMask { return l.Inputs | l.Outputs }

// layouts fixes each kind's sides. The two-input kinds NAND, NOR and XOR read
// Left and Right only; Back is unused for them.
var layouts = [...]Layout{
	NAND:         {Inputs: MaskOf(Left, Right), Outputs: MaskOf(Front)},
	NOR:          {Inputs: MaskOf(Left, Right), Outputs: MaskOf(Front)},
	XOR:          {Inputs: MaskOf(Left, Right), Outputs: MaskOf(Front)},
	Multiplexer:  {Inputs: MaskOf(Left, Back, Right), Outputs: MaskOf(Front)},
	PulseFormer:  {Inputs: MaskOf(Back), Outputs: MaskOf(Front)},
	Buffer:       {Inputs: MaskOf(Back), Outputs: MaskOf(Front, Left, Right)},
	RSLatch:      {Inputs: MaskOf(Left, Right), Outputs: MaskOf(Front, Back)},
	Randomizer:   {Inputs: MaskOf(Back), Outputs: MaskOf(Front, Left, Right)},
	Synchronizer: {Inputs: MaskOf(Back), Outputs: MaskOf(Front)},
}

// LayoutOf returns the side layout of k. Invalid kinds have an empty layout.
func LayoutOf(k Kind) Layout {
	if !k.Valid() {
		return Layout{}
	}
	return layouts[k]
}

// ValidateMask checks an inversion mask against the layout of k.
func ValidateMask(k Kind, mask SideMask) error {
	if !k.Valid() {
		return ErrUnknownKind
	}
	if mask&^AllSides != 0 {
		return ErrMaskRange
	}
	if mask&^LayoutOf(k).Sides() != 0 {
		return ErrMaskSide
	}
	return nil
}

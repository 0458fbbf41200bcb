package logic

import "strings"

// Preset is a named (kind, inversion) pair offered to builders and layouts.
type Preset struct {
	Name     string
	Kind     Kind
	Inverted SideMask
}

var presets = []Preset{
	{Name: "NOR", Kind: NOR},
	{Name: "OR", Kind: NOR, Inverted: MaskOf(Front)},
	{Name: "NAND", Kind: NAND},
	{Name: "AND", Kind: NAND, Inverted: MaskOf(Front)},
	{Name: "XOR", Kind: XOR},
	{Name: "XNOR", Kind: XOR, Inverted: MaskOf(Front)},
	{Name: "MULTIPLEXER", Kind: Multiplexer},
	{Name: "PULSE_FORMER", Kind: PulseFormer},
	{Name: "BUFFER", Kind: Buffer},
	{Name: "NOT", Kind: Buffer, Inverted: MaskOf(Front)},
	{Name: "RS_LATCH", Kind: RSLatch},
	{Name: "RANDOMIZER", Kind: Randomizer},
	{Name: "SYNCHRONIZER", Kind: Synchronizer},
}

func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by case-insensitive name.
func LookupPreset(name string) (Preset, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// InversionSensitive reports whether the preset differs from its kind's plain form.
func (p Preset) InversionSensitive() bool { return p.Inverted != 0 }

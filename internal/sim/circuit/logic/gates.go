package logic

// combinational covers the two-input boolean kinds.
type combinational struct {
	kind Kind
	fn   func(a, b bool) bool
}

func (c *combinational) Kind() Kind   { return c.kind }
func (c *combinational) State() State { return State{} }
func (c *combinational) SetState(State) {}

func (c *combinational) Evaluate(in Signals, step Step) Signals {
	var out Signals
	out[Front] = level(c.fn(in[Left] > 0, in[Right] > 0), step.High)
	return out
}

// buffer repeats its strongest input on every output side.
type buffer struct{}

func (buffer) Kind() Kind   { return Buffer }
func (buffer) State() State { return State{} }
func (buffer) SetState(State) {}

func (buffer) Evaluate(in Signals, step Step) Signals {
	l := LayoutOf(Buffer)
	var strongest uint8
	for i, v := range in {
		if l.Inputs.Has(Side(i)) && v > strongest {
			strongest = v
		}
	}
	var out Signals
	for i := range out {
		if l.Outputs.Has(Side(i)) {
			out[i] = strongest
		}
	}
	return out
}

// multiplexer routes Left when the Back select is low (or absent) and Right
// when it is high.
type multiplexer struct{}

func (multiplexer) Kind() Kind   { return Multiplexer }
func (multiplexer) State() State { return State{} }
func (multiplexer) SetState(State) {}

func (multiplexer) Evaluate(in Signals, step Step) Signals {
	var out Signals
	if in[Back] > 0 {
		out[Front] = in[Right]
	} else {
		out[Front] = in[Left]
	}
	return out
}

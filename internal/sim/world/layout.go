package world

import (
	"fmt"

	"circuitcraft.ai/internal/sim/layout"
)

// ApplyLayout places every block of l. It must run before Run or between
// StepOnce calls. The first failing block aborts the load; blocks already
// placed stay.
func (w *World) ApplyLayout(l layout.Layout) error {
	ps, err := l.Expand()
	if err != nil {
		return err
	}
	for _, p := range ps {
		if err := w.place(p.Edit()); err != nil {
			return fmt.Errorf("layout %s: blocks[%d]: %w", l.Name, p.Index, err)
		}
		b, _ := w.blocks.Get(posOf(p.Pos))
		switch {
		case b.lever != nil && p.Block.On:
			b.lever.on = true
			w.signalChanged(b.pos, b.lever)
		case b.gate != nil && p.Block.State != nil:
			st := b.gate.State()
			st.Latch = p.Block.State.Latch
			st.Counter = p.Block.State.Counter
			st.Phase = p.Block.State.Phase
			b.gate.Restore(st, b.gate.Outputs())
		}
	}
	w.log.WithField("layout", l.Name).WithField("blocks", len(ps)).Info("layout applied")
	return nil
}

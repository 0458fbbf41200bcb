package world

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/zeebo/xxh3"

	"circuitcraft.ai/internal/sim/circuit"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes everything that influences future ticks, visiting blocks
// in position order so that insertion history does not matter.
func (w *World) stateDigest(nowTick uint64) string {
	h := xxh3.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.blocks.Len()))

	for _, pos := range w.sortedPositions() {
		b, _ := w.blocks.Get(pos)
		for i := 0; i < 3; i++ {
			digestWriteI64(h, &tmp, int64(pos[i]))
		}
		h.Write([]byte{byte(b.typ), byte(b.facing), byte(b.axis)})
		switch b.typ {
		case BlockWire:
			h.Write([]byte{w.WireStrength(pos)})
		case BlockGate:
			digestGate(h, &tmp, b.gate)
		case BlockLever:
			h.Write([]byte{boolByte(b.lever.on)})
		case BlockPower:
			h.Write([]byte{b.power.strength})
		case BlockLamp:
			h.Write([]byte{boolByte(b.lamp.lit)})
		case BlockAxle:
			neg, posFace := circuit.AxisFaces(b.axis)
			for _, s := range []*circuit.AxleSide{b.axle.Side(neg), b.axle.Side(posFace)} {
				digestWriteF64(h, &tmp, s.Speed())
				digestWriteF64(h, &tmp, s.Torque())
			}
			digestWriteF64(h, &tmp, b.axle.Angle())
		case BlockFlywheel:
			digestWriteF64(h, &tmp, b.wheel.speed)
			digestWriteF64(h, &tmp, b.wheel.torque)
		}
	}

	ids := make([]string, 0, len(w.cooldowns))
	for id := range w.cooldowns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		h.Write([]byte(id))
		digestWriteU64(h, &tmp, w.cooldowns[id])
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

func digestGate(h hashWriter, tmp *[8]byte, g *circuit.GateNode) {
	cfg := g.Config()
	out := g.Outputs()
	h.Write([]byte{byte(cfg.Kind), byte(cfg.Inverted)})
	h.Write(out[:])
	st := g.State()
	h.Write([]byte{boolByte(st.Latch), boolByte(st.PrevInput), st.Held, st.Pending})
	digestWriteI64(h, tmp, int64(st.Remaining))
	digestWriteI64(h, tmp, int64(st.Phase))
	digestWriteU64(h, tmp, st.Counter)
}

func (w *World) sortedPositions() []Pos {
	out := make([]Pos, 0, w.blocks.Len())
	for el := w.blocks.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key)
	}
	circuit.SortPositions(out)
	return out
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

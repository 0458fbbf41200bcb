package circuit

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/elliotchance/orderedmap/v2"

	"circuitcraft.ai/internal/protocol"
)

// Wire is one wire segment. Its strength is owned by the network and is never
// persisted.
type Wire struct {
	pos      Pos
	strength uint8
	net      *WireNetwork
	cache    *NeighborCache
}

func (w *Wire) Pos() Pos        { return w.pos }
func (w *Wire) Strength() uint8 { return w.strength }

// SignalStrength implements SignalEmitter. A wire drives every face equally.
func (w *Wire) SignalStrength(Face) uint8 { return w.strength }

// OnSignalChanged implements SignalConsumer.
func (w *Wire) OnSignalChanged(Face, uint8) { w.net.MarkDirty(w.pos) }

func (w *Wire) OnNeighborChanged(from Pos) {
	w.cache.InvalidateFrom(from)
	w.net.MarkDirty(w.pos)
}

// WireChange is a published strength change, coalesced per position.
type WireChange struct {
	Pos      Pos
	Strength uint8
}

// WireNetwork recomputes wire strengths by bounded local relaxation around dirty
// seeds. It keeps no edges: connectivity is read through each wire's
// NeighborCache every time.
type WireNetwork struct {
	lookup NeighborLookup
	high   uint8

	wires   map[Pos]*Wire
	dirty   *orderedmap.OrderedMap[Pos, struct{}]
	changes *orderedmap.OrderedMap[Pos, uint8]
}

func NewWireNetwork(lookup NeighborLookup, high uint8) (*WireNetwork, error) {
	if high == 0 {
		return nil, configErr(protocol.ErrConfigInvalid, "max_strength", ErrBadStrength)
	}
	return &WireNetwork{
		lookup:  lookup,
		high:    high,
		wires:   map[Pos]*Wire{},
		dirty:   orderedmap.NewOrderedMap[Pos, struct{}](),
		changes: orderedmap.NewOrderedMap[Pos, uint8](),
	}, nil
}

func (n *WireNetwork) High() uint8 { return n.high }
func (n *WireNetwork) Len() int    { return len(n.wires) }

// Wire returns the wire at pos, or nil.
func (n *WireNetwork) Wire(pos Pos) *Wire { return n.wires[pos] }

// Add registers a wire at pos and schedules it. Adding over an existing wire
// returns the existing one.
func (n *WireNetwork) Add(pos Pos) *Wire {
	if w, ok := n.wires[pos]; ok {
		return w
	}
	w := &Wire{pos: pos, net: n, cache: NewNeighborCache(n.lookup, pos)}
	n.wires[pos] = w
	n.MarkDirty(pos)
	for _, f := range cube.Faces() {
		if _, ok := n.wires[pos.Side(f)]; ok {
			n.MarkDirty(pos.Side(f))
		}
	}
	return w
}

// Remove drops the wire at pos and schedules its wire neighbors. A removal that
// darkens a lit wire is published as a change to 0.
func (n *WireNetwork) Remove(pos Pos) {
	w, ok := n.wires[pos]
	if !ok {
		return
	}
	delete(n.wires, pos)
	n.dirty.Delete(pos)
	if w.strength != 0 {
		n.changes.Set(pos, 0)
	}
	for _, f := range cube.Faces() {
		if _, ok := n.wires[pos.Side(f)]; ok {
			n.MarkDirty(pos.Side(f))
		}
	}
}

// MarkDirty queues pos as a relaxation seed. Positions without a wire are ignored.
func (n *WireNetwork) MarkDirty(pos Pos) {
	if _, ok := n.wires[pos]; !ok {
		return
	}
	n.dirty.Set(pos, struct{}{})
}

// MarkAllDirty queues every wire in position order.
func (n *WireNetwork) MarkAllDirty() {
	for _, pos := range n.Positions() {
		n.dirty.Set(pos, struct{}{})
	}
}

// Positions lists wire positions sorted by x, then y, then z.
func (n *WireNetwork) Positions() []Pos {
	out := make([]Pos, 0, len(n.wires))
	for pos := range n.wires {
		out = append(out, pos)
	}
	SortPositions(out)
	return out
}

func (n *WireNetwork) Pending() int { return n.dirty.Len() }

// TakeChanges drains the strength changes published since the last call.
func (n *WireNetwork) TakeChanges() []WireChange {
	if n.changes.Len() == 0 {
		return nil
	}
	out := make([]WireChange, 0, n.changes.Len())
	for el := n.changes.Front(); el != nil; el = el.Next() {
		out = append(out, WireChange{Pos: el.Key, Strength: el.Value})
	}
	n.changes = orderedmap.NewOrderedMap[Pos, uint8]()
	return out
}

// Propagate relaxes dirty seeds in queue order until the queue is empty or
// budget nodes have been visited. budget <= 0 means unlimited. A seed's region
// is always relaxed completely; exhausting the budget only defers later seeds.
func (n *WireNetwork) Propagate(budget int) PropagationResult {
	var res PropagationResult
	for n.dirty.Len() > 0 {
		if budget > 0 && res.Visited >= budget {
			res.BudgetExceeded = true
			break
		}
		el := n.dirty.Front()
		seed := el.Key
		n.dirty.Delete(seed)
		w, ok := n.wires[seed]
		if !ok {
			continue
		}
		res.add(n.relax(w))
	}
	res.Pending = n.dirty.Len()
	return res
}

// relax recomputes every wire within high-1 hops of seed. Wires at exactly high
// hops form a fixed boundary: no change at the seed can reach them.
func (n *WireNetwork) relax(seed *Wire) PropagationResult {
	res := PropagationResult{Seeds: 1}
	limit := int(n.high) - 1

	dist := map[*Wire]int{seed: 0}
	region := []*Wire{seed}
	var boundary []*Wire
	for i := 0; i < len(region); i++ {
		w := region[i]
		d := dist[w]
		for _, f := range cube.Faces() {
			nb := w.cache.Get(f).Wire
			if nb == nil {
				continue
			}
			if _, seen := dist[nb]; seen {
				continue
			}
			dist[nb] = d + 1
			if d+1 > limit {
				boundary = append(boundary, nb)
				continue
			}
			region = append(region, nb)
		}
	}
	res.Visited = len(region) + len(boundary)

	inRegion := func(w *Wire) bool {
		d, ok := dist[w]
		return ok && d <= limit
	}

	best := make(map[*Wire]uint8, len(region))
	buckets := make([][]*Wire, int(n.high)+1)
	offer := func(w *Wire, s uint8) {
		if s == 0 || s <= best[w] {
			return
		}
		best[w] = s
		buckets[s] = append(buckets[s], w)
	}
	for _, w := range region {
		for _, f := range cube.Faces() {
			c := w.cache.Get(f)
			switch {
			case c.Wire != nil:
				if !inRegion(c.Wire) && c.Wire.strength > 0 {
					offer(w, c.Wire.strength-1)
				}
			case c.Emitter != nil:
				offer(w, min(c.Emitter.SignalStrength(f.Opposite()), n.high))
			}
		}
	}

	final := make(map[*Wire]bool, len(region))
	for level := int(n.high); level > 0; level-- {
		finalized := false
		for _, w := range buckets[level] {
			if final[w] || best[w] != uint8(level) {
				continue
			}
			final[w] = true
			finalized = true
			for _, f := range cube.Faces() {
				nb := w.cache.Get(f).Wire
				if nb != nil && inRegion(nb) && !final[nb] {
					offer(nb, uint8(level-1))
				}
			}
		}
		buckets[level] = nil
		if finalized {
			res.Rounds++
		}
	}

	for _, w := range region {
		s := best[w]
		if s == w.strength {
			continue
		}
		w.strength = s
		res.Updated++
		n.changes.Set(w.pos, s)
		n.notifyConsumers(w)
	}
	return res
}

func (n *WireNetwork) notifyConsumers(w *Wire) {
	for _, f := range cube.Faces() {
		c := w.cache.Get(f)
		if c.Kind == CapWire || c.Consumer == nil {
			continue
		}
		c.Consumer.OnSignalChanged(f.Opposite(), w.strength)
	}
}

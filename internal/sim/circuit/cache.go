package circuit

import "github.com/df-mc/dragonfly/server/block/cube"

// NeighborCache memoizes the six neighbor resolutions of one node until
// invalidated. It belongs to a single node and is never shared.
type NeighborCache struct {
	lookup NeighborLookup
	pos    Pos
	valid  [6]bool
	caps   [6]Capability
}

func NewNeighborCache(lookup NeighborLookup, pos Pos) *NeighborCache {
	return &NeighborCache{lookup: lookup, pos: pos}
}

// Get returns the capability of the neighbor across face f.
func (c *NeighborCache) Get(f Face) Capability {
	if c == nil || c.lookup == nil || int(f) >= len(c.caps) {
		return Capability{}
	}
	if !c.valid[f] {
		np, nf := Across(c.pos, f)
		c.caps[f] = c.lookup.Resolve(np, nf)
		c.valid[f] = true
	}
	return c.caps[f]
}

func (c *NeighborCache) Invalidate() {
	if c == nil {
		return
	}
	c.valid = [6]bool{}
	c.caps = [6]Capability{}
}

// InvalidateFrom drops only the entry facing changed, if it is adjacent.
func (c *NeighborCache) InvalidateFrom(changed Pos) {
	if c == nil {
		return
	}
	for _, f := range cube.Faces() {
		if c.pos.Side(f) == changed {
			c.valid[f] = false
			c.caps[f] = Capability{}
		}
	}
}

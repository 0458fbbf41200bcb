// Package layout loads initial circuits from YAML files. Files are validated
// against schemas/layout.schema.json before they are decoded.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/schemas"
)

const schemaName = "layout.schema.json"

// MaxExpanded bounds the number of cells a layout may expand to.
const MaxExpanded = 1 << 16

type Layout struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Blocks      []Block `json:"blocks"`
}

// Block places one block, or a filled box of identical blocks when To is set.
type Block struct {
	Block    string   `json:"block"`
	Pos      [3]int   `json:"pos"`
	To       *[3]int  `json:"to,omitempty"`
	Facing   string   `json:"facing,omitempty"`
	Axis     string   `json:"axis,omitempty"`
	Logic    string   `json:"logic,omitempty"`
	Preset   string   `json:"preset,omitempty"`
	Inverted []string `json:"inverted,omitempty"`
	Strength int      `json:"strength,omitempty"`
	On       bool     `json:"on,omitempty"`
	State    *State   `json:"state,omitempty"`
}

// State seeds the memory of a stateful gate.
type State struct {
	Latch   bool   `json:"latch,omitempty"`
	Counter uint64 `json:"counter,omitempty"`
	Phase   int    `json:"phase,omitempty"`
}

// Placement is one expanded cell. Index points back into Layout.Blocks.
type Placement struct {
	Index int
	Block Block
	Pos   [3]int
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := schemas.FS.ReadFile(schemaName)
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaName, bytes.NewReader(raw)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaName)
	})
	return schema, schemaErr
}

func Load(path string) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, err
	}
	l, err := Parse(raw)
	if err != nil {
		return Layout{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse decodes YAML, validates it against the layout schema and checks
// ranges.
func Parse(raw []byte) (Layout, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Layout{}, fmt.Errorf("yaml: %w", err)
	}
	// Round trip through JSON so the validator sees JSON types.
	jb, err := json.Marshal(doc)
	if err != nil {
		return Layout{}, fmt.Errorf("yaml to json: %w", err)
	}
	var v any
	if err := json.Unmarshal(jb, &v); err != nil {
		return Layout{}, err
	}
	s, err := compiled()
	if err != nil {
		return Layout{}, fmt.Errorf("compile layout schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return Layout{}, fmt.Errorf("schema: %w", err)
	}

	var l Layout
	if err := json.Unmarshal(jb, &l); err != nil {
		return Layout{}, err
	}
	if _, err := l.Expand(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

var ErrTooLarge = errors.New("layout expands to too many blocks")

// Expand lists every cell to place, in file order. A box runs x, then y, then
// z from the smaller corner.
func (l Layout) Expand() ([]Placement, error) {
	var out []Placement
	for i, b := range l.Blocks {
		if b.To == nil {
			out = append(out, Placement{Index: i, Block: b, Pos: b.Pos})
			continue
		}
		lo, hi := b.Pos, *b.To
		for k := 0; k < 3; k++ {
			if lo[k] > hi[k] {
				lo[k], hi[k] = hi[k], lo[k]
			}
		}
		n := (hi[0] - lo[0] + 1) * (hi[1] - lo[1] + 1) * (hi[2] - lo[2] + 1)
		if len(out)+n > MaxExpanded {
			return nil, fmt.Errorf("blocks[%d]: %w", i, ErrTooLarge)
		}
		for x := lo[0]; x <= hi[0]; x++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for z := lo[2]; z <= hi[2]; z++ {
					out = append(out, Placement{Index: i, Block: b, Pos: [3]int{x, y, z}})
				}
			}
		}
	}
	return out, nil
}

// Edit is the PLACE edit for this placement.
func (p Placement) Edit() protocol.Edit {
	b := p.Block
	return protocol.Edit{
		Op:       protocol.OpPlace,
		Pos:      p.Pos,
		Block:    b.Block,
		Facing:   b.Facing,
		Axis:     b.Axis,
		Logic:    b.Logic,
		Preset:   b.Preset,
		Inverted: b.Inverted,
		Strength: b.Strength,
	}
}

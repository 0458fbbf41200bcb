package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"circuitcraft.ai/internal/protocol"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validateJSON(t *testing.T, s *jsonschema.Schema, raw []byte) {
	t.Helper()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validateJSON(t, compileSchema(t, "hello.schema.json"), []byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "actor_name":"builder1"
	}`))

	validateJSON(t, compileSchema(t, "welcome.schema.json"), []byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "actor_id":"A1",
	  "tick":12,
	  "world_params":{
	    "tick_rate_hz":20,
	    "max_strength":15,
	    "wire_budget":4096,
	    "max_passes":8,
	    "toggle_cooldown_ticks":4
	  },
	  "logic":[{"id":"simplelogic:nand","name":"NAND","inputs":["left","right"],"outputs":["front"]}],
	  "presets":[{"name":"AND","logic":"simplelogic:nand","inverted":["front"]}]
	}`))

	validateJSON(t, compileSchema(t, "observer_tick.schema.json"), []byte(`{
	  "type":"TICK",
	  "protocol_version":"0.2",
	  "tick":3,
	  "digest":"00112233aabbccdd",
	  "passes":2,
	  "wires":[{"pos":[0,0,0],"strength":15}],
	  "gates":[{"pos":[1,0,0],"logic":"simplelogic:nor","outputs":[15,0,0,0]}],
	  "axles":[{"pos":[2,0,0],"state":"DRIVEN_FROM_A","speed":9,"torque":10,"angle":18}],
	  "lamps":[{"pos":[3,0,0],"lit":true}]
	}`))
}

func TestSchemas_EditMessageRoundTrip(t *testing.T) {
	s := compileSchema(t, "edit.schema.json")
	msg := protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		ReqID:           "R1",
		Edits: []protocol.Edit{
			{Op: protocol.OpPlace, Pos: [3]int{0, 0, 0}, Block: "GATE", Facing: "north", Preset: "AND"},
			{Op: protocol.OpPlace, Pos: [3]int{1, 0, 0}, Block: "POWER", Strength: 15},
			{Op: protocol.OpToggle, Pos: [3]int{2, 0, 0}},
			{Op: protocol.OpBreak, Pos: [3]int{3, 0, 0}},
		},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	validateJSON(t, s, raw)

	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          "R1",
		Accepted:        true,
		Tick:            5,
		Results:         []protocol.EditResult{{}, {Code: protocol.ErrOccupied}},
	}
	raw, err = json.Marshal(ack)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	validateJSON(t, compileSchema(t, "ack.schema.json"), raw)
}

func TestSchemas_RejectBadEdit(t *testing.T) {
	s := compileSchema(t, "edit.schema.json")
	var v any
	_ = json.Unmarshal([]byte(`{"type":"EDIT","protocol_version":"1.0","edits":[{"op":"MELT","pos":[0,0]}]}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected invalid edit to fail validation")
	}
}

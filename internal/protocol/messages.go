package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ActorName       string     `json:"actor_name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ActorID         string      `json:"actor_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Logic           []LogicRef  `json:"logic"`
	Presets         []PresetRef `json:"presets,omitempty"`
}

type WorldParams struct {
	TickRateHz     int    `json:"tick_rate_hz"`
	MaxStrength    int    `json:"max_strength"`
	WireBudget     int    `json:"wire_budget"`
	MaxPasses      int    `json:"max_passes"`
	ToggleCooldown int    `json:"toggle_cooldown_ticks"`
	OnlyBottomFace bool   `json:"only_bottom_face,omitempty"`
	TuningDigest   string `json:"tuning_digest,omitempty"`
}

// LogicRef describes one enabled gate kind and its fixed side layout.
type LogicRef struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

type PresetRef struct {
	Name     string   `json:"name"`
	Logic    string   `json:"logic"`
	Inverted []string `json:"inverted,omitempty"`
}

// Edit operations.
const (
	OpPlace  = "PLACE"
	OpBreak  = "BREAK"
	OpToggle = "TOGGLE"
)

// EDIT (client -> server). Edits are applied in order at the next tick boundary.
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Edits           []Edit `json:"edits"`
}

type Edit struct {
	Op     string `json:"op"`
	Pos    [3]int `json:"pos"`
	Block  string `json:"block,omitempty"`
	Facing string `json:"facing,omitempty"`
	Axis   string `json:"axis,omitempty"`

	// Gate placement: either a logic id/name with an inversion list, or a preset.
	Logic    string   `json:"logic,omitempty"`
	Preset   string   `json:"preset,omitempty"`
	Inverted []string `json:"inverted,omitempty"`

	// POWER blocks.
	Strength int `json:"strength,omitempty"`
}

// ACK (server -> client). One result per submitted edit, in order.
type AckMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	AckFor          string       `json:"ack_for"`
	Accepted        bool         `json:"accepted"`
	Code            string       `json:"code,omitempty"`
	Message         string       `json:"message,omitempty"`
	Tick            uint64       `json:"tick,omitempty"`
	Results         []EditResult `json:"results,omitempty"`
}

type EditResult struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

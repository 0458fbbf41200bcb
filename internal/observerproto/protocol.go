package observerproto

import "circuitcraft.ai/internal/protocol"

// Version is the observer protocol version (separate from the edit WS protocol).
const Version = "0.2"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: only report nodes inside this box (inclusive).
	Region *Region `json:"region,omitempty"`
	// Skip per-tick messages in which nothing changed.
	ChangesOnly bool `json:"changes_only,omitempty"`
}

type Region struct {
	Min [3]int `json:"min"`
	Max [3]int `json:"max"`
}

func (r *Region) Contains(p [3]int) bool {
	if r == nil {
		return true
	}
	for i := 0; i < 3; i++ {
		if p[i] < r.Min[i] || p[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string               `json:"protocol_version"`
	Tick            uint64               `json:"tick"`
	Digest          string               `json:"digest"`
	WorldParams     protocol.WorldParams `json:"world_params"`
	Logic           []protocol.LogicRef  `json:"logic"`
	Blocks          []BlockState         `json:"blocks"`
}

type BlockState struct {
	Pos    [3]int `json:"pos"`
	Block  string `json:"block"`
	Facing string `json:"facing,omitempty"`
	Axis   string `json:"axis,omitempty"`
	Logic  string `json:"logic,omitempty"`
}

// Server -> Client. Sent every tick. The first message after SUBSCRIBE has Full set
// and carries every node; later ones carry only nodes that changed.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`
	Full            bool   `json:"full,omitempty"`

	Passes         int  `json:"passes"`
	BudgetExceeded bool `json:"budget_exceeded,omitempty"`
	PassLimitHit   bool `json:"pass_limit_hit,omitempty"`

	Wires  []WireState    `json:"wires,omitempty"`
	Gates  []GateState    `json:"gates,omitempty"`
	Axles  []AxleState    `json:"axles,omitempty"`
	Lamps  []LampState    `json:"lamps,omitempty"`
	Edits  []RecordedEdit `json:"edits,omitempty"`
	Joins  []JoinInfo     `json:"joins,omitempty"`
	Leaves []string       `json:"leaves,omitempty"`
}

type WireState struct {
	Pos      [3]int `json:"pos"`
	Strength int    `json:"strength"`
}

// GateState outputs are indexed front, left, back, right.
type GateState struct {
	Pos     [3]int `json:"pos"`
	Logic   string `json:"logic"`
	Outputs [4]int `json:"outputs"`
}

type AxleState struct {
	Pos    [3]int  `json:"pos"`
	State  string  `json:"state"`
	Speed  float64 `json:"speed"`
	Torque float64 `json:"torque"`
	Angle  float64 `json:"angle"`
}

type LampState struct {
	Pos [3]int `json:"pos"`
	Lit bool   `json:"lit"`
}

type RecordedEdit struct {
	ActorID string        `json:"actor_id"`
	Edit    protocol.Edit `json:"edit"`
	Code    string        `json:"code,omitempty"`
}

type JoinInfo struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
}

package world

import (
	"fmt"
	"strings"

	"circuitcraft.ai/internal/observerproto"
	"circuitcraft.ai/internal/protocol"
)

// BlockType is what occupies one grid cell.
type BlockType uint8

const (
	BlockAir BlockType = iota
	BlockStone
	BlockWire
	BlockGate
	BlockAxle
	BlockLever
	BlockPower
	BlockLamp
	BlockMotor
	BlockFlywheel
)

var blockNames = [...]string{
	BlockAir:      "AIR",
	BlockStone:    "STONE",
	BlockWire:     "WIRE",
	BlockGate:     "GATE",
	BlockAxle:     "AXLE",
	BlockLever:    "LEVER",
	BlockPower:    "POWER",
	BlockLamp:     "LAMP",
	BlockMotor:    "MOTOR",
	BlockFlywheel: "FLYWHEEL",
}

func (t BlockType) String() string {
	if int(t) < len(blockNames) {
		return blockNames[t]
	}
	return fmt.Sprintf("BLOCK(%d)", uint8(t))
}

func ParseBlockType(s string) (BlockType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range blockNames {
		if n == s {
			return BlockType(i), true
		}
	}
	return BlockAir, false
}

type JoinRequest struct {
	Name string
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// EditEnvelope carries one EDIT message into the world loop. Resp, if set,
// receives the ACK once the edits were applied at the tick boundary.
type EditEnvelope struct {
	ActorID string
	ReqID   string
	Edits   []protocol.Edit
	Resp    chan protocol.AckMsg
}

type RecordedJoin struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
}

type RecordedEdit struct {
	ActorID string        `json:"actor_id"`
	Edit    protocol.Edit `json:"edit"`
	Code    string        `json:"code,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is enough to replay a tick from the previous state and check
// the result.
type TickLogEntry struct {
	Tick   uint64         `json:"tick"`
	Joins  []RecordedJoin `json:"joins,omitempty"`
	Leaves []string       `json:"leaves,omitempty"`
	Edits  []RecordedEdit `json:"edits,omitempty"`
	Digest string         `json:"digest"`

	Passes         int  `json:"passes"`
	GateEvals      int  `json:"gate_evals"`
	WireVisited    int  `json:"wire_visited"`
	WireUpdates    int  `json:"wire_updates"`
	WirePending    int  `json:"wire_pending,omitempty"`
	BudgetExceeded bool `json:"budget_exceeded,omitempty"`
	GatesPending   int  `json:"gates_pending,omitempty"`
	PassLimitHit   bool `json:"pass_limit_hit,omitempty"`
}

// ObserverJoinRequest registers a read-only observer session that receives one
// TICK message per tick on TickOut.
type ObserverJoinRequest struct {
	SessionID   string
	TickOut     chan []byte
	Region      *observerproto.Region
	ChangesOnly bool
}

// ObserverSubscribeRequest updates an existing observer session. The next
// message after a subscribe is a full one.
type ObserverSubscribeRequest struct {
	SessionID   string
	Region      *observerproto.Region
	ChangesOnly bool
}

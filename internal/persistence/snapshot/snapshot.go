package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest,omitempty"`
}

// SnapshotV1 holds everything needed to resume a world: the parameters that
// affect evaluation and every placed block with its persisted state. Wire
// strengths are not stored; they are recomputed on import.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed                int64    `json:"seed"`
	TickRate            int      `json:"tick_rate_hz"`
	MaxStrength         int      `json:"max_strength"`
	WireBudget          int      `json:"wire_budget"`
	MaxPasses           int      `json:"max_passes"`
	PulseTicks          int      `json:"pulse_ticks"`
	PhaseTicks          int      `json:"synchronizer_phase_ticks"`
	ToggleCooldownTicks int      `json:"toggle_cooldown_ticks"`
	OnlyBottomFace      bool     `json:"only_bottom_face,omitempty"`
	DisabledLogic       []string `json:"disabled_logic,omitempty"`
	SnapshotEveryTicks  int      `json:"snapshot_every_ticks,omitempty"`
	MotorSpeed          float64  `json:"motor_speed"`
	MotorTorque         float64  `json:"motor_torque"`

	Blocks    []BlockV1    `json:"blocks"`
	Cooldowns []CooldownV1 `json:"cooldowns,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type BlockV1 struct {
	Pos    [3]int `json:"pos"`
	Block  string `json:"block"`
	Facing string `json:"facing,omitempty"`
	Axis   string `json:"axis,omitempty"`

	// GATE
	Logic    string       `json:"logic,omitempty"`
	Inverted uint8        `json:"inverted,omitempty"`
	Gate     *GateStateV1 `json:"gate,omitempty"`

	// POWER strength, LEVER position.
	Strength int  `json:"strength,omitempty"`
	On       bool `json:"on,omitempty"`

	// AXLE presentation angle.
	Angle float64 `json:"angle,omitempty"`
}

// GateStateV1 is the kind memory of a gate plus its last published outputs.
type GateStateV1 struct {
	Outputs   [4]uint8 `json:"outputs"`
	Latch     bool     `json:"latch,omitempty"`
	PrevInput bool     `json:"prev_input,omitempty"`
	Remaining int      `json:"remaining,omitempty"`
	Phase     int      `json:"phase,omitempty"`
	Held      uint8    `json:"held,omitempty"`
	Pending   uint8    `json:"pending,omitempty"`
	Counter   uint64   `json:"counter,omitempty"`
}

type CooldownV1 struct {
	ActorID string `json:"actor_id"`
	Until   uint64 `json:"until_tick"`
}

type CountersV1 struct {
	NextActor uint64 `json:"next_actor"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is only for tools that peek; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

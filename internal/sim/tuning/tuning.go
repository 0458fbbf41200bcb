package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Seed               int64 `yaml:"seed" json:"seed"`
	MaxStrength        int   `yaml:"max_strength" json:"max_strength"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Propagation Propagation `yaml:"propagation" json:"propagation"`
	Gates       Gates       `yaml:"gates" json:"gates"`
	Mechanical  Mechanical  `yaml:"mechanical" json:"mechanical"`
	Edits       Edits       `yaml:"edits" json:"edits"`
}

type Propagation struct {
	// WireBudget caps wire nodes visited per tick; 0 means unlimited.
	WireBudget int `yaml:"wire_budget" json:"wire_budget"`
	MaxPasses  int `yaml:"max_passes" json:"max_passes"`
}

type Gates struct {
	PulseTicks             int      `yaml:"pulse_ticks" json:"pulse_ticks"`
	SynchronizerPhaseTicks int      `yaml:"synchronizer_phase_ticks" json:"synchronizer_phase_ticks"`
	OnlyBottomFace         bool     `yaml:"only_bottom_face" json:"only_bottom_face"`
	Disabled               []string `yaml:"disabled" json:"disabled,omitempty"`
}

type Mechanical struct {
	MotorSpeed  float64 `yaml:"motor_speed" json:"motor_speed"`
	MotorTorque float64 `yaml:"motor_torque" json:"motor_torque"`
}

type Edits struct {
	ToggleCooldownTicks int `yaml:"toggle_cooldown_ticks" json:"toggle_cooldown_ticks"`
	MaxPerMessage       int `yaml:"max_per_message" json:"max_per_message"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		MaxStrength:        15,
		SnapshotEveryTicks: 1200,
		Propagation: Propagation{
			WireBudget: 4096,
			MaxPasses:  8,
		},
		Gates: Gates{
			PulseTicks:             2,
			SynchronizerPhaseTicks: 1,
		},
		Mechanical: Mechanical{
			MotorSpeed:  2,
			MotorTorque: 10,
		},
		Edits: Edits{
			ToggleCooldownTicks: 4,
			MaxPerMessage:       64,
		},
	}
}

// Load reads path over Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		errs = append(errs, fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz))
	}
	if t.MaxStrength < 1 || t.MaxStrength > 255 {
		errs = append(errs, fmt.Errorf("max_strength out of range: %d", t.MaxStrength))
	}
	if t.Propagation.WireBudget < 0 {
		errs = append(errs, fmt.Errorf("propagation.wire_budget negative: %d", t.Propagation.WireBudget))
	}
	if t.Propagation.MaxPasses < 1 {
		errs = append(errs, fmt.Errorf("propagation.max_passes must be >= 1: %d", t.Propagation.MaxPasses))
	}
	if t.Gates.PulseTicks < 1 {
		errs = append(errs, fmt.Errorf("gates.pulse_ticks must be >= 1: %d", t.Gates.PulseTicks))
	}
	if t.Gates.SynchronizerPhaseTicks < 1 {
		errs = append(errs, fmt.Errorf("gates.synchronizer_phase_ticks must be >= 1: %d", t.Gates.SynchronizerPhaseTicks))
	}
	if t.Mechanical.MotorSpeed < 0 || t.Mechanical.MotorTorque < 0 {
		errs = append(errs, errors.New("mechanical motor speed/torque must be non-negative"))
	}
	if t.Edits.ToggleCooldownTicks < 0 {
		errs = append(errs, fmt.Errorf("edits.toggle_cooldown_ticks negative: %d", t.Edits.ToggleCooldownTicks))
	}
	return errors.Join(errs...)
}

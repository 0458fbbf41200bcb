package world

import (
	"circuitcraft.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	MaxStrength int
	// WireBudget caps wire nodes visited per tick; 0 means unlimited.
	WireBudget int
	MaxPasses  int

	PulseTicks             int
	SynchronizerPhaseTicks int
	OnlyBottomFace         bool
	DisabledLogic          []string

	ToggleCooldownTicks int
	MaxEditsPerMessage  int

	MotorSpeed  float64
	MotorTorque float64

	SnapshotEveryTicks int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "bench"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.MaxStrength <= 0 {
		c.MaxStrength = 15
	}
	if c.MaxStrength > 255 {
		c.MaxStrength = 255
	}
	if c.WireBudget < 0 {
		c.WireBudget = 0
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = 8
	}
	if c.PulseTicks <= 0 {
		c.PulseTicks = 2
	}
	if c.SynchronizerPhaseTicks <= 0 {
		c.SynchronizerPhaseTicks = 1
	}
	if c.ToggleCooldownTicks < 0 {
		c.ToggleCooldownTicks = 0
	}
	if c.MaxEditsPerMessage <= 0 {
		c.MaxEditsPerMessage = 64
	}
	if c.MotorSpeed <= 0 {
		c.MotorSpeed = 2
	}
	if c.MotorTorque <= 0 {
		c.MotorTorque = 10
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = 1200
	}
}

// ConfigFromTuning maps a loaded tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                     id,
		TickRateHz:             t.TickRateHz,
		Seed:                   t.Seed,
		MaxStrength:            t.MaxStrength,
		WireBudget:             t.Propagation.WireBudget,
		MaxPasses:              t.Propagation.MaxPasses,
		PulseTicks:             t.Gates.PulseTicks,
		SynchronizerPhaseTicks: t.Gates.SynchronizerPhaseTicks,
		OnlyBottomFace:         t.Gates.OnlyBottomFace,
		DisabledLogic:          append([]string(nil), t.Gates.Disabled...),
		ToggleCooldownTicks:    t.Edits.ToggleCooldownTicks,
		MaxEditsPerMessage:     t.Edits.MaxPerMessage,
		MotorSpeed:             t.Mechanical.MotorSpeed,
		MotorTorque:            t.Mechanical.MotorTorque,
		SnapshotEveryTicks:     t.SnapshotEveryTicks,
	}
}

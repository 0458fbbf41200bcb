package circuit

import (
	"errors"
	"fmt"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/circuit/logic"
)

// ConfigError reports a malformed node definition. It is returned at
// construction time and never produced while propagating.
type ConfigError struct {
	Code  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(code, field string, err error) *ConfigError {
	return &ConfigError{Code: code, Field: field, Err: err}
}

var (
	ErrKindDisabled = errors.New("logic kind disabled")
	ErrBadFacing    = errors.New("facing must be horizontal")
	ErrBadStrength  = errors.New("max strength must be at least 1")
)

// logicConfigErr maps logic validation errors onto protocol codes.
func logicConfigErr(field string, err error) *ConfigError {
	switch {
	case errors.Is(err, logic.ErrUnknownKind):
		return configErr(protocol.ErrConfigUnknownLogic, field, err)
	case errors.Is(err, logic.ErrMaskRange), errors.Is(err, logic.ErrMaskSide):
		return configErr(protocol.ErrConfigBadMask, field, err)
	default:
		return configErr(protocol.ErrConfigInvalid, field, err)
	}
}

// PropagationResult describes one call to WireNetwork.Propagate or one world
// propagation tick. BudgetExceeded is not an error: the remaining work is kept
// and resumed on the next tick.
type PropagationResult struct {
	Seeds          int
	Visited        int
	Rounds         int
	Updated        int
	Pending        int
	BudgetExceeded bool
}

func (r *PropagationResult) add(o PropagationResult) {
	r.Seeds += o.Seeds
	r.Visited += o.Visited
	r.Rounds += o.Rounds
	r.Updated += o.Updated
	r.Pending = o.Pending
	r.BudgetExceeded = r.BudgetExceeded || o.BudgetExceeded
}

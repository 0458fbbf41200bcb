package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Edit layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrOccupied      = "E_OCCUPIED"
	ErrNoSupport     = "E_NO_SUPPORT"
	ErrCooldown      = "E_COOLDOWN"
	ErrInternal      = "E_INTERNAL"

	// Node configuration.
	ErrConfigInvalid      = "E_CONFIG_INVALID"
	ErrConfigUnknownLogic = "E_CONFIG_UNKNOWN_LOGIC"
	ErrConfigBadMask      = "E_CONFIG_BAD_MASK"
	ErrConfigBadFacing    = "E_CONFIG_BAD_FACING"
	ErrConfigDisabled     = "E_CONFIG_DISABLED"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrWorldBusy:          {},
	ErrBadRequest:         {},
	ErrInvalidTarget:      {},
	ErrOccupied:           {},
	ErrNoSupport:          {},
	ErrCooldown:           {},
	ErrInternal:           {},
	ErrConfigInvalid:      {},
	ErrConfigUnknownLogic: {},
	ErrConfigBadMask:      {},
	ErrConfigBadFacing:    {},
	ErrConfigDisabled:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

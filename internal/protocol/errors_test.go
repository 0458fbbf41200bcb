package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrWorldBusy,
		ErrBadRequest,
		ErrInvalidTarget,
		ErrOccupied,
		ErrNoSupport,
		ErrCooldown,
		ErrInternal,
		ErrConfigInvalid,
		ErrConfigUnknownLogic,
		ErrConfigBadMask,
		ErrConfigBadFacing,
		ErrConfigDisabled,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"EDIT","protocol_version":"1.0","edits":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeEdit || m.ProtocolVersion != Version {
		t.Fatalf("unexpected base: %+v", m)
	}
	if _, err := DecodeBase([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}

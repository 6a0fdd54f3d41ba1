package model

import "testing"

func TestTerminal(t *testing.T) {
	// only settled records may be superseded on their slot
	cases := map[OpStatus]bool{
		OpStatusLocal:       false,
		OpStatusPending:     false,
		OpStatusDone:        true,
		OpStatusToBeReplace: false,
	}
	for status, want := range cases {
		op := &UserOperation{Status: status}
		if op.Terminal() != want {
			t.Errorf("Terminal() for %s = %v, want %v", status, op.Terminal(), want)
		}
	}
}

func TestNonceValueBig(t *testing.T) {
	op := &UserOperation{NonceValue: "123456789012345678901234567890"}
	if v := op.NonceValueBig(); v == nil || v.String() != op.NonceValue {
		t.Errorf("parsed %v", v)
	}

	if v := (&UserOperation{NonceValue: "abc"}).NonceValueBig(); v != nil {
		t.Errorf("garbage nonce value parsed to %s", v)
	}
}

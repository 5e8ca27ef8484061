package model

import (
	"testing"

	"geofleet/api/internal/apierr"
)

func bindings(pairs ...[2]string) []RuleBinding {
	out := make([]RuleBinding, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, RuleBinding{GeofenceID: p[0], SeqNo: i, ActionTypeID: p[1]})
	}
	return out
}

func TestValidateTripBindings(t *testing.T) {
	const geoA = "5f0c7a0e-0000-0000-0000-00000000000a"
	const geoB = "5f0c7a0e-0000-0000-0000-00000000000b"

	tests := []struct {
		name     string
		bindings []RuleBinding
		wantErr  bool
	}{
		{"entry exit on same geofence", bindings([2]string{geoA, ActionTypeEntry}, [2]string{geoA, ActionTypeExit}), false},
		{"exit entry on same geofence", bindings([2]string{geoA, ActionTypeExit}, [2]string{geoA, ActionTypeEntry}), false},
		{"entry entry on different geofences", bindings([2]string{geoA, ActionTypeEntry}, [2]string{geoB, ActionTypeEntry}), false},
		{"exit exit always rejected", bindings([2]string{geoA, ActionTypeExit}, [2]string{geoB, ActionTypeExit}), true},
		{"exit exit same geofence rejected", bindings([2]string{geoA, ActionTypeExit}, [2]string{geoA, ActionTypeExit}), true},
		{"entry entry same geofence rejected", bindings([2]string{geoA, ActionTypeEntry}, [2]string{geoA, ActionTypeEntry}), true},
		{"entry exit on different geofences rejected", bindings([2]string{geoA, ActionTypeEntry}, [2]string{geoB, ActionTypeExit}), true},
		{"exit entry on different geofences rejected", bindings([2]string{geoA, ActionTypeExit}, [2]string{geoB, ActionTypeEntry}), true},
		{"entry_exit first rejected", bindings([2]string{geoA, ActionTypeEntryExit}, [2]string{geoB, ActionTypeEntry}), true},
		{"entry_exit second rejected", bindings([2]string{geoA, ActionTypeEntry}, [2]string{geoB, ActionTypeEntryExit}), true},
		{"single entry_exit binding rejected", bindings([2]string{geoA, ActionTypeEntryExit}), true},
		{"single entry binding passes", bindings([2]string{geoA, ActionTypeEntry}), false},
		{"no bindings passes", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTripBindings(RuleTypeTrip, tt.bindings)
			if tt.wantErr && !apierr.IsCode(err, apierr.CodeInvalidRuleType) {
				t.Fatalf("ValidateTripBindings() = %v, want INVALID_RULE_TYPE", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ValidateTripBindings() = %v, want nil", err)
			}
		})
	}
}

func TestValidateTripBindingsIgnoresNonTripRules(t *testing.T) {
	const geoA = "5f0c7a0e-0000-0000-0000-00000000000a"
	b := bindings([2]string{geoA, ActionTypeEntryExit})
	if err := ValidateTripBindings(RuleTypeEntryExit, b); err != nil {
		t.Fatalf("ValidateTripBindings(ENTRY_EXIT) = %v, want nil", err)
	}
}

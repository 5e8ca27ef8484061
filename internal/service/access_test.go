package service

import "testing"

func TestCheckUserPerms(t *testing.T) {
	tests := []struct {
		name     string
		perms    []string
		required []string
		mode     string
		want     bool
	}{
		{"nil perms", nil, []string{PermGeofenceAdmin}, PermModeAll, false},
		{"admin wildcard", []string{PermAdminWildcard}, []string{PermGeofenceAdmin, PermRuleAdmin}, PermModeAll, true},
		{"wildcard with empty required", []string{PermAdminWildcard}, nil, PermModeAny, true},
		{"empty required", []string{PermGeofenceAdmin}, nil, PermModeAny, false},
		{"all mode satisfied", []string{PermGeofenceAdmin, PermRuleAdmin}, []string{PermGeofenceAdmin, PermRuleAdmin}, PermModeAll, true},
		{"all mode missing one", []string{PermGeofenceAdmin}, []string{PermGeofenceAdmin, PermRuleAdmin}, PermModeAll, false},
		{"any mode satisfied", []string{PermGeofenceView}, []string{PermGeofenceAdmin, PermGeofenceView}, PermModeAny, true},
		{"any mode unsatisfied", []string{PermReportsView}, []string{PermGeofenceAdmin, PermGeofenceView}, PermModeAny, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckUserPerms(tt.perms, tt.required, tt.mode); got != tt.want {
				t.Errorf("CheckUserPerms(%v, %v, %s) = %v, want %v", tt.perms, tt.required, tt.mode, got, tt.want)
			}
		})
	}
}

func TestDedupePreservesOrder(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("dedupe = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupe[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

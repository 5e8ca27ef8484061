package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeGeofenceExists, http.StatusBadRequest},
		{CodeInvalidTimeRange, http.StatusBadRequest},
		{CodeInvalidUserAccess, http.StatusForbidden},
		{CodePermissionsDenied, http.StatusForbidden},
		{CodeUserNotFoundInRule, http.StatusForbidden},
		{CodeTokenRequired, http.StatusUnauthorized},
		{CodeInternal, http.StatusInternalServerError},
		{CodePartialRollback, http.StatusInternalServerError},
		{CodeTxRollbackFailed, http.StatusInternalServerError},
		{"SOME_UNKNOWN_CODE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := New(tt.code).Status(); got != tt.status {
			t.Errorf("Status(%s) = %d, want %d", tt.code, got, tt.status)
		}
	}
}

func TestFromPassesThroughWrappedCodes(t *testing.T) {
	base := Wrap(CodeRuleNotFound, errors.New("no rows"))
	wrapped := fmt.Errorf("loading rule: %w", base)

	got := From(wrapped)
	if got.Code != CodeRuleNotFound {
		t.Fatalf("From() code = %s, want %s", got.Code, CodeRuleNotFound)
	}
}

func TestFromNormalizesUnknownErrors(t *testing.T) {
	got := From(errors.New("connection refused"))
	if got.Code != CodeInternal {
		t.Fatalf("From() code = %s, want %s", got.Code, CodeInternal)
	}
	if got.Message() != "Something went wrong" {
		t.Fatalf("From() message = %q", got.Message())
	}
}

func TestIsCodeMatchesAcrossWrapLayers(t *testing.T) {
	err := fmt.Errorf("delete: %w", New(CodeGeofenceActive))
	if !IsCode(err, CodeGeofenceActive) {
		t.Fatal("IsCode should match wrapped API error")
	}
	if IsCode(err, CodeGeofenceInUse) {
		t.Fatal("IsCode should not match a different code")
	}
	if IsCode(errors.New("plain"), CodeGeofenceActive) {
		t.Fatal("IsCode should not match plain errors")
	}
}

func TestMessageForUnknownCodeFallsBack(t *testing.T) {
	if got := New(CodePartialRollback).Message(); got != "Something went wrong" {
		t.Fatalf("Message() = %q, internal sub-kinds must not leak", got)
	}
}

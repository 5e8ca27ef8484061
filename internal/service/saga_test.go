package service

import (
	"context"
	"errors"
	"testing"

	"geofleet/api/internal/apierr"
)

func TestRunSagaCompensatesInReverse(t *testing.T) {
	var order []string
	failure := errors.New("step failed")

	steps := []sagaStep{
		{
			name:       "first",
			run:        func(ctx context.Context) error { order = append(order, "run first"); return nil },
			compensate: func(ctx context.Context) error { order = append(order, "undo first"); return nil },
		},
		{
			name:       "second",
			run:        func(ctx context.Context) error { order = append(order, "run second"); return nil },
			compensate: func(ctx context.Context) error { order = append(order, "undo second"); return nil },
		},
		{
			name: "third",
			run:  func(ctx context.Context) error { return failure },
		},
	}

	err := runSaga(context.Background(), steps)
	if !errors.Is(err, failure) {
		t.Fatalf("expected the step error back, got %v", err)
	}
	want := []string{"run first", "run second", "undo second", "undo first"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestRunSagaSuccessSkipsCompensation(t *testing.T) {
	compensated := false
	steps := []sagaStep{
		{
			name:       "only",
			run:        func(ctx context.Context) error { return nil },
			compensate: func(ctx context.Context) error { compensated = true; return nil },
		},
	}
	if err := runSaga(context.Background(), steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compensated {
		t.Error("compensation must not run on success")
	}
}

func TestRunSagaPartialRollback(t *testing.T) {
	steps := []sagaStep{
		{
			name:       "first",
			run:        func(ctx context.Context) error { return nil },
			compensate: func(ctx context.Context) error { return errors.New("undo failed") },
		},
		{
			name: "second",
			run:  func(ctx context.Context) error { return errors.New("step failed") },
		},
	}
	err := runSaga(context.Background(), steps)
	if !apierr.IsCode(err, apierr.CodePartialRollback) {
		t.Fatalf("expected PARTIAL_ROLLBACK, got %v", err)
	}
}

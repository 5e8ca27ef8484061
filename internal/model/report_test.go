package model

import (
	"reflect"
	"testing"
)

func TestTimeBucketRange(t *testing.T) {
	const span = int64(30 * 86400000)

	tests := []struct {
		name       string
		start, end int64
		want       []int64
	}{
		{"single bucket at epoch", 100, 50000, []int64{0}},
		{"spans two buckets", span - 1, span + 1, []int64{0, 1}},
		{"spans three buckets", span, 3*span + 5, []int64{1, 2, 3}},
		{"exact bucket boundary", span, span, []int64{1}},
		{"inverted range is empty", 100, 50, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimeBucketRange(tt.start, tt.end)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("TimeBucketRange(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestFormatIST(t *testing.T) {
	// 2023-11-14 22:13:20 UTC is 2023-11-15 03:43:20 IST.
	got := FormatIST(1700000000000)
	want := "15 Nov 2023 | 03:43:20"
	if got != want {
		t.Fatalf("FormatIST() = %q, want %q", got, want)
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
)

// bucketStore records the bucket tables queried and reports the ones in
// missing as not yet materialized.
type bucketStore struct {
	mu      sync.Mutex
	queries []string
	missing []string
}

func (b *bucketStore) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	b.mu.Lock()
	b.queries = append(b.queries, query)
	b.mu.Unlock()
	for _, table := range b.missing {
		if strings.Contains(query, table) {
			return &clickhouse.Exception{Code: 60, Message: fmt.Sprintf("Table %s doesn't exist", table)}
		}
	}
	return nil
}

func (b *bucketStore) sawTable(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queries {
		if strings.Contains(q, name) {
			return true
		}
	}
	return false
}

func TestValidateWindow(t *testing.T) {
	now := time.Now().UnixMilli()

	tests := []struct {
		name     string
		start    int64
		end      int64
		wantCode string
	}{
		{"inverted", now - 1000, now - 2000, apierr.CodeInvalidTimeRange},
		{"equal", now - 1000, now - 1000, apierr.CodeInvalidTimeRange},
		{"future end", now - 1000, now + 60_000, apierr.CodeInvalidTimeRange},
		{"negative start", -1, now - 1000, apierr.CodeInvalidTimeRange},
		{"valid", now - 3600_000, now - 1000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buckets, err := validateWindow(tt.start, tt.end)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(buckets) == 0 {
					t.Fatal("expected at least one bucket")
				}
				return
			}
			if !apierr.IsCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestValidateWindowSpansBuckets(t *testing.T) {
	// A 31-day window that straddles a bucket boundary covers two
	// tables.
	end := time.Now().UnixMilli() - 1000
	start := end - 31*86400000
	buckets, err := validateWindow(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d (%v)", len(buckets), buckets)
	}
	if buckets[1] != buckets[0]+1 {
		t.Errorf("buckets must be consecutive, got %v", buckets)
	}
}

func TestAlertReportQueriesEveryBucket(t *testing.T) {
	end := time.Now().UnixMilli() - 1000
	start := end - 31*86400000
	buckets, err := validateWindow(start, end)
	if err != nil {
		t.Fatalf("validateWindow: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected a 2-bucket window, got %v", buckets)
	}

	// The older bucket table was never written; it must be skipped,
	// not fail the report.
	store := &bucketStore{missing: []string{fmt.Sprintf("geoalertdata_%d", buckets[0])}}
	s := &ReportService{ch: store, chDatabase: "lmmdata"}

	rows, err := s.AlertReportByVehicles(context.Background(), "acct-1", []string{"VIN1"}, start, end)
	if err != nil {
		t.Fatalf("AlertReportByVehicles: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
	for _, bucket := range buckets {
		table := fmt.Sprintf("geoalertdata_%d", bucket)
		if !store.sawTable(table) {
			t.Errorf("bucket table %s was never queried", table)
		}
	}
}

func TestCollectDeduplicates(t *testing.T) {
	facts := []model.GeoAlertFact{
		{RuleID: "r1"}, {RuleID: "r2"}, {RuleID: "r1"},
	}
	got := collect(facts, func(f model.GeoAlertFact) string { return f.RuleID })
	if len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Errorf("collect = %v, want [r1 r2]", got)
	}
}

func TestAlertReportXLSXLayout(t *testing.T) {
	s := &ReportService{}
	f, err := s.AlertReportXLSX([]model.GeoAlertRow{
		{VinNo: "VIN1", RegNo: "KA01AB1234", RuleName: "Depot Rule"},
	})
	if err != nil {
		t.Fatalf("AlertReportXLSX failed: %v", err)
	}
	defer f.Close()

	header, err := f.GetCellValue("Geofence Alerts", "A1")
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header != "VIN" {
		t.Errorf("A1 = %q, want VIN", header)
	}
	vin, _ := f.GetCellValue("Geofence Alerts", "A2")
	if vin != "VIN1" {
		t.Errorf("A2 = %q, want VIN1", vin)
	}
	rule, _ := f.GetCellValue("Geofence Alerts", "I2")
	if rule != "Depot Rule" {
		t.Errorf("I2 = %q, want Depot Rule", rule)
	}
}

package clickhouse

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"geofleet/api/internal/config"
)

func TestNewClientRequiresEndpoints(t *testing.T) {
	if _, err := NewClient(config.ClickHouseConfig{Database: "lmmdata"}); err == nil {
		t.Fatal("expected error with no endpoints configured")
	}
}

func TestAdvanceIgnoresStaleFailures(t *testing.T) {
	c := &Client{conns: make([]driver.Conn, 3)}

	c.advance(0)
	if got := c.currentIdx(); got != 1 {
		t.Fatalf("currentIdx() = %d, want 1", got)
	}
	// Failures observed on an endpoint the cursor already left must
	// not move it again.
	c.advance(0)
	if got := c.currentIdx(); got != 1 {
		t.Fatalf("currentIdx() = %d after stale advance, want 1", got)
	}
	c.advance(2)
	if got := c.currentIdx(); got != 1 {
		t.Fatalf("currentIdx() = %d after off-cursor advance, want 1", got)
	}
}

func TestAdvanceConcurrent(t *testing.T) {
	c := &Client{conns: make([]driver.Conn, 4)}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.advance(0)
		}()
	}
	wg.Wait()

	// One failed endpoint advances the cursor exactly once, no matter
	// how many goroutines saw the failure.
	if got := c.currentIdx(); got != 1 {
		t.Fatalf("currentIdx() = %d, want 1", got)
	}
}

func TestIsUnknownTable(t *testing.T) {
	unknown := &clickhouse.Exception{Code: 60, Message: "Table lmmdata.geoalertdata_673 doesn't exist"}
	if !IsUnknownTable(unknown) {
		t.Error("code 60 should be reported as unknown table")
	}
	if !IsUnknownTable(fmt.Errorf("query failed: %w", unknown)) {
		t.Error("wrapped code 60 should be reported as unknown table")
	}
	if IsUnknownTable(&clickhouse.Exception{Code: 241, Message: "Memory limit exceeded"}) {
		t.Error("other server errors are not unknown-table errors")
	}
	if IsUnknownTable(fmt.Errorf("dial tcp: connection refused")) {
		t.Error("transport errors are not unknown-table errors")
	}
}

package clickhouse

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"geofleet/api/internal/config"
)

// errUnknownTable is the ClickHouse server code for a missing table.
const errUnknownTable = 60

// Client wraps a set of ClickHouse endpoints with sequential failover.
// One attempt per endpoint, starting from the last known-good one. The
// client is shared across request goroutines; the cursor is guarded.
type Client struct {
	cfg   config.ClickHouseConfig
	conns []driver.Conn

	mu      sync.Mutex
	current int
}

// NewClient opens a connection per configured endpoint. Connections are
// lazy on the protocol level, so a down endpoint only surfaces on query.
func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("no clickhouse endpoints configured")
	}
	conns := make([]driver.Conn, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr: []string{url},
			Auth: clickhouse.Auth{
				Database: cfg.Database,
				Username: cfg.Username,
				Password: cfg.Password,
			},
			Compression: &clickhouse.Compression{
				Method: clickhouse.CompressionLZ4,
			},
		})
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return &Client{cfg: cfg, conns: conns}, nil
}

// currentIdx returns the index of the last known-good endpoint.
func (c *Client) currentIdx() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// advance moves the cursor past a failed endpoint. Concurrent callers
// that saw the same endpoint fail advance it only once.
func (c *Client) advance(from int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == from {
		c.current = (from + 1) % len(c.conns)
	}
}

// Select runs a query against the current endpoint, advancing to the
// next one on failure. Each endpoint gets one attempt per call.
func (c *Client) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var lastErr error
	idx := c.currentIdx()
	for attempt := 0; attempt < len(c.conns); attempt++ {
		err := c.conns[idx].Select(ctx, dest, query, args...)
		if err == nil {
			return nil
		}
		// Server-side errors mean the endpoint is reachable, no
		// point retrying them elsewhere.
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			return err
		}
		lastErr = err
		log.Printf("[ClickHouse] Connection failed to %s, trying next...", c.cfg.URLs[idx])
		c.advance(idx)
		idx = (idx + 1) % len(c.conns)
	}
	return lastErr
}

// Ping verifies connectivity, failing over like Select.
func (c *Client) Ping(ctx context.Context) error {
	var lastErr error
	idx := c.currentIdx()
	for attempt := 0; attempt < len(c.conns); attempt++ {
		if err := c.conns[idx].Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			c.advance(idx)
			idx = (idx + 1) % len(c.conns)
		}
	}
	return lastErr
}

// Close closes every endpoint connection.
func (c *Client) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsUnknownTable reports whether err is the server complaining about a
// table that does not exist. Time-bucketed tables are created on first
// write, so a missing bucket just means no data for that window.
func IsUnknownTable(err error) bool {
	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		return exception.Code == errUnknownTable
	}
	return false
}

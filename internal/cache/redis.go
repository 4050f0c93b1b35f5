package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PaymentStatusKeyFmt is gateway, invoice id.
const PaymentStatusKeyFmt = "payment:status:%s:%d"

// Client wraps Redis for the status poll cache. A nil *Client, or one whose
// server was unreachable at startup, degrades to "always miss".
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Init connects and pings. On failure the returned client is still usable
// (it never hits) and the error says why.
func Init(addr, password string, db int, ttl time.Duration) (*Client, error) {
	if addr == "" {
		return &Client{}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		// Close the failed client for graceful degradation
		rdb.Close()
		return &Client{}, err
	}
	return &Client{rdb: rdb, ttl: ttl}, nil
}

func PaymentStatusKey(gateway string, invoiceID int64) string {
	return fmt.Sprintf(PaymentStatusKeyFmt, gateway, invoiceID)
}

// GetCached returns cached bytes if present.
func (c *Client) GetCached(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCached stores bytes with the configured TTL.
func (c *Client) SetCached(ctx context.Context, key string, data []byte) {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return
	}
	c.rdb.Set(ctx, key, data, c.ttl)
}

// Invalidate drops keys; used on every invoice or payment transition.
func (c *Client) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	c.rdb.Del(ctx, keys...)
}

// IsHealthy returns true if Redis is connected and responding
func (c *Client) IsHealthy(ctx context.Context) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	return c.rdb.Ping(ctx).Err() == nil
}

// Enabled reports whether a server is attached.
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

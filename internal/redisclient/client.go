package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is a thin cache over Redis. It is a read-side projection only:
// postgres stays the source of truth and a cold cache is always safe.
type Client struct {
	rdb *redis.Client
}

const summaryKey = "report:summary"

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetStockLevel caches the current stock level for a product
func (c *Client) SetStockLevel(ctx context.Context, productID int64, stock int) error {
	return c.rdb.HSet(ctx, "stock:levels", strconv.FormatInt(productID, 10), stock).Err()
}

// GetStockLevel reads a cached stock level. The second return reports
// whether the product was present in the cache.
func (c *Client) GetStockLevel(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.rdb.HGet(ctx, "stock:levels", strconv.FormatInt(productID, 10)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock cache for product %d: %w", productID, err)
	}
	return stock, true, nil
}

// DeleteStockLevel evicts one product from the stock cache
func (c *Client) DeleteStockLevel(ctx context.Context, productID int64) error {
	return c.rdb.HDel(ctx, "stock:levels", strconv.FormatInt(productID, 10)).Err()
}

// SetSummary caches the dashboard summary as JSON with a TTL
func (c *Client) SetSummary(ctx context.Context, summary interface{}, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return c.rdb.Set(ctx, summaryKey, data, ttl).Err()
}

// GetSummary reads the cached dashboard summary into dest. Returns
// false when the cache is cold.
func (c *Client) GetSummary(ctx context.Context, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, summaryKey).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("corrupt summary cache: %w", err)
	}
	return true, nil
}

// InvalidateSummary drops the cached dashboard summary
func (c *Client) InvalidateSummary(ctx context.Context) error {
	return c.rdb.Del(ctx, summaryKey).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

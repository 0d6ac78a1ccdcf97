package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// emptySetMarker is stored for roles without permissions, since a Redis set
// cannot be empty
const emptySetMarker = "-"

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func rolePermissionsKey(roleID int64) string {
	return fmt.Sprintf("rbac:role:%d:permissions", roleID)
}

// GetRolePermissions returns the cached permission descriptions of a role.
// The boolean is false on a cache miss.
func (c *Client) GetRolePermissions(ctx context.Context, roleID int64) ([]string, bool, error) {
	key := rolePermissionsKey(roleID)

	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read role permissions: %w", err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	perms := make([]string, 0, len(members))
	for _, m := range members {
		if m != emptySetMarker {
			perms = append(perms, m)
		}
	}
	return perms, true, nil
}

// SetRolePermissions replaces the cached permission set of a role
func (c *Client) SetRolePermissions(ctx context.Context, roleID int64, permissions []string, ttl time.Duration) error {
	key := rolePermissionsKey(roleID)

	members := make([]interface{}, 0, len(permissions)+1)
	members = append(members, emptySetMarker)
	for _, p := range permissions {
		members = append(members, p)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateRole drops the cached permission set of a role
func (c *Client) InvalidateRole(ctx context.Context, roleID int64) error {
	return c.rdb.Del(ctx, rolePermissionsKey(roleID)).Err()
}

func idempotencyKey(sellerID int64, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", sellerID, key)
}

// SetIdempotencyKey stores the sale a seller created for an idempotency key
func (c *Client) SetIdempotencyKey(ctx context.Context, sellerID int64, key string, saleID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(sellerID, key), saleID, ttl).Err()
}

// GetIdempotencyKey returns the sale id stored for the seller's key, or 0 when unknown
func (c *Client) GetIdempotencyKey(ctx context.Context, sellerID int64, key string) (int64, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(sellerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// releaseLockScript deletes the lock only while it still holds the caller's token
var releaseLockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock; it is empty when the lock is held by someone else.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a lock acquired with token. A lock that expired and
// was taken by another holder is left alone.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return releaseLockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

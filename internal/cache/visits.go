// Package cache holds the Redis-backed helpers. Redis is optional: every
// helper here degrades to "no cache" when the client is nil.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultVisitWindow is how long the same IP is counted once per profile.
const DefaultVisitWindow = 30 * time.Minute

// NewRedisClient connects to addr and pings it. It returns nil when the
// server is unreachable so callers can run without Redis.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

// VisitDeduper remembers which IPs opened which profile recently, so a
// visitor refreshing the page isn't logged as ten visits.
type VisitDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewVisitDeduper(client *redis.Client, window time.Duration) *VisitDeduper {
	if window <= 0 {
		window = DefaultVisitWindow
	}
	return &VisitDeduper{client: client, window: window}
}

// FirstSeen reports whether ip has not opened profileID within the window,
// and marks it as seen. Without Redis (or without an IP) every visit is new.
func (d *VisitDeduper) FirstSeen(ctx context.Context, profileID int64, ip string) (bool, error) {
	if d == nil || d.client == nil || ip == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, visitKey(profileID, ip), 1, d.window).Result()
	if err != nil {
		return true, fmt.Errorf("cache: marking visit: %w", err)
	}
	return ok, nil
}

func visitKey(profileID int64, ip string) string {
	return fmt.Sprintf("visit:%d:%s", profileID, ip)
}

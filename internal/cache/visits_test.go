package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewRedisClient_EmptyAddr(t *testing.T) {
	assert.Nil(t, NewRedisClient("", "", 0))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	assert.Nil(t, NewRedisClient("127.0.0.1:1", "", 0))
}

func TestVisitDeduper_WithoutRedisEveryVisitCounts(t *testing.T) {
	d := NewVisitDeduper(nil, 0)
	assert.Equal(t, DefaultVisitWindow, d.window)

	for i := 0; i < 3; i++ {
		first, err := d.FirstSeen(context.Background(), 1, "10.0.0.1")
		assert.NoError(t, err)
		assert.True(t, first)
	}

	var nilDeduper *VisitDeduper
	first, err := nilDeduper.FirstSeen(context.Background(), 1, "10.0.0.1")
	assert.NoError(t, err)
	assert.True(t, first)
}

// A Redis error must still let the visit through.
func TestVisitDeduper_RedisErrorCountsVisit(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	d := NewVisitDeduper(client, time.Minute)
	first, err := d.FirstSeen(context.Background(), 1, "10.0.0.1")
	assert.Error(t, err)
	assert.True(t, first)
}

func TestVisitKey(t *testing.T) {
	assert.Equal(t, "visit:42:10.0.0.1", visitKey(42, "10.0.0.1"))
}

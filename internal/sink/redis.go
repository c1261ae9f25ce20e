package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paystream/tx-engine/internal/model"
)

// RedisSink publishes the snapshot as one hash per client, all writes
// batched into a single pipeline round trip.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSink returns a sink writing through rdb. A zero ttl keeps keys
// until a later run overwrites them.
func NewRedisSink(rdb *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{rdb: rdb, ttl: ttl}
}

func (s *RedisSink) WriteSnapshot(ctx context.Context, views []model.AccountView) error {
	pipe := s.rdb.Pipeline()
	for _, v := range views {
		key := accountKey(v.Client)
		pipe.HSet(ctx, key, map[string]interface{}{
			"available": v.Available.String(),
			"held":      v.Held.String(),
			"total":     v.Total.String(),
			"locked":    strconv.FormatBool(v.Locked),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sink: redis pipeline: %w", err)
	}
	return nil
}

func accountKey(client uint16) string { return fmt.Sprintf("account:%d", client) }

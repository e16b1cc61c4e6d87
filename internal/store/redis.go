package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chapattend/internal/attendance"
)

// Redis wraps the redis client and the per-session tally cache.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func tallyKey(sessionID string) string {
	return "chapattend:tally:" + sessionID
}

// BumpTally increments a session's cached tally for one check-in.
func (r *Redis) BumpTally(ctx context.Context, sessionID string, status attendance.Status) error {
	key := tallyKey(sessionID)
	pipe := r.Client.TxPipeline()
	pipe.HIncrBy(ctx, key, "total", 1)
	if status == attendance.StatusOnTime {
		pipe.HIncrBy(ctx, key, "on_time", 1)
	} else {
		pipe.HIncrBy(ctx, key, "late", 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ReadTally returns a session's cached tally. ok is false when the cache
// has no entry, in which case the caller derives the tally from records.
func (r *Redis) ReadTally(ctx context.Context, sessionID string) (attendance.Summary, bool, error) {
	vals, err := r.Client.HGetAll(ctx, tallyKey(sessionID)).Result()
	if err != nil {
		return attendance.Summary{}, false, err
	}
	if len(vals) == 0 {
		return attendance.Summary{}, false, nil
	}
	var sum attendance.Summary
	sum.Total, _ = strconv.Atoi(vals["total"])
	sum.OnTime, _ = strconv.Atoi(vals["on_time"])
	sum.Late, _ = strconv.Atoi(vals["late"])
	return sum, true, nil
}

// DropTally removes a cached tally so the next read re-derives from records.
func (r *Redis) DropTally(ctx context.Context, sessionID string) error {
	return r.Client.Del(ctx, tallyKey(sessionID)).Err()
}

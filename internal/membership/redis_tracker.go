package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/elmchat/elm-chat/internal/config"
	"github.com/elmchat/elm-chat/pkg/log"
)

// addScript inserts the member if absent and refreshes the key TTL.
var addScript = redis.NewScript(`
local added = redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return {added, redis.call('HLEN', KEYS[1])}
`)

// removeScript deletes the member only when ARGV[2] owns it.
var removeScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then
	return {0, redis.call('HLEN', KEYS[1])}
end
local m = cjson.decode(v)
if m.connectionId ~= ARGV[2] then
	return {0, redis.call('HLEN', KEYS[1])}
end
redis.call('HDEL', KEYS[1], ARGV[1])
return {1, redis.call('HLEN', KEYS[1])}
`)

// RedisTracker keeps the membership of one process in a Redis hash so it can
// be inspected from outside. The hash is scoped by instance ID.
type RedisTracker struct {
	client *redis.Client
	key    string
	keyTTL time.Duration
}

func NewRedisTracker(ctx context.Context, cfg config.RedisConfig, instanceID string) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	t := &RedisTracker{
		client: client,
		key:    fmt.Sprintf("%s:members:%s", cfg.Prefix, instanceID),
		keyTTL: cfg.KeyTTL,
	}

	// Membership does not survive a restart.
	if err := client.Del(ctx, t.key).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reset membership: %w", err)
	}

	l := log.L()
	l.Info().Str("key", t.key).Msg("redis membership tracker ready")
	return t, nil
}

func (t *RedisTracker) Add(ctx context.Context, m Member) (bool, int, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return false, 0, fmt.Errorf("failed to encode member: %w", err)
	}

	res, err := addScript.Run(ctx, t.client, []string{t.key}, m.UserID, data, t.keyTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to add member: %w", err)
	}
	return res[0] == 1, int(res[1]), nil
}

func (t *RedisTracker) Remove(ctx context.Context, userID, connectionID string) (bool, int, error) {
	res, err := removeScript.Run(ctx, t.client, []string{t.key}, userID, connectionID).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to remove member: %w", err)
	}
	return res[0] == 1, int(res[1]), nil
}

func (t *RedisTracker) Count(ctx context.Context) (int, error) {
	n, err := t.client.HLen(ctx, t.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return int(n), nil
}

func (t *RedisTracker) Members(ctx context.Context) ([]Member, error) {
	values, err := t.client.HVals(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	out := make([]Member, 0, len(values))
	for _, v := range values {
		var m Member
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("failed to decode member: %w", err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Close removes this instance's hash and closes the client.
func (t *RedisTracker) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := t.client.Del(ctx, t.key).Err(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("key", t.key).Msg("failed to remove membership key")
	}
	return t.client.Close()
}

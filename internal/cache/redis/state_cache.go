package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// StateCache implements domain.StateCache using Redis hashes. Each
// character's reconciled state is stored at key "char:{id}" with fields
// "supply", "value", "price", "seq", and "ts" (Unix nanosecond timestamp).
type StateCache struct {
	rdb *redis.Client
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying()}
}

func stateKey(id uint64) string {
	return "char:" + strconv.FormatUint(id, 10)
}

// SetState mirrors one character's reconciled state into the cache.
func (sc *StateCache) SetState(ctx context.Context, st domain.CharacterState) error {
	fields := map[string]interface{}{
		"supply": strconv.FormatUint(st.Supply, 10),
		"value":  strconv.FormatFloat(st.Value, 'f', -1, 64),
		"price":  strconv.FormatFloat(st.Price, 'f', -1, 64),
		"seq":    strconv.FormatUint(st.Seq, 10),
		"ts":     strconv.FormatInt(st.AsOf.UnixNano(), 10),
	}
	if err := sc.rdb.HSet(ctx, stateKey(st.ID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set state %d: %w", st.ID, err)
	}
	return nil
}

// GetState retrieves one character's mirrored state. It returns
// domain.ErrNotFound when the key does not exist.
func (sc *StateCache) GetState(ctx context.Context, id uint64) (domain.CharacterState, error) {
	vals, err := sc.rdb.HGetAll(ctx, stateKey(id)).Result()
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("redis: get state %d: %w", id, err)
	}
	if len(vals) == 0 {
		return domain.CharacterState{}, domain.ErrNotFound
	}
	st, err := parseStateHash(id, vals)
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("redis: get state %d: %w", id, err)
	}
	return st, nil
}

// GetStates retrieves mirrored state for multiple characters using a
// pipeline. Characters whose keys do not exist are silently omitted from the
// result map.
func (sc *StateCache) GetStates(ctx context.Context, ids []uint64) (map[uint64]domain.CharacterState, error) {
	if len(ids) == 0 {
		return map[uint64]domain.CharacterState{}, nil
	}

	pipe := sc.rdb.Pipeline()
	cmds := make(map[uint64]*redis.MapStringStringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.HGetAll(ctx, stateKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get states pipeline: %w", err)
	}

	result := make(map[uint64]domain.CharacterState, len(ids))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		st, err := parseStateHash(id, vals)
		if err != nil {
			continue
		}
		result[id] = st
	}
	return result, nil
}

// parseStateHash decodes one state hash into a CharacterState.
func parseStateHash(id uint64, vals map[string]string) (domain.CharacterState, error) {
	supply, err := strconv.ParseUint(vals["supply"], 10, 64)
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("parse supply: %w", err)
	}
	value, err := strconv.ParseFloat(vals["value"], 64)
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("parse value: %w", err)
	}
	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("parse price: %w", err)
	}
	seq, err := strconv.ParseUint(vals["seq"], 10, 64)
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("parse seq: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.CharacterState{}, fmt.Errorf("parse ts: %w", err)
	}

	return domain.CharacterState{
		ID:     id,
		Supply: supply,
		Value:  value,
		Price:  price,
		Seq:    seq,
		AsOf:   time.Unix(0, tsNano),
	}, nil
}

// RateCache implements domain.RateCache using a single Redis hash at key
// "rate:usd".
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

const rateKey = "rate:usd"

// SetRate stores the latest native-to-USD rate.
func (rc *RateCache) SetRate(ctx context.Context, rate float64, ts time.Time) error {
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate, 'f', -1, 64),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, rateKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate: %w", err)
	}
	return nil
}

// GetRate retrieves the latest native-to-USD rate. It returns
// domain.ErrNotFound when no rate has been stored.
func (rc *RateCache) GetRate(ctx context.Context) (float64, time.Time, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get rate: %w", err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rate, err := strconv.ParseFloat(vals["rate"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate ts: %w", err)
	}

	return rate, time.Unix(0, tsNano), nil
}

// Compile-time interface checks.
var (
	_ domain.StateCache = (*StateCache)(nil)
	_ domain.RateCache  = (*RateCache)(nil)
)

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

const (
	DefaultMaxItems  = 30
	defaultNamespace = "solvewise:history"
)

// RedisHistoryRepository keeps each owner's history items in a hash and
// their recency in a sorted set scored by a monotonic sequence, all under
// <namespace>:<owner>:*.
type RedisHistoryRepository struct {
	rdb       redis.Cmdable
	ttl       time.Duration
	maxItems  int
	namespace string
}

func NewRedisHistoryRepository(rdb redis.Cmdable, ttl time.Duration, maxItems int) *RedisHistoryRepository {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &RedisHistoryRepository{rdb: rdb, ttl: ttl, maxItems: maxItems, namespace: defaultNamespace}
}

func (r *RedisHistoryRepository) key(owner, suffix string) string {
	return r.namespace + ":" + owner + ":" + suffix
}

func (r *RedisHistoryRepository) itemsKey(owner string) string {
	return r.key(owner, "items")
}

func (r *RedisHistoryRepository) orderKey(owner string) string {
	return r.key(owner, "order")
}

func (r *RedisHistoryRepository) seqKey(owner string) string {
	return r.key(owner, "seq")
}

func (r *RedisHistoryRepository) AddItem(ctx context.Context, owner string, item *model.HistoryItem) error {
	if item == nil || item.ID == "" {
		return errx.InvalidInput("history item without id")
	}
	if err := r.write(ctx, owner, item); err != nil {
		return err
	}
	return r.evict(ctx, owner)
}

func (r *RedisHistoryRepository) UpdateItem(ctx context.Context, owner string, item *model.HistoryItem) error {
	if item == nil || item.ID == "" {
		return errx.InvalidInput("history item without id")
	}
	ok, err := r.rdb.HExists(ctx, r.itemsKey(owner), item.ID).Result()
	if err != nil {
		logx.Error().Err(err).Str("id", item.ID).Msg("failed to check history item")
		return errx.WrapRedis(err)
	}
	if !ok {
		return errx.NotFound("history item " + item.ID)
	}
	return r.write(ctx, owner, item)
}

func (r *RedisHistoryRepository) write(ctx context.Context, owner string, item *model.HistoryItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		logx.Error().Err(err).Str("id", item.ID).Msg("failed to marshal history item")
		return fmt.Errorf("marshal history item: %w", err)
	}

	seq, err := r.rdb.Incr(ctx, r.seqKey(owner)).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", r.seqKey(owner)).Msg("failed to advance history sequence")
		return errx.WrapRedis(err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.itemsKey(owner), item.ID, b)
		pipe.ZAdd(ctx, r.orderKey(owner), redis.Z{Score: float64(seq), Member: item.ID})
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, r.itemsKey(owner), r.ttl)
			pipe.Expire(ctx, r.orderKey(owner), r.ttl)
			pipe.Expire(ctx, r.seqKey(owner), r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("id", item.ID).Msg("failed to store history item")
		return errx.WrapRedis(err)
	}
	return nil
}

// evict drops everything beyond maxItems, oldest first.
func (r *RedisHistoryRepository) evict(ctx context.Context, owner string) error {
	stale, err := r.rdb.ZRevRange(ctx, r.orderKey(owner), int64(r.maxItems), -1).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", r.orderKey(owner)).Msg("failed to read history order")
		return errx.WrapRedis(err)
	}
	if len(stale) == 0 {
		return nil
	}

	members := make([]any, len(stale))
	for i, id := range stale {
		members[i] = id
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.itemsKey(owner), stale...)
		pipe.ZRem(ctx, r.orderKey(owner), members...)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Int("count", len(stale)).Msg("failed to evict history items")
		return errx.WrapRedis(err)
	}
	logx.Debug().Int("count", len(stale)).Msg("evicted old history items")
	return nil
}

func (r *RedisHistoryRepository) GetItem(ctx context.Context, owner, id string) (*model.HistoryItem, error) {
	s, err := r.rdb.HGet(ctx, r.itemsKey(owner), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.NotFound("history item " + id)
		}
		logx.Error().Err(err).Str("id", id).Msg("failed to load history item")
		return nil, errx.WrapRedis(err)
	}

	var item model.HistoryItem
	if err := json.Unmarshal([]byte(s), &item); err != nil {
		logx.Error().Err(err).Str("id", id).Msg("failed to unmarshal history item")
		return nil, fmt.Errorf("unmarshal history item %s: %w", id, err)
	}
	return &item, nil
}

func (r *RedisHistoryRepository) ListItems(ctx context.Context, owner string) ([]*model.HistoryItem, error) {
	ids, err := r.rdb.ZRevRange(ctx, r.orderKey(owner), 0, -1).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", r.orderKey(owner)).Msg("failed to read history order")
		return nil, errx.WrapRedis(err)
	}
	if len(ids) == 0 {
		return []*model.HistoryItem{}, nil
	}

	rows, err := r.rdb.HMGet(ctx, r.itemsKey(owner), ids...).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", r.itemsKey(owner)).Msg("failed to load history items")
		return nil, errx.WrapRedis(err)
	}

	items := make([]*model.HistoryItem, 0, len(rows))
	for i, row := range rows {
		s, ok := row.(string)
		if !ok {
			// order entry without a payload, e.g. after a partial eviction
			continue
		}
		var item model.HistoryItem
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			logx.Warn().Err(err).Str("id", ids[i]).Msg("skipping unreadable history item")
			continue
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *RedisHistoryRepository) DeleteItem(ctx context.Context, owner, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.itemsKey(owner), id)
		pipe.ZRem(ctx, r.orderKey(owner), id)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("id", id).Msg("failed to delete history item")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.HistoryRepository = (*RedisHistoryRepository)(nil)

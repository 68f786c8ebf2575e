package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"itemsvc/internal/item"
)

const (
	allItemsKey = "items"

	// maxTxAttempts bounds optimistic-lock retries when a watched key
	// changes between read and write.
	maxTxAttempts = 100
)

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func itemKey(id string) string {
	return fmt.Sprintf("item:%s", id)
}

func statusKey(s item.Status) string {
	return fmt.Sprintf("items:status:%s", s)
}

// Redis persists items in Redis. Each item is a JSON blob at item:<id>;
// the items set holds every id and items:status:<status> indexes by status.
type Redis struct {
	client *redis.Client
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis store on top of an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) List(ctx context.Context, q item.Query) ([]item.Item, int, error) {
	setKey := allItemsKey
	if q.Status != "" {
		setKey = statusKey(q.Status)
	}

	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list ids: %w", unavailable(err))
	}
	if len(ids) == 0 {
		return []item.Item{}, 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, itemKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("load items: %w", unavailable(err))
	}

	items := make([]item.Item, 0, len(ids))
	for _, cmd := range cmds {
		it, err := decodeItem(cmd)
		// removed between SMEMBERS and GET
		if errors.Is(err, item.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}

	page, total := q.Apply(items)
	return page, total, nil
}

func (s *Redis) Get(ctx context.Context, id string) (item.Item, error) {
	if !item.ValidID(id) {
		return item.Item{}, item.ErrNotFound
	}
	return s.load(ctx, s.client, id)
}

func (s *Redis) Create(ctx context.Context, f item.Fields) (item.Item, error) {
	it, err := item.New(f, item.Now())
	if err != nil {
		return item.Item{}, err
	}
	if err := s.save(ctx, []item.Item{it}); err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Redis) Update(ctx context.Context, id string, f item.Fields) (item.Item, error) {
	if !item.ValidID(id) {
		return item.Item{}, item.ErrNotFound
	}

	key := itemKey(id)
	var updated item.Item
	update := func(tx *redis.Tx) error {
		existing, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err = existing.Apply(f, item.Now())
		if err != nil {
			return err
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if existing.Status != updated.Status {
				pipe.SRem(ctx, statusKey(existing.Status), id)
				pipe.SAdd(ctx, statusKey(updated.Status), id)
			}
			return nil
		})
		return err
	}

	if err := s.watch(ctx, update, key); err != nil {
		return item.Item{}, err
	}
	return updated, nil
}

func (s *Redis) Delete(ctx context.Context, id string) (bool, error) {
	if !item.ValidID(id) {
		return false, nil
	}

	key := itemKey(id)
	var removed bool
	del := func(tx *redis.Tx) error {
		removed = false
		existing, err := s.load(ctx, tx, id)
		if errors.Is(err, item.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, allItemsKey, id)
			pipe.SRem(ctx, statusKey(existing.Status), id)
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	}

	if err := s.watch(ctx, del, key); err != nil {
		return false, err
	}
	return removed, nil
}

func (s *Redis) BulkCreate(ctx context.Context, fs []item.Fields) ([]item.Item, error) {
	items, err := item.NewBatch(fs, item.Now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", item.ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

// save writes items and their index entries in a single MULTI/EXEC.
func (s *Redis) save(ctx context.Context, items []item.Item) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, it := range items {
			data, err := json.Marshal(it)
			if err != nil {
				return err
			}
			pipe.Set(ctx, itemKey(it.ID), data, 0)
			pipe.SAdd(ctx, allItemsKey, it.ID)
			pipe.SAdd(ctx, statusKey(it.Status), it.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save items: %w", unavailable(err))
	}
	return nil
}

func (s *Redis) load(ctx context.Context, c getter, id string) (item.Item, error) {
	return decodeItem(c.Get(ctx, itemKey(id)))
}

// decodeItem reads the JSON blob returned by a GET. A missing key is
// item.ErrNotFound.
func decodeItem(cmd *redis.StringCmd) (item.Item, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return item.Item{}, item.ErrNotFound
		}
		return item.Item{}, fmt.Errorf("get item: %w", unavailable(err))
	}
	var it item.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return item.Item{}, fmt.Errorf("decode item: %w", err)
	}
	return it, nil
}

func (s *Redis) watch(ctx context.Context, fn func(*redis.Tx) error, key string) error {
	var err error
	for range maxTxAttempts {
		err = s.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", key, err)
}

// unavailable marks connection-level failures so callers can tell an
// unreachable store from a bad record.
func unavailable(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %v", item.ErrUnavailable, err)
	}
	return err
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/metrics"
)

const assetIndexKey = "assets"

// RedisStore is the production PathStore. The per-asset append runs as
// an optimistic transaction: WATCH on the asset's path key, then a
// MULTI write of path, current position and display name. A racing
// writer for the same asset fails the transaction and retries; writers
// for different assets never conflict.
type RedisStore struct {
	client     *redis.Client
	cap        int
	maxRetries int
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:     client,
		cap:        cfg.PathCap,
		maxRetries: cfg.AppendMaxRetries,
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying connection for collaborators that share
// it (the pub/sub source, the simulator).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func pathKey(id string) string     { return fmt.Sprintf("asset:%s:path", id) }
func currentKey(id string) string  { return fmt.Sprintf("asset:%s:current", id) }
func metaKey(id string) string     { return fmt.Sprintf("asset:%s:meta", id) }
func snapshotKey(id string) string { return fmt.Sprintf("asset:%s:snapshot", id) }

func (s *RedisStore) Append(ctx context.Context, id, name string, rec domain.Position) (domain.Asset, error) {
	var out domain.Asset

	txf := func(tx *redis.Tx) error {
		path, err := readPath(ctx, tx, id)
		if err != nil {
			return err
		}

		existingName, err := tx.HGet(ctx, metaKey(id), "name").Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("read asset name: %w", err)
		}
		finalName := resolveName(existingName, name, id)

		path = trimFront(append(path, rec), s.cap)

		pathBuf, err := json.Marshal(path)
		if err != nil {
			return fmt.Errorf("marshal path: %w", err)
		}
		curBuf, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal current: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pathKey(id), pathBuf, 0)
			pipe.Set(ctx, currentKey(id), curBuf, 0)
			pipe.HSet(ctx, metaKey(id), "name", finalName)
			pipe.SAdd(ctx, assetIndexKey, id)
			return nil
		})
		if err != nil {
			return err
		}

		out = domain.Asset{ID: id, Name: finalName, Current: rec, Path: path}
		return nil
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, pathKey(id))
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			metrics.AppendConflicts.Add(1)
			continue
		}
		return domain.Asset{}, fmt.Errorf("append for %s: %w", id, err)
	}

	return domain.Asset{}, fmt.Errorf("append for %s after %d attempts: %w", id, s.maxRetries, ErrConflict)
}

func (s *RedisStore) GetCurrent(ctx context.Context, id string) (domain.Position, bool, error) {
	raw, err := s.client.Get(ctx, currentKey(id)).Bytes()
	if err == redis.Nil {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("read current for %s: %w", id, err)
	}

	var cur domain.Position
	if err := json.Unmarshal(raw, &cur); err != nil {
		return domain.Position{}, false, fmt.Errorf("decode current for %s: %w", id, err)
	}
	return cur, true, nil
}

func (s *RedisStore) GetPath(ctx context.Context, id string) ([]domain.Position, error) {
	return readPath(ctx, s.client, id)
}

func (s *RedisStore) GetAll(ctx context.Context) (map[string]domain.Asset, error) {
	ids, err := s.client.SMembers(ctx, assetIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read asset index: %w", err)
	}

	out := make(map[string]domain.Asset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	curCmds := make(map[string]*redis.StringCmd, len(ids))
	pathCmds := make(map[string]*redis.StringCmd, len(ids))
	nameCmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		curCmds[id] = pipe.Get(ctx, currentKey(id))
		pathCmds[id] = pipe.Get(ctx, pathKey(id))
		nameCmds[id] = pipe.HGet(ctx, metaKey(id), "name")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read assets: %w", err)
	}

	for _, id := range ids {
		curRaw, err := curCmds[id].Bytes()
		if err != nil {
			continue // asset vanished between index read and fetch
		}
		var cur domain.Position
		if err := json.Unmarshal(curRaw, &cur); err != nil {
			continue
		}

		var path []domain.Position
		if pathRaw, err := pathCmds[id].Bytes(); err == nil {
			_ = json.Unmarshal(pathRaw, &path)
		}

		name, _ := nameCmds[id].Result()
		if name == "" {
			name = id
		}

		out[id] = domain.Asset{ID: id, Name: name, Current: cur, Path: path}
	}
	return out, nil
}

func (s *RedisStore) SetSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().UnixMilli()
	}
	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", snap.AssetID, err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.AssetID), buf, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot for %s: %w", snap.AssetID, err)
	}
	return nil
}

func (s *RedisStore) GetSnapshot(ctx context.Context, id string) (domain.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, snapshotKey(id)).Bytes()
	if err == redis.Nil {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("read snapshot for %s: %w", id, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("decode snapshot for %s: %w", id, err)
	}
	return snap, true, nil
}

// readPath works against both the plain client and a WATCH transaction.
func readPath(ctx context.Context, c redis.Cmdable, id string) ([]domain.Position, error) {
	raw, err := c.Get(ctx, pathKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read path for %s: %w", id, err)
	}

	var path []domain.Position
	if err := json.Unmarshal(raw, &path); err != nil {
		return nil, fmt.Errorf("decode path for %s: %w", id, err)
	}
	return path, nil
}

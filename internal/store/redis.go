package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "doc:"

// Redis persists document snapshots as opaque JSON blobs keyed by document
// id. The relay only ever writes; stored snapshots outlive a process restart
// but are not reloaded into the registry, which always starts documents from
// the empty default.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) SaveSnapshot(ctx context.Context, docID string, data []byte) error {
	return s.rdb.Set(ctx, snapshotKeyPrefix+docID, data, 0).Err()
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

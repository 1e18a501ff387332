package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

// SnapshotKey chave do último snapshot publicado
const SnapshotKey = "games:snapshot"

// Snapshot é o que circula no Redis entre o publisher e os hubs /ws
type Snapshot struct {
	Games       []cfeed.Game `json:"games"`
	LastUpdated time.Time    `json:"last_updated"`
}

// RedisStore grava o snapshot numa chave e o anuncia no canal pub/sub
type RedisStore struct {
	Client  *redis.Client
	Channel string
}

func NewRedisStore(c *redis.Client, channel string) *RedisStore {
	return &RedisStore{Client: c, Channel: channel}
}

// Save persiste e publica numa única ida ao Redis (pipeline)
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, SnapshotKey, b, 0)
		p.Publish(ctx, s.Channel, b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Latest lê o último snapshot; ok=false quando ainda não há nenhum
func (s *RedisStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	var snap Snapshot
	b, err := s.Client.Get(ctx, SnapshotKey).Bytes()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"ai-chatroom/internal/domain"
)

// redisLister es el subconjunto de comandos de lista que usa el repositorio.
type redisLister interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// RedisMessageRepository guarda el historial de cada sala como una lista
// acotada de documentos JSON.
type RedisMessageRepository struct {
	client redisLister
	prefix string
	cap    int64
}

func NewRedisMessageRepository(client *redis.Client, namespace string, historyCap int) *RedisMessageRepository {
	return newRedisMessageRepository(client, namespace, historyCap)
}

func newRedisMessageRepository(client redisLister, namespace string, historyCap int) *RedisMessageRepository {
	if namespace == "" {
		namespace = "ai_chatroom_db"
	}
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &RedisMessageRepository{
		client: client,
		prefix: namespace + ":room:",
		cap:    int64(historyCap),
	}
}

func (r *RedisMessageRepository) key(room string) string {
	return r.prefix + room + ":messages"
}

func (r *RedisMessageRepository) EnsureIndexes(context.Context) error {
	return nil
}

func (r *RedisMessageRepository) Create(ctx context.Context, message domain.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := r.key(message.Room)
	if err := r.client.RPush(ctx, key, payload).Err(); err != nil {
		return storeError("rpush message", err)
	}
	return storeError("ltrim history", r.client.LTrim(ctx, key, -r.cap, -1).Err())
}

func (r *RedisMessageRepository) ListRecentByRoom(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	raw, err := r.client.LRange(ctx, r.key(room), int64(-limit), -1).Result()
	if err != nil {
		return nil, storeError("lrange history", err)
	}
	messages := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}
	// Las escrituras de una sala pueden llegar fuera de orden; el timestamp manda.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

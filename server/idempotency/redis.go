package idempotency

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "jdqueue:idempotency:"
	redisTTL       = 24 * time.Hour
)

// RedisStore caches responses in Redis so duplicate submissions are
// deduplicated across restarts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Response, bool) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return Response{}, false
	}
	if err != nil {
		log.Printf("idempotency redis get failed: %v", err)
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return Response{}, false
	}
	return resp, true
}

func (s *RedisStore) Set(ctx context.Context, key string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, redisTTL).Err(); err != nil {
		log.Printf("idempotency redis set failed: %v", err)
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

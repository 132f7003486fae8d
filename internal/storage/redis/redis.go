package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepo holds revoked session tokens until their natural expiry.
type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{client: client}, nil
}

func (r *RedisRepo) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	const op = "storage.redis.RevokeToken"

	if ttl <= 0 {
		return nil
	}

	err := r.client.Set(ctx, tokenKey(token), "revoked", ttl).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	const op = "storage.redis.IsTokenRevoked"

	n, err := r.client.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// * Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	r.client.Close()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))

	return fmt.Sprintf("session:revoked:%s", hex.EncodeToString(sum[:]))
}

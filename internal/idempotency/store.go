// Package idempotency はIdempotency-Keyヘッダによる予約作成の再送を扱います
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

var (
	// ErrInProgress は同じキーのリクエストが処理中の場合に返します
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	// ErrKeyMismatch は同じキーが異なる内容のリクエストに使われた場合に返します
	ErrKeyMismatch = errors.New("idempotency key was used with a different request")
)

// Response は保存しておき、同じキーの再送時にそのまま返すレスポンスです
type Response struct {
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
	Fingerprint string          `json:"fingerprint,omitempty"`
}

// Fingerprint はリクエストの内容を識別するハッシュを返します
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store はIdempotency-Keyと処理結果を対応付けます
type Store interface {
	// Begin はキーを確保します。既に結果が保存されていればそれを返します
	// 保存された結果のfingerprintが異なる場合はErrKeyMismatchを返します
	Begin(ctx context.Context, scope, key, fingerprint string) (*Response, error)
	Save(ctx context.Context, scope, key string, resp Response) error
	// Release は確保したキーを解放し、同じキーで再試行できるようにします
	Release(ctx context.Context, scope, key string) error
}

// RedisStore はRedisを使ったStoreです
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient はURLからクライアントを作成し、接続を確認します
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		// URL形式でなければアドレスとして扱う
		opts = &redis.Options{Addr: url}
	}
	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Successfully connected to Redis")
	return client, nil
}

func redisKey(scope, key string) string {
	return "idem:" + scope + ":" + key
}

func (s *RedisStore) Begin(ctx context.Context, scope, key, fingerprint string) (*Response, error) {
	k := redisKey(scope, key)

	acquired, err := s.client.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if acquired {
		return nil, nil
	}

	value, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// 確保と参照の間に期限切れになった
		return nil, ErrInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	if value == pending {
		return nil, ErrInProgress
	}

	var resp Response
	if err := json.Unmarshal([]byte(value), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	if resp.Fingerprint != fingerprint {
		return nil, ErrKeyMismatch
	}
	return &resp, nil
}

func (s *RedisStore) Save(ctx context.Context, scope, key string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(scope, key), string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// NopStore はRedisを使わない場合のStoreです。再送の検出は行いません
type NopStore struct{}

func (NopStore) Begin(context.Context, string, string, string) (*Response, error) { return nil, nil }
func (NopStore) Save(context.Context, string, string, Response) error            { return nil }
func (NopStore) Release(context.Context, string, string) error                   { return nil }

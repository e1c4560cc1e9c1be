package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL 상수 정의
const (
	TTLEntitlement = 15 * time.Second
	TTLCheckout    = 10 * time.Minute
	TTLDefault     = 5 * time.Minute
)

// 캐시 키 접두사
const (
	PrefixEntitlement = "entitlement:"
	PrefixCheckout    = "checkout:"
)

// ErrMiss is returned by Get when the key is absent or redis is unavailable
var ErrMiss = errors.New("cache miss")

// Service Redis 캐시 서비스 인터페이스
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// 이용권 캐시
	GetEntitlement(ctx context.Context, viewerID, creatorID, resource string, dest interface{}) error
	SetEntitlement(ctx context.Context, viewerID, creatorID, resource string, value interface{}, ttl time.Duration) error
	InvalidateEntitlements(ctx context.Context, viewerID, creatorID string) error

	IsAvailable() bool
	Ping(ctx context.Context) error
}

// redisCache Redis 기반 캐시 구현
type redisCache struct {
	client *redis.Client
}

// NewService 새로운 캐시 서비스 생성
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

// IsAvailable Redis 연결 가능 여부
func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

// Ping Redis 연결 테스트
func (c *redisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return c.client.Ping(ctx).Err()
}

// Get 캐시에서 값 조회
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Set 캐시에 값 저장
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // Redis 없으면 무시
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete 캐시 삭제
func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// CheckoutKey 팬-크리에이터 쌍의 진행 중인 결제 세션 키
func CheckoutKey(userID, creatorID string) string {
	return PrefixCheckout + userID + ":" + creatorID
}

// ========================================
// 이용권 캐시
// ========================================

func entitlementKey(viewerID, creatorID, resource string) string {
	if viewerID == "" {
		viewerID = "anon"
	}
	return PrefixEntitlement + viewerID + ":" + creatorID + ":" + resource
}

func (c *redisCache) GetEntitlement(ctx context.Context, viewerID, creatorID, resource string, dest interface{}) error {
	return c.Get(ctx, entitlementKey(viewerID, creatorID, resource), dest)
}

func (c *redisCache) SetEntitlement(ctx context.Context, viewerID, creatorID, resource string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLEntitlement
	}
	return c.Set(ctx, entitlementKey(viewerID, creatorID, resource), value, ttl)
}

func (c *redisCache) InvalidateEntitlements(ctx context.Context, viewerID, creatorID string) error {
	return c.Delete(ctx,
		entitlementKey(viewerID, creatorID, "chat"),
		entitlementKey(viewerID, creatorID, "content"),
	)
}

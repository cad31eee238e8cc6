// Package handoff передаёт корзину со страницы каталога на страницу чека.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/inflight-sales/internal/cart"
)

// ErrNotFound возвращается, если передача не найдена, уже использована или истекла.
var ErrNotFound = errors.New("handoff not found")

// DefaultTTL ограничивает время жизни неиспользованной передачи.
const DefaultTTL = 30 * time.Minute

// RedisStore хранит передачи корзины в Redis в виде JSON.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore создаёт хранилище передач в Redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: DefaultTTL}
}

// Put сохраняет передачу и возвращает её токен.
func (s *RedisStore) Put(ctx context.Context, h cart.Handoff) (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal handoff: %w", err)
	}

	token := uuid.NewString()
	if err := s.client.Set(ctx, key(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set failed: %w", err)
	}
	return token, nil
}

// Take возвращает передачу и удаляет её. Повторно передачу получить нельзя.
func (s *RedisStore) Take(ctx context.Context, token string) (cart.Handoff, error) {
	data, err := s.client.GetDel(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Handoff{}, ErrNotFound
	}
	if err != nil {
		return cart.Handoff{}, fmt.Errorf("redis getdel failed: %w", err)
	}

	var h cart.Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return cart.Handoff{}, fmt.Errorf("unmarshal handoff failed: %w", err)
	}
	return h, nil
}

func key(token string) string {
	return fmt.Sprintf("handoff:%s", token)
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore хранит передачи в памяти процесса. Используется, когда Redis не настроен.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore создаёт хранилище передач в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// Put сохраняет передачу и возвращает её токен.
func (s *MemoryStore) Put(ctx context.Context, h cart.Handoff) (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal handoff: %w", err)
	}

	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, it := range s.items {
		if now.After(it.expiresAt) {
			delete(s.items, t)
		}
	}
	s.items[token] = memoryItem{data: data, expiresAt: now.Add(s.ttl)}
	return token, nil
}

// Take возвращает передачу и удаляет её.
func (s *MemoryStore) Take(ctx context.Context, token string) (cart.Handoff, error) {
	s.mu.Lock()
	it, ok := s.items[token]
	delete(s.items, token)
	s.mu.Unlock()

	if !ok || s.now().After(it.expiresAt) {
		return cart.Handoff{}, ErrNotFound
	}

	var h cart.Handoff
	if err := json.Unmarshal(it.data, &h); err != nil {
		return cart.Handoff{}, fmt.Errorf("unmarshal handoff failed: %w", err)
	}
	return h, nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rmscall/internal/domain"
	"rmscall/internal/redis"
)

// Store - единственный слот активного звонка. Последняя запись побеждает, чтение слот не очищает.
type Store interface {
	SetActiveCall(ctx context.Context, ticketID, profileID string) error
	GetActiveCall(ctx context.Context) (domain.CallSession, bool, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	current *domain.CallSession
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) SetActiveCall(_ context.Context, ticketID, profileID string) error {
	s.mu.Lock()
	s.current = &domain.CallSession{
		TicketID:  ticketID,
		ProfileID: profileID,
		StartedAt: s.now(),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetActiveCall(context.Context) (domain.CallSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.CallSession{}, false, nil
	}
	return *s.current, true, nil
}

const activeCallKey = "rmscall:active-call"

// RedisStore переживает перезапуск агента: звонок, начатый до рестарта, всё равно загрузится
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: activeCallKey}
}

func (s *RedisStore) SetActiveCall(ctx context.Context, ticketID, profileID string) error {
	payload, err := json.Marshal(domain.CallSession{
		TicketID:  ticketID,
		ProfileID: profileID,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode call session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, 0); err != nil {
		return fmt.Errorf("failed to store call session: %w", err)
	}
	return nil
}

func (s *RedisStore) GetActiveCall(ctx context.Context) (domain.CallSession, bool, error) {
	raw, err := s.client.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return domain.CallSession{}, false, nil
		}
		return domain.CallSession{}, false, fmt.Errorf("failed to read call session: %w", err)
	}

	var sess domain.CallSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.CallSession{}, false, fmt.Errorf("failed to decode call session: %w", err)
	}
	return sess, true, nil
}

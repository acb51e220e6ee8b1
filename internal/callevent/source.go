package callevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rmscall/internal/redis"
)

// ErrNotListening - обновление пришло, когда никто не подписан
var ErrNotListening = errors.New("call listener is not running")

type updatePayload struct {
	State       string    `json:"state"`
	PhoneNumber string    `json:"phone_number"`
	At          time.Time `json:"at"`
}

// DecodeUpdate разбирает JSON {"state": "...", "phone_number": "..."}
func DecodeUpdate(data []byte) (PhoneStateUpdate, error) {
	var p updatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return PhoneStateUpdate{}, fmt.Errorf("invalid phone state payload: %w", err)
	}
	state, ok := ParsePhoneState(p.State)
	if !ok {
		return PhoneStateUpdate{}, fmt.Errorf("unknown phone state %q", p.State)
	}
	return PhoneStateUpdate{State: state, PhoneNumber: p.PhoneNumber, At: p.At}, nil
}

// WebhookSource принимает состояния от нативного приемника через HTTP
type WebhookSource struct {
	mu   sync.RWMutex
	emit func(PhoneStateUpdate)
}

func NewWebhookSource() *WebhookSource {
	return &WebhookSource{}
}

func (s *WebhookSource) Start(_ context.Context, emit func(PhoneStateUpdate)) error {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
	return nil
}

func (s *WebhookSource) Stop() error {
	s.mu.Lock()
	s.emit = nil
	s.mu.Unlock()
	return nil
}

// Push передает обновление слушателю
func (s *WebhookSource) Push(u PhoneStateUpdate) error {
	s.mu.RLock()
	emit := s.emit
	s.mu.RUnlock()
	if emit == nil {
		return ErrNotListening
	}
	emit(u)
	return nil
}

// RedisSource читает состояния из канала redis pub/sub
type RedisSource struct {
	client  *redis.Client
	channel string

	mu   sync.Mutex
	sub  *goredis.PubSub
	done chan struct{}
}

func NewRedisSource(client *redis.Client, channel string) *RedisSource {
	return &RedisSource{client: client, channel: channel}
}

func (s *RedisSource) Start(ctx context.Context, emit func(PhoneStateUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil
	}

	subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sub, err := s.client.Subscribe(subCtx, s.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.sub = sub
	s.done = make(chan struct{})

	go func(ch <-chan *goredis.Message, done chan struct{}) {
		defer close(done)
		for msg := range ch {
			u, err := DecodeUpdate([]byte(msg.Payload))
			if err != nil {
				log.Printf("[CallEvent] Skipping message on %s: %v", s.channel, err)
				continue
			}
			emit(u)
		}
	}(sub.Channel(), s.done)

	log.Printf("[CallEvent] Subscribed to redis channel %s", s.channel)
	return nil
}

func (s *RedisSource) Stop() error {
	s.mu.Lock()
	sub, done := s.sub, s.done
	s.sub, s.done = nil, nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

// Publish отправляет обновление в канал; используется нативной стороной и тестами
func (s *RedisSource) Publish(ctx context.Context, u PhoneStateUpdate) error {
	payload, err := json.Marshal(updatePayload{State: string(u.State), PhoneNumber: u.PhoneNumber, At: u.At})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload)
}

package notify

import (
	"log"
	"sync"
	"time"

	"rmscall/internal/domain"
)

const defaultCapacity = 50

// Notifier - лента уведомлений пользователю (аналог toast в приложении).
// Хранит последние capacity сообщений, старые вытесняются.
type Notifier struct {
	mu       sync.RWMutex
	items    []domain.Notification
	next     int
	full     bool
	capacity int
	now      func() time.Time
}

func New(capacity int) *Notifier {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Notifier{
		items:    make([]domain.Notification, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

func (n *Notifier) Success(title, message string) {
	n.push(domain.LevelSuccess, title, message)
}

func (n *Notifier) Info(title, message string) {
	n.push(domain.LevelInfo, title, message)
}

func (n *Notifier) Error(title, message string) {
	n.push(domain.LevelError, title, message)
}

func (n *Notifier) push(level domain.NotificationLevel, title, message string) {
	log.Printf("[Notify] %s: %s - %s", level, title, message)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.items[n.next] = domain.Notification{
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: n.now(),
	}
	n.next = (n.next + 1) % n.capacity
	if n.next == 0 {
		n.full = true
	}
}

// List возвращает уведомления, новые первыми
func (n *Notifier) List() []domain.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := n.next
	if n.full {
		count = n.capacity
	}
	out := make([]domain.Notification, 0, count)
	for i := 1; i <= count; i++ {
		idx := (n.next - i + n.capacity) % n.capacity
		out = append(out, n.items[idx])
	}
	return out
}

package callevent

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"sync"

	"rmscall/internal/domain"
)

// Handler получает терминальное событие звонка
type Handler func(domain.CallEvent)

// Source - платформенный источник состояний телефонии.
// Start не должен вызывать emit синхронно.
type Source interface {
	Start(ctx context.Context, emit func(PhoneStateUpdate)) error
	Stop() error
}

type listenerState int

const (
	stateIdle listenerState = iota
	stateListening
)

var subscribedKinds = []domain.CallEventKind{domain.CallEnded, domain.CallEndedIncoming}

// Listener раздает события окончания звонка подписчикам.
// Пока есть хотя бы одна подписка, источник запущен.
type Listener struct {
	source  Source
	tracker *Tracker

	// lifecycle упорядочивает Start/Stop источника, mu защищает подписки
	lifecycle sync.Mutex
	mu        sync.Mutex
	state     listenerState
	nextID    uint64
	handlers  map[domain.CallEventKind]map[uint64]Handler
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
}

func NewListener(source Source) *Listener {
	handlers := make(map[domain.CallEventKind]map[uint64]Handler, len(subscribedKinds))
	for _, kind := range subscribedKinds {
		handlers[kind] = make(map[uint64]Handler)
	}
	return &Listener{
		source:   source,
		tracker:  NewTracker(),
		handlers: handlers,
	}
}

// Subscription снимает сразу оба обработчика
type Subscription struct {
	listener *Listener
	id       uint64
	once     sync.Once
}

// Unsubscribe идемпотентен
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.listener.remove(s.id)
	})
}

// OnCallEnded регистрирует handler на CallEnded и CallEndedIncoming.
// Ошибка запуска источника не делает регистрацию неудачной.
func (l *Listener) OnCallEnded(handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("call event handler is required")
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	for _, kind := range subscribedKinds {
		l.handlers[kind][id] = handler
	}

	if l.state == stateIdle {
		l.startLocked()
	}

	return &Subscription{listener: l, id: id}, nil
}

// Listening сообщает, запущен ли источник событий
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateListening
}

// Deliver рассылает готовое событие подписчикам его типа
func (l *Listener) Deliver(event domain.CallEvent) {
	l.mu.Lock()
	targets := make([]Handler, 0, len(l.handlers[event.Kind]))
	for _, h := range l.handlers[event.Kind] {
		targets = append(targets, h)
	}
	l.mu.Unlock()

	if len(targets) == 0 {
		log.Printf("[CallEvent] %s dropped: no subscribers", event.Kind)
		return
	}

	log.Printf("[CallEvent] Dispatching %s to %d handler(s)", event.Kind, len(targets))
	for _, h := range targets {
		l.inflight.Add(1)
		go func(h Handler) {
			defer l.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[CallEvent] Handler panic: %v\n%s", r, debug.Stack())
				}
			}()
			h(event)
		}(h)
	}
}

// Wait дожидается завершения уже запущенных обработчиков
func (l *Listener) Wait() {
	l.inflight.Wait()
}

func (l *Listener) onUpdate(u PhoneStateUpdate) {
	l.mu.Lock()
	tracker := l.tracker
	l.mu.Unlock()

	event, ok := tracker.Observe(u)
	if !ok {
		return
	}
	l.Deliver(event)
}

func (l *Listener) remove(id uint64) {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	for _, kind := range subscribedKinds {
		delete(l.handlers[kind], id)
	}
	for _, kind := range subscribedKinds {
		if len(l.handlers[kind]) > 0 {
			l.mu.Unlock()
			return
		}
	}
	if l.state != stateListening {
		l.mu.Unlock()
		return
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.state = stateIdle
	l.mu.Unlock()

	// Stop вызывается без блокировки: источник может ждать ее внутри emit
	l.stopSource()
}

func (l *Listener) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.state = stateListening
	l.tracker = NewTracker()

	if l.source == nil {
		log.Printf("[CallEvent] No platform source configured, call events will not be delivered")
		return
	}
	if err := l.source.Start(ctx, l.onUpdate); err != nil {
		log.Printf("[CallEvent] Failed to start platform source: %v", err)
		return
	}
	log.Printf("[CallEvent] Call listener started")
}

func (l *Listener) stopSource() {
	if l.source == nil {
		return
	}
	if err := l.source.Stop(); err != nil {
		log.Printf("[CallEvent] Failed to stop platform source: %v", err)
		return
	}
	log.Printf("[CallEvent] Call listener stopped")
}

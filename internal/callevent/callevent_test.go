package callevent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rmscall/internal/domain"
)

func TestTrackerTransitions(t *testing.T) {
	tests := []struct {
		name   string
		states []PhoneStateUpdate
		want   []domain.CallEvent
	}{
		{
			name: "outgoing call",
			states: []PhoneStateUpdate{
				{State: domain.PhoneStateOffhook},
				{State: domain.PhoneStateIdle},
			},
			want: []domain.CallEvent{{Kind: domain.CallEnded}},
		},
		{
			name: "answered incoming call",
			states: []PhoneStateUpdate{
				{State: domain.PhoneStateRinging, PhoneNumber: "+918075011889"},
				{State: domain.PhoneStateOffhook},
				{State: domain.PhoneStateIdle},
			},
			want: []domain.CallEvent{{Kind: domain.CallEndedIncoming, PhoneNumber: "+918075011889"}},
		},
		{
			name: "missed call",
			states: []PhoneStateUpdate{
				{State: domain.PhoneStateRinging, PhoneNumber: "+918075011889"},
				{State: domain.PhoneStateIdle},
			},
		},
		{
			name:   "idle without activity",
			states: []PhoneStateUpdate{{State: domain.PhoneStateIdle}, {State: domain.PhoneStateIdle}},
		},
		{
			name: "repeated idle after call",
			states: []PhoneStateUpdate{
				{State: domain.PhoneStateOffhook},
				{State: domain.PhoneStateOffhook},
				{State: domain.PhoneStateIdle},
				{State: domain.PhoneStateIdle},
			},
			want: []domain.CallEvent{{Kind: domain.CallEnded}},
		},
		{
			name: "call waiting keeps first caller",
			states: []PhoneStateUpdate{
				{State: domain.PhoneStateRinging, PhoneNumber: "111"},
				{State: domain.PhoneStateOffhook},
				{State: domain.PhoneStateRinging, PhoneNumber: "222"},
				{State: domain.PhoneStateIdle},
			},
			want: []domain.CallEvent{{Kind: domain.CallEndedIncoming, PhoneNumber: "111"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker()
			var got []domain.CallEvent
			for _, s := range tt.states {
				if ev, ok := tracker.Observe(s); ok {
					got = append(got, ev)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i].Kind != tt.want[i].Kind || got[i].PhoneNumber != tt.want[i].PhoneNumber {
					t.Fatalf("event %d = %+v, want %+v", i, got[i], tt.want[i])
				}
				if got[i].At.IsZero() {
					t.Fatalf("event %d has no timestamp", i)
				}
			}
		})
	}
}

func TestDecodeUpdate(t *testing.T) {
	u, err := DecodeUpdate([]byte(`{"state":"EXTRA_STATE_OFFHOOK","phone_number":"123"}`))
	if err != nil {
		t.Fatalf("DecodeUpdate error: %v", err)
	}
	if u.State != domain.PhoneStateOffhook || u.PhoneNumber != "123" {
		t.Fatalf("unexpected update: %+v", u)
	}
	if _, err := DecodeUpdate([]byte(`{"state":"DIALING"}`)); err == nil {
		t.Fatalf("expected error for unknown state")
	}
	if _, err := DecodeUpdate([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

type recordingSource struct {
	mu      sync.Mutex
	starts  int
	stops   int
	failErr error
	emit    func(PhoneStateUpdate)
}

func (s *recordingSource) Start(_ context.Context, emit func(PhoneStateUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.failErr != nil {
		return s.failErr
	}
	s.emit = emit
	return nil
}

func (s *recordingSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.emit = nil
	return nil
}

func (s *recordingSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

func waitFor(t *testing.T, ch <-chan domain.CallEvent) domain.CallEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for call event")
	}
	return domain.CallEvent{}
}

func TestListenerLifecycle(t *testing.T) {
	source := NewWebhookSource()
	listener := NewListener(source)

	if listener.Listening() {
		t.Fatalf("new listener must be idle")
	}
	if err := source.Push(PhoneStateUpdate{State: domain.PhoneStateOffhook}); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening before subscribe, got %v", err)
	}

	events := make(chan domain.CallEvent, 4)
	sub, err := listener.OnCallEnded(func(ev domain.CallEvent) { events <- ev })
	if err != nil {
		t.Fatalf("OnCallEnded error: %v", err)
	}
	if !listener.Listening() {
		t.Fatalf("listener must be listening after subscribe")
	}

	source.Push(PhoneStateUpdate{State: domain.PhoneStateOffhook})
	source.Push(PhoneStateUpdate{State: domain.PhoneStateIdle})
	if ev := waitFor(t, events); ev.Kind != domain.CallEnded {
		t.Fatalf("expected CallEnded, got %+v", ev)
	}

	source.Push(PhoneStateUpdate{State: domain.PhoneStateRinging, PhoneNumber: "42"})
	source.Push(PhoneStateUpdate{State: domain.PhoneStateOffhook})
	source.Push(PhoneStateUpdate{State: domain.PhoneStateIdle})
	if ev := waitFor(t, events); ev.Kind != domain.CallEndedIncoming || ev.PhoneNumber != "42" {
		t.Fatalf("expected CallEndedIncoming, got %+v", ev)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if listener.Listening() {
		t.Fatalf("listener must be idle after unsubscribe")
	}
	if err := source.Push(PhoneStateUpdate{State: domain.PhoneStateIdle}); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected source stopped, got %v", err)
	}

	listener.Deliver(domain.CallEvent{Kind: domain.CallEnded, At: time.Now()})
	listener.Wait()
	select {
	case ev := <-events:
		t.Fatalf("unsubscribed handler received %+v", ev)
	default:
	}
}

func TestListenerStartsSourceOncePerListeningPeriod(t *testing.T) {
	source := &recordingSource{}
	listener := NewListener(source)

	a, _ := listener.OnCallEnded(func(domain.CallEvent) {})
	b, _ := listener.OnCallEnded(func(domain.CallEvent) {})
	if starts, _ := source.counts(); starts != 1 {
		t.Fatalf("expected one start, got %d", starts)
	}

	a.Unsubscribe()
	if _, stops := source.counts(); stops != 0 {
		t.Fatalf("source stopped while a subscriber remains")
	}
	b.Unsubscribe()
	if _, stops := source.counts(); stops != 1 {
		t.Fatalf("expected one stop, got %d", stops)
	}
}

func TestListenerRegistrationSurvivesSourceFailure(t *testing.T) {
	listener := NewListener(&recordingSource{failErr: errors.New("receiver unavailable")})

	events := make(chan domain.CallEvent, 1)
	sub, err := listener.OnCallEnded(func(ev domain.CallEvent) { events <- ev })
	if err != nil || sub == nil {
		t.Fatalf("registration must succeed, got %v", err)
	}
	defer sub.Unsubscribe()

	listener.Deliver(domain.CallEvent{Kind: domain.CallEnded, At: time.Now()})
	waitFor(t, events)

	if _, err := listener.OnCallEnded(nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
}

func TestListenerHandlerPanicIsContained(t *testing.T) {
	listener := NewListener(nil)

	events := make(chan domain.CallEvent, 1)
	panicky, _ := listener.OnCallEnded(func(domain.CallEvent) { panic("boom") })
	defer panicky.Unsubscribe()
	healthy, _ := listener.OnCallEnded(func(ev domain.CallEvent) { events <- ev })
	defer healthy.Unsubscribe()

	listener.Deliver(domain.CallEvent{Kind: domain.CallEndedIncoming, PhoneNumber: "1", At: time.Now()})
	waitFor(t, events)
	listener.Wait()
}

func TestListenerDoesNotBlockOnSlowHandler(t *testing.T) {
	source := NewWebhookSource()
	listener := NewListener(source)

	release := make(chan struct{})
	sub, _ := listener.OnCallEnded(func(domain.CallEvent) { <-release })
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			source.Push(PhoneStateUpdate{State: domain.PhoneStateOffhook})
			source.Push(PhoneStateUpdate{State: domain.PhoneStateIdle})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery blocked on a slow handler")
	}
	close(release)
	listener.Wait()
}

package callevent

import (
	"strings"
	"sync"
	"time"

	"rmscall/internal/domain"
)

// PhoneStateUpdate - одно сырое изменение состояния телефонии
type PhoneStateUpdate struct {
	State       domain.PhoneState `json:"state"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	At          time.Time         `json:"at,omitempty"`
}

// ParsePhoneState принимает как "IDLE", так и "EXTRA_STATE_IDLE" / "idle"
func ParsePhoneState(raw string) (domain.PhoneState, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "EXTRA_STATE_")
	switch domain.PhoneState(s) {
	case domain.PhoneStateIdle, domain.PhoneStateRinging, domain.PhoneStateOffhook:
		return domain.PhoneState(s), true
	}
	return "", false
}

// Tracker превращает поток RINGING/OFFHOOK/IDLE в терминальные события звонка.
// Звонок завершен только при IDLE после OFFHOOK; пропущенный звонок событий не дает.
type Tracker struct {
	mu       sync.Mutex
	offhook  bool
	incoming bool
	number   string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe применяет обновление и возвращает событие, если звонок завершился
func (t *Tracker) Observe(u PhoneStateUpdate) (domain.CallEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := u.At
	if at.IsZero() {
		at = time.Now()
	}

	switch u.State {
	case domain.PhoneStateRinging:
		// второй входящий во время разговора не меняет текущий звонок
		if t.offhook {
			break
		}
		t.incoming = true
		if u.PhoneNumber != "" {
			t.number = u.PhoneNumber
		}
	case domain.PhoneStateOffhook:
		t.offhook = true
		if t.number == "" && u.PhoneNumber != "" {
			t.number = u.PhoneNumber
		}
	case domain.PhoneStateIdle:
		defer t.reset()
		if !t.offhook {
			return domain.CallEvent{}, false
		}
		if t.incoming {
			return domain.CallEvent{Kind: domain.CallEndedIncoming, PhoneNumber: t.number, At: at}, true
		}
		return domain.CallEvent{Kind: domain.CallEnded, At: at}, true
	}

	return domain.CallEvent{}, false
}

func (t *Tracker) reset() {
	t.offhook = false
	t.incoming = false
	t.number = ""
}

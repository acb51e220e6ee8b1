package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strings"
)

// ErrUnrecognizedTarget - отсканированное значение не похоже на номер телефона
var ErrUnrecognizedTarget = errors.New("value is not a phone number")

var scannedNumber = regexp.MustCompile(`^[\d\s+\-()]{6,20}$`)

var numberCleaner = strings.NewReplacer(" ", "", "\t", "", "-", "", "(", "", ")", "")

// DialURI строит tel: URI из номера профиля без нормализации
func DialURI(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(strings.ToLower(phone), "tel:") {
		return "tel:" + phone[4:]
	}
	return "tel:" + phone
}

// NormalizeScanned разбирает значение из QR кода: tel: URI или номер.
// Номер без + получает код страны; номер из tel: URI берется как есть.
func NormalizeScanned(value, countryCode string) (string, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(value), "tel:") {
		return cleanNumber(value[4:], "")
	}
	return cleanNumber(value, countryCode)
}

func cleanNumber(value, countryCode string) (string, error) {
	if !scannedNumber.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedTarget, value)
	}

	clean := numberCleaner.Replace(value)
	if clean == "" || clean == "+" {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedTarget, value)
	}
	if !strings.HasPrefix(clean, "+") {
		clean = countryCode + clean
	}
	return "tel:" + clean, nil
}

// Dialer запускает системную звонилку. Ошибка запуска не влияет на конвейер записей.
type Dialer interface {
	Dial(ctx context.Context, uri string) error
}

// ExecDialer запускает команду вида `am start -a android.intent.action.CALL -d <uri>`
type ExecDialer struct {
	command []string
}

func NewExecDialer(command []string) *ExecDialer {
	return &ExecDialer{command: command}
}

// Dial не ждет завершения звонка: процесс запускается и собирается в фоне
func (d *ExecDialer) Dial(_ context.Context, uri string) error {
	if len(d.command) == 0 {
		return errors.New("dial command is not configured")
	}

	args := append(append([]string{}, d.command[1:]...), uri)
	cmd := exec.Command(d.command[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start dialer: %w", err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[Dialer] Dialer command for %s exited with error: %v", uri, err)
		}
	}()

	log.Printf("[Dialer] Dialing %s", uri)
	return nil
}

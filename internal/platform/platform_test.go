package platform

import (
	"context"
	"errors"
	"os/exec"
	"testing"
)

func TestNormalizeScanned(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "tel:+918075011889", want: "tel:+918075011889"},
		{in: "TEL:123456", want: "tel:123456"},
		{in: "tel:+91 80750-11889", want: "tel:+918075011889"},
		{in: "tel:javascript:alert(1)", wantErr: true},
		{in: "tel:*#06#", wantErr: true},
		{in: "80750 11889", want: "tel:+918075011889"},
		{in: "(807) 501-1889", want: "tel:+918075011889"},
		{in: "+1 (415) 555-0100", want: "tel:+14155550100"},
		{in: "https://rms.example.com", wantErr: true},
		{in: "12345", wantErr: true},
		{in: "tel:", wantErr: true},
		{in: "call me maybe", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeScanned(tt.in, "+91")
		if tt.wantErr {
			if !errors.Is(err, ErrUnrecognizedTarget) {
				t.Errorf("NormalizeScanned(%q) expected ErrUnrecognizedTarget, got %q, %v", tt.in, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeScanned(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestDialURI(t *testing.T) {
	if got := DialURI(" 8075011889 "); got != "tel:8075011889" {
		t.Fatalf("DialURI = %q", got)
	}
	if got := DialURI("Tel:+91123"); got != "tel:+91123" {
		t.Fatalf("DialURI = %q", got)
	}
}

func TestStaticPrompter(t *testing.T) {
	p := NewStaticPrompter([]string{"android.permission.READ_PHONE_STATE"})
	if ok, _ := p.Request(context.Background(), "android.permission.READ_PHONE_STATE"); !ok {
		t.Fatalf("expected granted")
	}
	if ok, _ := p.Request(context.Background(), "android.permission.READ_MEDIA_AUDIO"); ok {
		t.Fatalf("expected denied")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Request(ctx, "android.permission.READ_PHONE_STATE"); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestExecPrompter(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewExecPrompter([]string{"sh", "-c", `test "$0" = "granted"`})

	if ok, err := p.Request(context.Background(), "granted"); err != nil || !ok {
		t.Fatalf("expected granted, got %v %v", ok, err)
	}
	if ok, err := p.Request(context.Background(), "denied"); err != nil || ok {
		t.Fatalf("expected plain denial, got %v %v", ok, err)
	}
	if _, err := NewExecPrompter(nil).Request(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestExecDialerStartsWithoutWaiting(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	d := NewExecDialer([]string{"sh", "-c", "sleep 5"})
	if err := d.Dial(context.Background(), "tel:+911234567890"); err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	if err := NewExecDialer(nil).Dial(context.Background(), "tel:1"); err == nil {
		t.Fatalf("expected error for empty command")
	}
	if err := NewExecDialer([]string{"/nonexistent/dialer"}).Dial(context.Background(), "tel:1"); err == nil {
		t.Fatalf("expected start error")
	}
}

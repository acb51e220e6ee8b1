package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rmscall/internal/domain"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) {
	return string(s), nil
}

func TestUploadRecordingMultipartShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call_20240101.m4a")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/postrecord/" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("ticket_id") != "T1" || r.FormValue("profile_id") != "P9" {
			t.Errorf("unexpected ids: %q %q", r.FormValue("ticket_id"), r.FormValue("profile_id"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "call_20240101.m4a" || string(data) != "audio-bytes" {
			t.Errorf("unexpected file part %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/mp4" {
			t.Errorf("expected audio/mp4, got %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 17, "message": "stored"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, staticTokens("tok"))
	receipt, err := client.UploadRecording(context.Background(), "T1", "P9", path)
	if err != nil {
		t.Fatalf("UploadRecording error: %v", err)
	}
	if receipt.ID != "17" || receipt.Message != "stored" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestUploadRecordingFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	os.WriteFile(path, []byte("x"), 0o644)

	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	client := NewClient(srv.URL, time.Second, nil)

	if _, err := client.UploadRecording(context.Background(), "T", "P", path); !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}

	status = http.StatusUnauthorized
	_, err := client.UploadRecording(context.Background(), "T", "P", path)
	if !errors.Is(err, domain.ErrUpload) || !errors.Is(err, domain.ErrAuthExpired) {
		t.Fatalf("expected ErrUpload wrapping ErrAuthExpired, got %v", err)
	}

	if _, err := client.UploadRecording(context.Background(), "T", "P", filepath.Join(dir, "missing.mp3")); !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("expected ErrUpload for missing file, got %v", err)
	}
}

func TestUploadRecordingTimeoutIsFinite(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	os.WriteFile(path, []byte("x"), 0o644)

	client := NewClient(srv.URL, 50*time.Millisecond, nil)
	start := time.Now()
	if _, err := client.UploadRecording(context.Background(), "T", "P", path); !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("expected ErrUpload on timeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("upload did not honour timeout")
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.MP3":    "audio/mpeg",
		"b.wav":    "audio/wav",
		"c.3gp":    "audio/3gpp",
		"d.amr":    "audio/amr",
		"e.txt":    "application/octet-stream",
		"noext":    "application/octet-stream",
		"f.FLAC":   "audio/flac",
		"g.m4a":    "audio/mp4",
		"h.wma":    "audio/x-ms-wma",
		"i.ogg":    "audio/ogg",
		"j.aac":    "audio/aac",
		"k.tar.gz": "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentTypeFor(name); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestClientAuthAndListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if r.Header.Get("Authorization") != "" {
				t.Errorf("login must be sent without a token")
			}
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"token": "abc"})
		case "/api/getprofiles/5":
			w.Write([]byte(`{"profiles":[{"id":9,"name":"Joy","phone":"8075011889","parsed":{"role":"Frontend","years_of_experience":"4 - 6 Years"}}]}`))
		case "/api/gettickets/":
			w.Write([]byte(`[{"id":"5","title":"Frontend","serial_number":"RMS-5","vacancy":2,"status":"open","client":{"name":"Acme"},"assigned_by":{"profile_pic":""}}]`))
		case "/api/getfolder/1":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	if _, err := client.Login(ctx, "a@b.c", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	token, err := client.Login(ctx, "a@b.c", "secret")
	if err != nil || token != "abc" {
		t.Fatalf("Login = %q, %v", token, err)
	}

	profiles, err := client.Profiles(ctx, "5")
	if err != nil {
		t.Fatalf("Profiles error: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != "9" || profiles[0].Parsed.Role != "Frontend" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}

	tickets, err := client.Tickets(ctx)
	if err != nil || len(tickets) != 1 || tickets[0].ID != "5" || tickets[0].Client.Name != "Acme" {
		t.Fatalf("unexpected tickets: %+v err=%v", tickets, err)
	}

	folder, err := client.GetFolder(ctx, "1")
	if err != nil || folder != "" {
		t.Fatalf("expected unset folder, got %q err=%v", folder, err)
	}

	if _, err := client.Me(ctx); !errors.Is(err, domain.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired from /me, got %v", err)
	}
}

package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"rmscall/internal/config"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/archive/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[key] = data
		b.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := b.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestClientUploadExistsDelete(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	defer srv.Close()

	conf := NewConfig(&config.S3Config{
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "archive",
	})
	client, err := NewClient(conf, false)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	ctx := context.Background()
	key := ArchiveKey("calls", "T1", "P9", "call.m4a")
	if key != "calls/T1/P9/call.m4a" {
		t.Fatalf("unexpected key %q", key)
	}

	if ok, err := client.Exists(ctx, key); err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}

	body := strings.NewReader("audio-bytes")
	if err := client.UploadFile(ctx, key, body, body.Size(), "audio/mp4"); err != nil {
		t.Fatalf("UploadFile error: %v", err)
	}
	bucket.mu.Lock()
	stored := string(bucket.objects[key])
	ct := bucket.types[key]
	bucket.mu.Unlock()
	if stored != "audio-bytes" || ct != "audio/mp4" {
		t.Fatalf("unexpected stored object %q (%s)", stored, ct)
	}

	if ok, err := client.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("expected object to exist, got %v %v", ok, err)
	}
	if err := client.DeleteObject(ctx, key); err != nil {
		t.Fatalf("DeleteObject error: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewClient(&Config{Bucket: "b"}, false); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
	conf := NewConfig(&config.S3Config{AccessKeyID: "a", SecretAccessKey: "b", Bucket: "c"})
	if conf.Region != defaultRegion || conf.UsePathStyle {
		t.Fatalf("unexpected defaults: %+v", conf)
	}
	if got := ArchiveKey("", "T", "P", "f.mp3"); got != "T/P/f.mp3" {
		t.Fatalf("unexpected key without prefix: %q", got)
	}
}

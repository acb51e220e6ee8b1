package service

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"rmscall/internal/config"
	"rmscall/internal/domain"
	"rmscall/internal/repository"
)

type memoryStorage struct {
	objects map[string][]byte
	types   map[string]string
	puts    int
}

func (s *memoryStorage) UploadFile(_ context.Context, key string, body io.ReadSeeker, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.puts++
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memoryStorage) DeleteObject(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func TestArchiveServiceStoresRecording(t *testing.T) {
	db, err := repository.Open(&config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"}, 1, 0)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	uploads := repository.NewUploadRepository(db)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "call_20240101.m4a")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	upload := &domain.Upload{TicketID: "T1", ProfileID: "P9", FilePath: path, FileName: "call_20240101.m4a"}
	if err := uploads.Create(ctx, upload); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	storage := &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
	svc := NewArchiveService(storage, "calls", uploads)

	key, err := svc.Archive(ctx, upload)
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	if key != "calls/T1/P9/call_20240101.m4a" {
		t.Fatalf("unexpected key %q", key)
	}
	if string(storage.objects[key]) != "audio" || storage.types[key] != "audio/mp4" {
		t.Fatalf("unexpected stored object: %q %q", storage.objects[key], storage.types[key])
	}

	stored, err := uploads.GetByID(ctx, upload.ID)
	if err != nil || stored.ArchiveKey == nil || *stored.ArchiveKey != key {
		t.Fatalf("archive key not recorded: %+v %v", stored, err)
	}

	// повторный вызов не загружает объект заново
	if _, err := svc.Archive(ctx, upload); err != nil {
		t.Fatalf("second Archive error: %v", err)
	}
	if storage.puts != 1 {
		t.Fatalf("expected a single put, got %d", storage.puts)
	}

	missing := &domain.Upload{TicketID: "T1", ProfileID: "P9", FilePath: filepath.Join(dir, "gone.mp3"), FileName: "gone.mp3"}
	if _, err := svc.Archive(ctx, missing); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPipelineForgetRemovesLedgerRowAndArchiveCopy(t *testing.T) {
	h := newPipelineHarness(t, harnessOptions{})
	storage := &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
	h.pipeline.deps.Archive = NewArchiveService(storage, "calls", h.uploads)
	ctx := context.Background()

	upload := &domain.Upload{TicketID: "T1", ProfileID: "P9", FilePath: "/rec/call.m4a", FileName: "call.m4a"}
	if err := h.uploads.Create(ctx, upload); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	key := "calls/T1/P9/call.m4a"
	storage.objects[key] = []byte("audio")
	if err := h.uploads.SetArchiveKey(ctx, upload.ID, key); err != nil {
		t.Fatalf("SetArchiveKey error: %v", err)
	}

	if err := h.pipeline.Forget(ctx, upload.ID); err != nil {
		t.Fatalf("Forget error: %v", err)
	}
	if _, ok := storage.objects[key]; ok {
		t.Fatalf("archive copy must be removed")
	}
	if _, err := h.uploads.GetByID(ctx, upload.ID); !errors.Is(err, repository.ErrUploadNotFound) {
		t.Fatalf("ledger row must be removed, got %v", err)
	}
	if err := h.pipeline.Forget(ctx, upload.ID); !errors.Is(err, repository.ErrUploadNotFound) {
		t.Fatalf("expected ErrUploadNotFound, got %v", err)
	}
}

func TestPipelineForgetAllowsUploadAgain(t *testing.T) {
	h := newPipelineHarness(t, harnessOptions{})
	writeRecording(t, h.fs, "/rec/call.m4a", 0)
	ctx := context.Background()

	if _, err := h.pipeline.StartCall(ctx, "T1", "P9", "+15551234567"); err != nil {
		t.Fatalf("StartCall error: %v", err)
	}
	h.endCall(t)

	rows, err := h.uploads.List(ctx, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one ledger row, got %v %v", rows, err)
	}
	if err := h.pipeline.Forget(ctx, rows[0].ID); err != nil {
		t.Fatalf("Forget error: %v", err)
	}

	// тот же файл отправляется под другой вакансией
	if _, err := h.pipeline.StartCall(ctx, "T2", "P2", "+15551234567"); err != nil {
		t.Fatalf("StartCall error: %v", err)
	}
	h.endCall(t)

	calls := h.uploader.Calls()
	if len(calls) != 2 || calls[1] != (uploadCall{"T2", "P2", "/rec/call.m4a"}) {
		t.Fatalf("unexpected uploads: %+v", calls)
	}
}

func TestTranscodeServiceNeedsTranscode(t *testing.T) {
	var disabled *TranscodeService
	if disabled.NeedsTranscode("/rec/call.amr") {
		t.Fatalf("nil service must not transcode")
	}

	svc := &TranscodeService{formats: normalizeFormats([]string{"amr", ".3GP", " "})}
	tests := []struct {
		path string
		want bool
	}{
		{"/rec/call.amr", true},
		{"/rec/CALL.AMR", true},
		{"/rec/call.3gp", true},
		{"/rec/call.m4a", false},
		{"/rec/call", false},
	}
	for _, tt := range tests {
		if got := svc.NeedsTranscode(tt.path); got != tt.want {
			t.Errorf("NeedsTranscode(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTranscodeServiceCanceledRemovesOutput(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "call.amr")
	gen := exec.Command("ffmpeg", "-loglevel", "error", "-f", "lavfi", "-i", "anullsrc=r=8000:cl=mono",
		"-t", "600", "-ar", "8000", "-ac", "1", "-c:a", "libopencore_amrnb", "-b:a", "12.2k", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate AMR sample: %v: %s", err, out)
	}

	svc, err := NewTranscodeService([]string{"amr"}, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewTranscodeService error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.ToM4A(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "call.m4a")); !os.IsNotExist(err) {
		t.Fatalf("partial output must be removed, stat err: %v", err)
	}
}

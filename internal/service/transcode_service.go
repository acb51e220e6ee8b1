package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"
)

// сколько ждать ffmpeg после команды остановки
const stopGracePeriod = 2 * time.Second

// TranscodeService приводит AMR/3GP записи к m4a перед отправкой
type TranscodeService struct {
	formats   map[string]bool
	outputDir string
}

func NewTranscodeService(formats []string, outputDir string) (*TranscodeService, error) {
	// Проверяем наличие ffmpeg
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &TranscodeService{
		formats:   normalizeFormats(formats),
		outputDir: outputDir,
	}, nil
}

func normalizeFormats(formats []string) map[string]bool {
	set := make(map[string]bool, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		set[f] = true
	}
	return set
}

// NeedsTranscode - расширение входит в список форматов для перекодирования
func (s *TranscodeService) NeedsTranscode(path string) bool {
	if s == nil {
		return false
	}
	return s.formats[strings.ToLower(filepath.Ext(path))]
}

// ToM4A перекодирует файл во временный m4a; вызывающий удаляет результат
func (s *TranscodeService) ToM4A(ctx context.Context, src string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(s.outputDir, base+".m4a")

	log.Printf("[TranscodeService] Transcoding %s -> %s", src, dst)

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(src, dst); err != nil {
		log.Printf("[TranscodeService] Failed to initialize transcoder: %v", err)
		return "", err
	}
	trans.MediaFile().SetAudioCodec("aac")

	done := trans.Run(false)
	select {
	case err := <-done:
		if err != nil {
			os.Remove(dst)
			log.Printf("[TranscodeService] Transcoding failed: %v", err)
			return "", fmt.Errorf("transcoding failed: %w", err)
		}
	case <-ctx.Done():
		log.Printf("[TranscodeService] Context canceled while transcoding %s", src)
		stopTranscoder(trans, done)
		os.Remove(dst)
		return "", ctx.Err()
	}

	log.Printf("[TranscodeService] Transcoded %s", filepath.Base(src))
	return dst, nil
}

// stopTranscoder просит ffmpeg завершиться, а если он не успел - убивает процесс.
// Канал done читается до конца, иначе горутина Run останется висеть.
func stopTranscoder(trans *transcoder.Transcoder, done <-chan error) {
	trans.Stop()
	select {
	case <-done:
		return
	case <-time.After(stopGracePeriod):
	}
	if proc := trans.Process(); proc != nil && proc.Process != nil {
		if err := proc.Process.Kill(); err != nil {
			log.Printf("[TranscodeService] Failed to kill ffmpeg: %v", err)
		}
	}
	<-done
}

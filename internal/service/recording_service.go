package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"rmscall/internal/domain"
)

// RecordingService ищет записи звонков в папке, настроенной пользователем
type RecordingService struct {
	fs afero.Fs
}

func NewRecordingService(fs afero.Fs) *RecordingService {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &RecordingService{fs: fs}
}

// ListRecordings возвращает аудиофайлы папки, новые первыми.
// Порядок для одинакового времени изменения сохраняется как в листинге.
func (s *RecordingService) ListRecordings(ctx context.Context, folder string) ([]domain.RecordingFile, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return nil, domain.ErrConfigurationMissing
	}

	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %s does not exist", domain.ErrRecordingNotFound, folder)
		}
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	recordings := make([]domain.RecordingFile, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Mode().IsRegular() || !domain.IsAudioFile(entry.Name()) {
			continue
		}
		recordings = append(recordings, domain.RecordingFile{
			Path:       filepath.Join(folder, entry.Name()),
			Name:       entry.Name(),
			SizeBytes:  entry.Size(),
			ModifiedAt: entry.ModTime(),
			Extension:  strings.ToLower(filepath.Ext(entry.Name())),
		})
	}

	sort.SliceStable(recordings, func(i, j int) bool {
		return recordings[i].ModifiedAt.After(recordings[j].ModifiedAt)
	})

	return recordings, nil
}

// FindLatestRecording возвращает самую свежую запись в папке
func (s *RecordingService) FindLatestRecording(ctx context.Context, folder string) (*domain.RecordingFile, error) {
	recordings, err := s.ListRecordings(ctx, folder)
	if err != nil {
		return nil, err
	}
	if len(recordings) == 0 {
		log.Printf("[RecordingService] No audio files in %s", folder)
		return nil, fmt.Errorf("%w: no audio files in %s", domain.ErrRecordingNotFound, folder)
	}

	latest := recordings[0]
	log.Printf("[RecordingService] Latest recording in %s: %s (%d bytes)", folder, latest.Name, latest.SizeBytes)
	return &latest, nil
}

// Stat перечитывает метаданные файла записи
func (s *RecordingService) Stat(path string) (*domain.RecordingFile, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRecordingNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return &domain.RecordingFile{
		Path:       path,
		Name:       info.Name(),
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
		Extension:  strings.ToLower(filepath.Ext(info.Name())),
	}, nil
}

package service

import (
	"context"
	"fmt"
	"log"
	"os"

	"rmscall/internal/backend"
	"rmscall/internal/domain"
	"rmscall/internal/repository"
	"rmscall/internal/service/s3"
)

// ArchiveService сохраняет копию исходной записи в S3 после успешной отправки
type ArchiveService struct {
	storage s3.Storage
	prefix  string
	uploads *repository.UploadRepository
}

func NewArchiveService(storage s3.Storage, prefix string, uploads *repository.UploadRepository) *ArchiveService {
	return &ArchiveService{
		storage: storage,
		prefix:  prefix,
		uploads: uploads,
	}
}

// Archive кладет файл записи под ключ <prefix>/<ticket>/<profile>/<name> и запоминает ключ в журнале
func (s *ArchiveService) Archive(ctx context.Context, upload *domain.Upload) (string, error) {
	key := s3.ArchiveKey(s.prefix, upload.TicketID, upload.ProfileID, upload.FileName)

	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		log.Printf("[ArchiveService] Warning: failed to check %s: %v", key, err)
	}
	if !exists {
		file, err := os.Open(upload.FilePath)
		if err != nil {
			return "", fmt.Errorf("failed to open recording: %w", err)
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return "", fmt.Errorf("failed to stat recording: %w", err)
		}

		if err := s.storage.UploadFile(ctx, key, file, info.Size(), backend.ContentTypeFor(upload.FileName)); err != nil {
			return "", err
		}
	}

	if err := s.uploads.SetArchiveKey(ctx, upload.ID, key); err != nil {
		return "", err
	}
	upload.ArchiveKey = &key

	log.Printf("[ArchiveService] Archived %s as %s", upload.FileName, key)
	return key, nil
}

// Remove удаляет архивную копию записи
func (s *ArchiveService) Remove(ctx context.Context, key string) error {
	if err := s.storage.DeleteObject(ctx, key); err != nil {
		return err
	}
	log.Printf("[ArchiveService] Removed %s", key)
	return nil
}

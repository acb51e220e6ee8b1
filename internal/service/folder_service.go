package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"rmscall/internal/backend"
	"rmscall/internal/domain"
	"rmscall/internal/repository"
)

// FolderService хранит путь к папке записей: на сервере и в локальном кэше
type FolderService struct {
	client      *backend.Client
	folderRepo  *repository.FolderRepository
	storageRoot string
}

func NewFolderService(client *backend.Client, folderRepo *repository.FolderRepository, storageRoot string) *FolderService {
	return &FolderService{
		client:      client,
		folderRepo:  folderRepo,
		storageRoot: storageRoot,
	}
}

// ResolvePath превращает ввод пользователя в абсолютный путь.
// Относительный путь считается от корня хранилища устройства.
func (s *FolderService) ResolvePath(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", domain.ErrConfigurationMissing
	}
	if path.IsAbs(input) {
		return path.Clean(input), nil
	}
	return path.Join(s.storageRoot, input), nil
}

// GetFolder возвращает настроенную папку пользователя или ErrConfigurationMissing.
// Если сервер недоступен, используется последнее закэшированное значение.
func (s *FolderService) GetFolder(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", domain.ErrNotAuthenticated
	}

	remote, err := s.client.GetFolder(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			return "", err
		}
		cached, cacheErr := s.folderRepo.Get(ctx, userID)
		if cacheErr != nil || cached == nil {
			return "", fmt.Errorf("failed to fetch recordings folder: %w", err)
		}
		log.Printf("[FolderService] Backend unavailable, using cached folder %s: %v", cached.Path, err)
		return cached.Path, nil
	}

	if strings.TrimSpace(remote) == "" {
		return "", domain.ErrConfigurationMissing
	}

	resolved, err := s.ResolvePath(remote)
	if err != nil {
		return "", err
	}
	if err := s.folderRepo.Save(ctx, &domain.RecordingsFolder{UserID: userID, Path: resolved}); err != nil {
		log.Printf("[FolderService] Failed to cache folder for user %s: %v", userID, err)
	}
	return resolved, nil
}

// SetFolder сохраняет папку на сервере и в кэше
func (s *FolderService) SetFolder(ctx context.Context, userID, input string) (*domain.RecordingsFolder, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	resolved, err := s.ResolvePath(input)
	if err != nil {
		return nil, err
	}

	if err := s.client.SetFolder(ctx, userID, resolved); err != nil {
		return nil, fmt.Errorf("failed to save recordings folder: %w", err)
	}

	folder := &domain.RecordingsFolder{UserID: userID, Path: resolved}
	if err := s.folderRepo.Save(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to cache recordings folder: %w", err)
	}

	log.Printf("[FolderService] Recordings folder for user %s set to %s", userID, resolved)
	return folder, nil
}

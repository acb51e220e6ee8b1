package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"rmscall/internal/domain"
)

// FolderRepository - локальный кэш папки записей пользователя
type FolderRepository struct {
	db *sqlx.DB
}

func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// Get возвращает закэшированную папку или nil, если её нет
func (r *FolderRepository) Get(ctx context.Context, userID string) (*domain.RecordingsFolder, error) {
	var folder domain.RecordingsFolder
	query := r.db.Rebind(`SELECT user_id, folder_path, updated_at FROM recording_folders WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &folder, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recordings folder: %w", err)
	}
	return &folder, nil
}

// Save заменяет кэшированную папку пользователя
func (r *FolderRepository) Save(ctx context.Context, folder *domain.RecordingsFolder) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	folder.UpdatedAt = dbTime(time.Now())

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM recording_folders WHERE user_id = ?`), folder.UserID); err != nil {
		return fmt.Errorf("failed to clear recordings folder: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO recording_folders (user_id, folder_path, updated_at) VALUES (?, ?, ?)`),
		folder.UserID, folder.Path, folder.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save recordings folder: %w", err)
	}

	return tx.Commit()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rmscall/internal/domain"
)

// ErrUploadNotFound возвращается, когда строки журнала нет
var ErrUploadNotFound = errors.New("upload record not found")

// UploadRepository - журнал загрузок записей, защищает от повторной отправки одного файла
type UploadRepository struct {
	db *sqlx.DB
}

func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// dbTime нормализует время до точности, которую сохраняют все три драйвера
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Create добавляет запись журнала в статусе pending
func (r *UploadRepository) Create(ctx context.Context, upload *domain.Upload) error {
	if upload.ID == uuid.Nil {
		upload.ID = uuid.New()
	}
	now := dbTime(time.Now())
	upload.ModifiedAt = dbTime(upload.ModifiedAt)
	upload.CreatedAt = now
	upload.UpdatedAt = now
	if upload.Status == "" {
		upload.Status = domain.UploadStatusPending
	}

	query := r.db.Rebind(`
        INSERT INTO uploads (id, ticket_id, profile_id, file_path, file_name, size_bytes,
                             modified_at, status, attempts, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		upload.ID.String(), upload.TicketID, upload.ProfileID, upload.FilePath, upload.FileName,
		upload.SizeBytes, upload.ModifiedAt, upload.Status, upload.Attempts,
		upload.CreatedAt, upload.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload record: %w", err)
	}

	return nil
}

// FindByFile ищет запись по пути и времени изменения файла
func (r *UploadRepository) FindByFile(ctx context.Context, path string, modifiedAt time.Time) (*domain.Upload, error) {
	query := r.db.Rebind(`
        SELECT id, ticket_id, profile_id, file_path, file_name, size_bytes, modified_at,
               status, attempts, last_error, archive_key, created_at, updated_at
        FROM uploads
        WHERE file_path = ? AND modified_at = ?`)

	var upload domain.Upload
	err := r.db.GetContext(ctx, &upload, query, path, dbTime(modifiedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload record: %w", err)
	}

	return &upload, nil
}

// GetByID получает запись журнала по идентификатору
func (r *UploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	query := r.db.Rebind(`
        SELECT id, ticket_id, profile_id, file_path, file_name, size_bytes, modified_at,
               status, attempts, last_error, archive_key, created_at, updated_at
        FROM uploads
        WHERE id = ?`)

	var upload domain.Upload
	err := r.db.GetContext(ctx, &upload, query, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload record: %w", err)
	}

	return &upload, nil
}

// List возвращает последние записи журнала, новые первыми
func (r *UploadRepository) List(ctx context.Context, limit int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(`
        SELECT id, ticket_id, profile_id, file_path, file_name, size_bytes, modified_at,
               status, attempts, last_error, archive_key, created_at, updated_at
        FROM uploads
        ORDER BY created_at DESC
        LIMIT ?`)

	uploads := make([]domain.Upload, 0)
	if err := r.db.SelectContext(ctx, &uploads, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	return uploads, nil
}

// MarkAttempt увеличивает счетчик попыток и обновляет статус
func (r *UploadRepository) MarkAttempt(ctx context.Context, id uuid.UUID, status domain.UploadStatus, lastErr error) error {
	var errText *string
	if lastErr != nil {
		s := lastErr.Error()
		errText = &s
	}

	query := r.db.Rebind(`
        UPDATE uploads
        SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
        WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, status, errText, dbTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUploadNotFound
	}

	return nil
}

// SetArchiveKey сохраняет ключ копии записи в объектном хранилище
func (r *UploadRepository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	query := r.db.Rebind(`UPDATE uploads SET archive_key = ?, updated_at = ? WHERE id = ?`)

	if _, err := r.db.ExecContext(ctx, query, key, dbTime(time.Now()), id.String()); err != nil {
		return fmt.Errorf("failed to set archive key: %w", err)
	}

	return nil
}

// Delete удаляет запись журнала; файл снова можно будет отправить
func (r *UploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := r.db.Rebind(`DELETE FROM uploads WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete upload record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUploadNotFound
	}

	return nil
}

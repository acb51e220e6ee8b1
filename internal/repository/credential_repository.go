package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const authTokenKey = "auth_token"

// CredentialRepository хранит токен авторизации на устройстве
type CredentialRepository struct {
	db *sqlx.DB
}

func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Token возвращает сохраненный токен или пустую строку
func (r *CredentialRepository) Token(ctx context.Context) (string, error) {
	var token string
	err := r.db.GetContext(ctx, &token, r.db.Rebind(`SELECT value FROM credentials WHERE name = ?`), authTokenKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// SaveToken заменяет сохраненный токен
func (r *CredentialRepository) SaveToken(ctx context.Context, token string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM credentials WHERE name = ?`), authTokenKey); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)`),
		authTokenKey, token, dbTime(time.Now())); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return tx.Commit()
}

// DeleteToken удаляет токен (выход из аккаунта)
func (r *CredentialRepository) DeleteToken(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM credentials WHERE name = ?`), authTokenKey); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

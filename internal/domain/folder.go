package domain

import "time"

// RecordingsFolder - настроенная пользователем папка записей (локальный кэш серверного значения)
type RecordingsFolder struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Path      string    `json:"folder_path" db:"folder_path"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

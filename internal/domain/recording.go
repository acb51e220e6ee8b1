package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AudioExtensions список расширений, которые считаются записями звонков
var AudioExtensions = []string{".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac", ".wma", ".3gp", ".amr"}

// IsAudioFile проверяет имя файла по списку AudioExtensions без учета регистра
func IsAudioFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range AudioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// RecordingFile - запись, найденная в папке записей. Path служит идентификатором.
type RecordingFile struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	Extension  string    `json:"extension"`
}

type UploadStatus string

const (
	UploadStatusPending  UploadStatus = "pending"
	UploadStatusUploaded UploadStatus = "uploaded"
	UploadStatusFailed   UploadStatus = "failed"
)

// Upload - строка журнала загрузок
type Upload struct {
	ID         uuid.UUID    `json:"id" db:"id"`
	TicketID   string       `json:"ticket_id" db:"ticket_id"`
	ProfileID  string       `json:"profile_id" db:"profile_id"`
	FilePath   string       `json:"file_path" db:"file_path"`
	FileName   string       `json:"file_name" db:"file_name"`
	SizeBytes  int64        `json:"size_bytes" db:"size_bytes"`
	ModifiedAt time.Time    `json:"modified_at" db:"modified_at"`
	Status     UploadStatus `json:"status" db:"status"`
	Attempts   int          `json:"attempts" db:"attempts"`
	LastError  *string      `json:"last_error,omitempty" db:"last_error"`
	ArchiveKey *string      `json:"archive_key,omitempty" db:"archive_key"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// UploadReceipt - ответ бэкенда на /api/postrecord/
type UploadReceipt struct {
	ID      ID     `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

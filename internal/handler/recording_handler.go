package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rmscall/internal/domain"
	"rmscall/internal/notify"
	"rmscall/internal/repository"
	"rmscall/internal/service"
)

const defaultListLimit = 50

// RecordingHandler - просмотр записей, журнал загрузок и уведомления
type RecordingHandler struct {
	recordingService *service.RecordingService
	folderService    *service.FolderService
	uploadRepo       *repository.UploadRepository
	pipeline         *service.PipelineService
	notifier         *notify.Notifier
	auth             *AuthHandler
}

func NewRecordingHandler(
	recordingService *service.RecordingService,
	folderService *service.FolderService,
	uploadRepo *repository.UploadRepository,
	pipeline *service.PipelineService,
	notifier *notify.Notifier,
	auth *AuthHandler,
) *RecordingHandler {
	return &RecordingHandler{
		recordingService: recordingService,
		folderService:    folderService,
		uploadRepo:       uploadRepo,
		pipeline:         pipeline,
		notifier:         notifier,
		auth:             auth,
	}
}

// ListRecordings отдает аудиофайлы папки записей, новые первыми
func (h *RecordingHandler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	folder, err := h.folderService.GetFolder(r.Context(), user.UserID.String())
	if err != nil {
		h.auth.checkExpired(r.Context(), err)
		writeError(w, err, "Recordings folder unavailable")
		return
	}

	recordings, err := h.recordingService.ListRecordings(r.Context(), folder)
	if err != nil {
		writeError(w, err, "Failed to list recordings")
		return
	}

	response := struct {
		Folder     string                 `json:"folder"`
		Recordings []domain.RecordingFile `json:"recordings"`
	}{
		Folder:     folder,
		Recordings: recordings,
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *RecordingHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	uploads, err := h.uploadRepo.List(r.Context(), limit)
	if err != nil {
		writeError(w, err, "Failed to list uploads")
		return
	}
	if uploads == nil {
		uploads = []domain.Upload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}

func (h *RecordingHandler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid upload ID", http.StatusBadRequest)
		return
	}

	upload, err := h.pipeline.Retry(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyUploaded) {
			writeJSON(w, http.StatusOK, upload)
			return
		}
		writeError(w, err, "Retry failed")
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

// DeleteUpload убирает запись из журнала, после чего файл можно отправить снова
func (h *RecordingHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid upload ID", http.StatusBadRequest)
		return
	}

	if err := h.pipeline.Forget(r.Context(), id); err != nil {
		writeError(w, err, "Failed to delete upload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordingHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifier.List())
}

package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"rmscall/internal/domain"
	"rmscall/internal/service"
)

// FolderHandler - настройка папки с записями звонков
type FolderHandler struct {
	folderService *service.FolderService
	auth          *AuthHandler
}

type setFolderRequest struct {
	Folder string `json:"folder"`
}

type folderResponse struct {
	Folder     string `json:"folder"`
	Configured bool   `json:"configured"`
}

func NewFolderHandler(folderService *service.FolderService, auth *AuthHandler) *FolderHandler {
	return &FolderHandler{
		folderService: folderService,
		auth:          auth,
	}
}

func (h *FolderHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	folder, err := h.folderService.GetFolder(r.Context(), user.UserID.String())
	if err != nil {
		if errors.Is(err, domain.ErrConfigurationMissing) {
			writeJSON(w, http.StatusOK, folderResponse{})
			return
		}
		h.auth.checkExpired(r.Context(), err)
		writeError(w, err, "Failed to get recordings folder")
		return
	}

	writeJSON(w, http.StatusOK, folderResponse{Folder: folder, Configured: true})
}

func (h *FolderHandler) SetFolder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req setFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	folder, err := h.folderService.SetFolder(r.Context(), user.UserID.String(), req.Folder)
	if err != nil {
		if errors.Is(err, domain.ErrConfigurationMissing) {
			http.Error(w, "Folder path is required", http.StatusBadRequest)
			return
		}
		h.auth.checkExpired(r.Context(), err)
		writeError(w, err, "Failed to save recordings folder")
		return
	}

	log.Printf("Recordings folder updated: %s", folder.Path)
	writeJSON(w, http.StatusOK, folderResponse{Folder: folder.Path, Configured: true})
}

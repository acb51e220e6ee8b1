package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"rmscall/internal/callevent"
	"rmscall/internal/domain"
	"rmscall/internal/platform"
	"rmscall/internal/repository"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError переводит доменные ошибки в HTTP статусы
func writeError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrNotAuthenticated),
		errors.Is(err, domain.ErrAuthExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrRecordingNotFound),
		errors.Is(err, repository.ErrUploadNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConfigurationMissing),
		errors.Is(err, domain.ErrAlreadyUploaded),
		errors.Is(err, domain.ErrNoActiveCall):
		status = http.StatusConflict
	case errors.Is(err, platform.ErrUnrecognizedTarget):
		status = http.StatusBadRequest
	case errors.Is(err, callevent.ErrNotListening):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpload):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", message, err)
	}
	http.Error(w, message+": "+err.Error(), status)
}

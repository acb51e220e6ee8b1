package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"rmscall/internal/platform"
	"rmscall/internal/service"
)

// CallHandler запускает звонки кандидатам
type CallHandler struct {
	pipeline    *service.PipelineService
	dialer      platform.Dialer
	countryCode string
}

type startCallRequest struct {
	TicketID  string `json:"ticket_id"`
	ProfileID string `json:"profile_id"`
	Phone     string `json:"phone"`
}

type scanCallRequest struct {
	Value     string `json:"value"`
	TicketID  string `json:"ticket_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

type callResponse struct {
	Phone   string `json:"phone"`
	Tracked bool   `json:"tracked"`
}

func NewCallHandler(pipeline *service.PipelineService, dialer platform.Dialer, countryCode string) *CallHandler {
	return &CallHandler{
		pipeline:    pipeline,
		dialer:      dialer,
		countryCode: countryCode,
	}
}

// StartCall - кнопка "позвонить" в профиле кандидата
func (h *CallHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TicketID) == "" || strings.TrimSpace(req.ProfileID) == "" || strings.TrimSpace(req.Phone) == "" {
		http.Error(w, "ticket_id, profile_id and phone are required", http.StatusBadRequest)
		return
	}

	tracked, err := h.pipeline.StartCall(r.Context(), req.TicketID, req.ProfileID, req.Phone)
	if err != nil {
		writeError(w, err, "Failed to start call")
		return
	}

	writeJSON(w, http.StatusAccepted, callResponse{Phone: req.Phone, Tracked: tracked})
}

// ScanCall звонит по номеру из QR кода. Без ticket_id/profile_id запись не отправляется.
func (h *CallHandler) ScanCall(w http.ResponseWriter, r *http.Request) {
	var req scanCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	phone, err := platform.NormalizeScanned(req.Value, h.countryCode)
	if err != nil {
		writeError(w, err, "Unrecognized QR code")
		return
	}

	if req.TicketID != "" && req.ProfileID != "" {
		tracked, err := h.pipeline.StartCall(r.Context(), req.TicketID, req.ProfileID, phone)
		if err != nil {
			writeError(w, err, "Failed to start call")
			return
		}
		writeJSON(w, http.StatusAccepted, callResponse{Phone: phone, Tracked: tracked})
		return
	}

	if err := h.dialer.Dial(r.Context(), platform.DialURI(phone)); err != nil {
		writeError(w, err, "Failed to start call")
		return
	}
	log.Printf("Dialing scanned number %s", phone)
	writeJSON(w, http.StatusAccepted, callResponse{Phone: phone})
}

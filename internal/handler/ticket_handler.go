package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rmscall/internal/backend"
	"rmscall/internal/domain"
)

func isAuthExpired(err error) bool {
	return errors.Is(err, domain.ErrAuthExpired)
}

// TicketHandler отдает вакансии и кандидатов из RMS
type TicketHandler struct {
	client *backend.Client
	auth   *AuthHandler
}

func NewTicketHandler(client *backend.Client, auth *AuthHandler) *TicketHandler {
	return &TicketHandler{
		client: client,
		auth:   auth,
	}
}

func (h *TicketHandler) GetTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.client.Tickets(r.Context())
	if err != nil {
		h.auth.checkExpired(r.Context(), err)
		writeError(w, err, "Failed to get tickets")
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *TicketHandler) GetProfiles(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "id")
	if ticketID == "" {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	profiles, err := h.client.Profiles(r.Context(), ticketID)
	if err != nil {
		h.auth.checkExpired(r.Context(), err)
		writeError(w, err, "Failed to get profiles")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

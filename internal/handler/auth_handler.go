package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"rmscall/internal/auth"
	"rmscall/internal/domain"
	"rmscall/internal/service"
)

type contextKey string

const userContextKey contextKey = "user"

type AuthHandler struct {
	authService *auth.Service
	pipeline    *service.PipelineService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(authService *auth.Service, pipeline *service.PipelineService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		pipeline:    pipeline,
	}
}

// RequireUser пропускает запрос только при активной сессии RMS
func (h *AuthHandler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.authService.CurrentUser()
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey).(*domain.User)
	return user
}

// checkExpired сбрасывает сессию, если бэкенд отклонил токен
func (h *AuthHandler) checkExpired(ctx context.Context, err error) {
	if err != nil && isAuthExpired(err) {
		h.authService.Invalidate(ctx)
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err, "Login failed")
		return
	}

	// после входа конвейер подключается заново, как при открытии экрана профиля
	if err := h.pipeline.Attach(context.WithoutCancel(r.Context())); err != nil {
		log.Printf("Pipeline not attached after login: %v", err)
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Detach()
	if err := h.authService.Logout(r.Context()); err != nil {
		writeError(w, err, "Logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"rmscall/internal/backend"
	"rmscall/internal/domain"
)

// TokenStore хранит bearer токен между перезапусками агента
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// Service - вход в RMS, хранение токена и кэш текущего пользователя
type Service struct {
	client *backend.Client
	tokens TokenStore

	mu   sync.RWMutex
	user *domain.User
}

func NewService(client *backend.Client, tokens TokenStore) *Service {
	return &Service{
		client: client,
		tokens: tokens,
	}
}

// Login получает токен, сохраняет его и загружает профиль пользователя
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrInvalidCredentials)
	}

	token, err := s.client.Login(ctx, email, password)
	if err != nil {
		log.Printf("[Auth] Login failed for %s: %v", email, err)
		return nil, err
	}

	if err := s.tokens.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	user, err := s.client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	if user.Email == "" {
		user.Email = email
	}

	s.setUser(user)
	log.Printf("[Auth] Logged in as user %s", user.UserID)
	return user, nil
}

// Restore поднимает сессию по сохраненному токену при старте агента
func (s *Service) Restore(ctx context.Context) (*domain.User, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}

	user, err := s.client.Me(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			s.Invalidate(ctx)
		}
		return nil, err
	}

	s.setUser(user)
	return user, nil
}

// CurrentUser возвращает закэшированного пользователя
func (s *Service) CurrentUser() (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

// Logout удаляет токен и сбрасывает пользователя
func (s *Service) Logout(ctx context.Context) error {
	s.setUser(nil)
	if err := s.tokens.DeleteToken(ctx); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	log.Printf("[Auth] Logged out")
	return nil
}

// Invalidate вызывается, когда бэкенд ответил 401 на запрос с токеном
func (s *Service) Invalidate(ctx context.Context) {
	s.setUser(nil)
	if err := s.tokens.DeleteToken(ctx); err != nil {
		log.Printf("[Auth] Failed to drop expired token: %v", err)
		return
	}
	log.Printf("[Auth] Token expired, login required")
}

func (s *Service) setUser(user *domain.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

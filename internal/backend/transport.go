package backend

import (
	"context"
	"log"
	"net/http"
)

// TokenSource отдает текущий bearer токен; пустая строка - запрос уходит без Authorization
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type bearerTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

// NewBearerTransport добавляет Authorization: Bearer к каждому запросу
func NewBearerTransport(base http.RoundTripper, tokens TokenSource) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{base: base, tokens: tokens}
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil {
		return t.base.RoundTrip(req)
	}

	token, err := t.tokens.Token(req.Context())
	if err != nil {
		log.Printf("[Backend] Failed to read auth token, sending unauthenticated request: %v", err)
	}
	if token == "" {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rmscall/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 512
)

// Client - HTTP клиент бэкенда RMS
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает клиента. Таймаут всегда конечен: нулевое значение заменяется значением по умолчанию.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: NewBearerTransport(http.DefaultTransport, tokens),
		},
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// doJSON выполняет запрос с JSON телом и декодирует JSON ответ в out
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, fmt.Errorf("%s %s: %w", method, path, domain.ErrAuthExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, statusError(method, path, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}

	return resp.StatusCode, nil
}

func statusError(method, path string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// Login обменивает email/пароль на токен
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	_, err := c.doJSON(ctx, http.MethodPost, "/login/", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login response did not contain a token")
	}
	return resp.Token, nil
}

// Me возвращает профиль текущего пользователя
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if _, err := c.doJSON(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Tickets возвращает список вакансий
func (c *Client) Tickets(ctx context.Context) ([]domain.Ticket, error) {
	tickets := make([]domain.Ticket, 0)
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/gettickets/", nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// Profiles возвращает кандидатов по вакансии
func (c *Client) Profiles(ctx context.Context, ticketID string) ([]domain.Profile, error) {
	var resp struct {
		Profiles []domain.Profile `json:"profiles"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/getprofiles/"+ticketID, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Profiles == nil {
		resp.Profiles = make([]domain.Profile, 0)
	}
	return resp.Profiles, nil
}

// GetFolder возвращает сохраненный на сервере путь к папке записей; пустая строка - не настроено
func (c *Client) GetFolder(ctx context.Context, userID string) (string, error) {
	var resp struct {
		FolderPath string `json:"folder_path"`
		Folder     string `json:"folder"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, "/api/getfolder/"+userID, nil, &resp)
	if err != nil {
		if status == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	if resp.FolderPath != "" {
		return resp.FolderPath, nil
	}
	return resp.Folder, nil
}

// SetFolder сохраняет путь к папке записей на сервере
func (c *Client) SetFolder(ctx context.Context, userID, folderPath string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/postfolder/", map[string]string{
		"user_id":     userID,
		"folder_path": folderPath,
	}, nil)
	return err
}

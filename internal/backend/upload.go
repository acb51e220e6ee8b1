package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"rmscall/internal/domain"
)

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".wma":  "audio/x-ms-wma",
	".3gp":  "audio/3gpp",
	".amr":  "audio/amr",
}

// ContentTypeFor определяет Content-Type по расширению файла
func ContentTypeFor(name string) string {
	if ct, ok := audioContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadRecording отправляет запись звонка одним multipart запросом, без повторов
func (c *Client) UploadRecording(ctx context.Context, ticketID, profileID, filePath string) (*domain.UploadReceipt, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrUpload, filePath, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("ticket_id", ticketID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	if err := writer.WriteField("profile_id", profileID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}

	name := filepath.Base(filePath)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	header.Set("Content-Type", ContentTypeFor(name))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrUpload, filePath, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/postrecord/"), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, domain.ErrAuthExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, statusError(http.MethodPost, "/api/postrecord/", resp))
	}

	receipt := &domain.UploadReceipt{}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(bytes.TrimSpace(data)) > 0 {
		// Ответ бэкенда не обязан быть JSON, успехом считается 2xx
		_ = json.Unmarshal(data, receipt)
	}

	return receipt, nil
}

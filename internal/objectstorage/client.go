package objectstorage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Client uploads proof documents to the external object-storage collaborator
// and hands back a public URL plus a content identifier.
type Client struct {
	client  *http.Client
	baseURL string
	bucket  string
	logger  *slog.Logger
}

func NewClient(baseURL, bucket string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		bucket:  bucket,
		logger:  logger,
	}
}

type uploadResponse struct {
	URL       string `json:"url"`
	ContentID string `json:"content_id"`
}

func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (string, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", "", fmt.Errorf("multipart error: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", "", fmt.Errorf("multipart write error: %w", err)
	}
	if err := writer.WriteField("bucket", c.bucket); err != nil {
		return "", "", fmt.Errorf("multipart field error: %w", err)
	}
	if contentType != "" {
		if err := writer.WriteField("content_type", contentType); err != nil {
			return "", "", fmt.Errorf("multipart field error: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", "", fmt.Errorf("multipart close error: %w", err)
	}

	url := fmt.Sprintf("%s/v1/objects", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", "", fmt.Errorf("request creation error: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("object storage request failed", "error", err, "filename", filename)
		return "", "", fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("response read error: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("object storage returned error",
			"status", resp.StatusCode,
			"response", string(respBody),
			"filename", filename)
		return "", "", fmt.Errorf("object storage error: status %d", resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", "", fmt.Errorf("response unmarshal error: %w", err)
	}

	c.logger.Info("object stored", "filename", filename, "content_id", parsed.ContentID)
	return parsed.URL, parsed.ContentID, nil
}

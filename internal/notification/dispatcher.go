package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notice is the payload for all withdrawal-related alerts.
type Notice struct {
	TransactionID string        `json:"transaction_id"`
	Recipient     string        `json:"recipient"`
	Amount        float64       `json:"amount,omitempty"`
	Deadline      time.Time     `json:"deadline,omitempty"`
	Remaining     time.Duration `json:"-"`
}

// Dispatcher sends time-sensitive alerts to the NGO. All methods are
// best-effort from the caller's perspective: a failed send never blocks the
// withdrawal lifecycle.
type Dispatcher interface {
	SendWithdrawalNotice(ctx context.Context, notice Notice) error
	SendUploadConfirmation(ctx context.Context, notice Notice) error
	SendReminder(ctx context.Context, notice Notice) error
}

// HTTPDispatcher posts notices to an external notification relay.
type HTTPDispatcher struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewHTTPDispatcher(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

func (d *HTTPDispatcher) SendWithdrawalNotice(ctx context.Context, notice Notice) error {
	return d.send(ctx, "withdrawal-notice", notice)
}

func (d *HTTPDispatcher) SendUploadConfirmation(ctx context.Context, notice Notice) error {
	return d.send(ctx, "upload-confirmation", notice)
}

func (d *HTTPDispatcher) SendReminder(ctx context.Context, notice Notice) error {
	return d.send(ctx, "reminder", notice)
}

func (d *HTTPDispatcher) send(ctx context.Context, kind string, notice Notice) error {
	body := struct {
		Notice
		RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
	}{Notice: notice, RemainingSeconds: int64(notice.Remaining / time.Second)}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	url := fmt.Sprintf("%s/v1/notifications/%s", d.baseURL, kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("request creation error: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.logger.Warn("notification request failed", "kind", kind, "error", err, "transaction_id", notice.TransactionID)
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		d.logger.Warn("notification relay returned error",
			"kind", kind,
			"status", resp.StatusCode,
			"response", string(respBody),
			"transaction_id", notice.TransactionID)
		return fmt.Errorf("notification relay error: status %d", resp.StatusCode)
	}

	d.logger.Debug("notification sent", "kind", kind, "transaction_id", notice.TransactionID, "recipient", notice.Recipient)
	return nil
}

package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
)

// ZeroHash marks a ledger record made without proof (expired windows).
var ZeroHash = strings.Repeat("0", 64)

// TransactionRepository is the slice of the record store the client needs to
// finalize a recording.
type TransactionRepository interface {
	GetByID(id int64) (*txmodel.PendingTransaction, error)
	UpdateIfStatus(id int64, expectedStatus string, patch map[string]interface{}) (bool, error)
}

type recordPayload struct {
	NgoKey      string  `json:"ngo_key"`
	ReceiverKey string  `json:"receiver_key"`
	Cause       string  `json:"cause"`
	Amount      float64 `json:"amount"`
	ProofHash   string  `json:"proof_hash"`
}

type recordResponse struct {
	TxID string `json:"tx_id"`
}

// Entry is one ledger-side record, as returned by the read-back endpoint.
type Entry struct {
	TxID        string    `json:"tx_id"`
	NgoKey      string    `json:"ngo_key"`
	ReceiverKey string    `json:"receiver_key"`
	Amount      float64   `json:"amount"`
	ProofHash   string    `json:"proof_hash"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Client wraps the external immutable ledger. Recording is idempotent per
// transaction, and when the ledger is unreachable the client degrades to a
// local simulation so lifecycle progress is never blocked indefinitely. The
// degraded path is logged distinctly from a real confirmation.
type Client struct {
	client         *http.Client
	baseURL        string
	apiKey         string
	allowSimulated bool
	repo           TransactionRepository
	logger         *slog.Logger
	now            func() time.Time
}

func NewClient(baseURL, apiKey string, timeout time.Duration, allowSimulated bool, repo TransactionRepository, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:         &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		apiKey:         apiKey,
		allowSimulated: allowSimulated,
		repo:           repo,
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock overrides the client clock for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func NgoKey(ngoID int64) string {
	return fmt.Sprintf("ngo-%d", ngoID)
}

// SimulatedTxID fabricates a deterministic identifier for degraded-mode
// recordings, so retries during an outage converge on one value.
func SimulatedTxID(receiverKey string) string {
	sum := sha256.Sum256([]byte(receiverKey))
	return "SIM-" + hex.EncodeToString(sum[:])[:16]
}

// Record pushes the transaction outcome to the ledger exactly once. A record
// already carrying a ledger identifier short-circuits without a network call.
func (c *Client) Record(ctx context.Context, tx *txmodel.PendingTransaction, proofHash *string) (string, bool, error) {
	if tx.LedgerTxID != nil && *tx.LedgerTxID != "" {
		c.logger.Debug("recording skipped, ledger identifier already set",
			"transaction_id", tx.TransactionID,
			"ledger_tx_id", *tx.LedgerTxID)
		return *tx.LedgerTxID, false, nil
	}

	if tx.Status != transaction.StatusDocumentUploaded && tx.Status != transaction.StatusExpired {
		return "", false, fmt.Errorf("transaction %s in status %s cannot be recorded", tx.TransactionID, tx.Status)
	}

	hash := ZeroHash
	if proofHash != nil && *proofHash != "" {
		hash = *proofHash
	}

	payload := recordPayload{
		NgoKey:      NgoKey(tx.NgoID),
		ReceiverKey: tx.ReceiverKey,
		Cause:       tx.Cause,
		Amount:      tx.Amount,
		ProofHash:   hash,
	}

	ledgerTxID, simulated, err := c.submit(ctx, payload)
	if err != nil {
		c.logger.Error("ledger recording failed",
			"error", err,
			"transaction_id", tx.TransactionID,
			"receiver_key", tx.ReceiverKey)
		return "", false, err
	}

	if simulated {
		c.logger.Warn("ledger unreachable, recorded in degraded simulation mode",
			"transaction_id", tx.TransactionID,
			"simulated_tx_id", ledgerTxID)
	} else {
		c.logger.Info("ledger recording confirmed",
			"transaction_id", tx.TransactionID,
			"ledger_tx_id", ledgerTxID)
	}

	ok, err := c.repo.UpdateIfStatus(tx.ID, tx.Status, map[string]interface{}{
		"status":       transaction.StatusRecorded,
		"ledger_tx_id": ledgerTxID,
		"recorded_at":  c.now(),
	})
	if err != nil {
		return "", simulated, fmt.Errorf("failed to persist ledger linkage: %w", err)
	}
	if !ok {
		// A concurrent actor finished first; surface whatever it recorded.
		current, refetchErr := c.repo.GetByID(tx.ID)
		if refetchErr == nil && current.LedgerTxID != nil {
			return *current.LedgerTxID, false, nil
		}
		return "", simulated, fmt.Errorf("transaction %s changed status during recording", tx.TransactionID)
	}

	return ledgerTxID, simulated, nil
}

func (c *Client) submit(ctx context.Context, payload recordPayload) (string, bool, error) {
	if c.baseURL == "" {
		if !c.allowSimulated {
			return "", false, fmt.Errorf("ledger endpoint not configured")
		}
		return SimulatedTxID(payload.ReceiverKey), true, nil
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal error: %w", err)
	}

	url := fmt.Sprintf("%s/v1/records", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", false, fmt.Errorf("request creation error: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if c.allowSimulated {
			return SimulatedTxID(payload.ReceiverKey), true, nil
		}
		return "", false, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("response read error: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if resp.StatusCode >= http.StatusInternalServerError && c.allowSimulated {
			return SimulatedTxID(payload.ReceiverKey), true, nil
		}
		return "", false, fmt.Errorf("ledger error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	var parsed recordResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("response unmarshal error: %w", err)
	}
	if parsed.TxID == "" {
		return "", false, fmt.Errorf("ledger returned empty transaction identifier")
	}

	return parsed.TxID, false, nil
}

// Ping checks ledger reachability for health reporting. An unconfigured
// client reports an error so readiness shows the degraded simulation mode.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("ledger not configured, running in simulation mode")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ping", nil)
	if err != nil {
		return fmt.Errorf("request creation error: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger error: status %d", resp.StatusCode)
	}
	return nil
}

// ListByNgo reads back the ledger entries recorded under an NGO key. The
// sweeper's reconcile pass uses this to repair local rows whose status update
// was lost after a crash mid-recording.
func (c *Client) ListByNgo(ctx context.Context, ngoID int64) ([]Entry, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	url := fmt.Sprintf("%s/v1/records?ngo_key=%s", c.baseURL, NgoKey(ngoID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation error: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("response read error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger error: status %d", resp.StatusCode)
	}

	var entries []Entry
	if err := json.Unmarshal(respBody, &entries); err != nil {
		return nil, fmt.Errorf("response unmarshal error: %w", err)
	}
	return entries, nil
}

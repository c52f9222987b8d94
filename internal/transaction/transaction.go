package transaction

import (
	"fmt"
	"time"

	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
)

const (
	StatusPending          = "pending"
	StatusDocumentUploaded = "document_uploaded"
	StatusRecorded         = "recorded"
	StatusExpired          = "expired"
	StatusCancelled        = "cancelled"
)

const (
	RatingThumbsUp = "THUMBS_UP"
	RatingRedFlag  = "RED_FLAG"
)

// CurrencyIDR is the only supported currency.
const CurrencyIDR = "IDR"

// allowedTransitions is the lifecycle DAG. No state is ever revisited.
var allowedTransitions = map[string][]string{
	StatusPending:          {StatusDocumentUploaded, StatusExpired, StatusCancelled},
	StatusDocumentUploaded: {StatusRecorded, StatusCancelled},
	StatusExpired:          {StatusRecorded},
}

func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == StatusRecorded || status == StatusExpired || status == StatusCancelled
}

// ReceiverKey derives the synthetic ledger receiver key for a transaction.
// The ledger stores only this key; the batch document lookup endpoint maps it
// back to the off-chain proof record.
func ReceiverKey(transactionID string) string {
	return fmt.Sprintf("wd-%s", transactionID)
}

// Transaction is the API-facing view of a withdrawal record.
type Transaction struct {
	ID                int64   `json:"id"`
	TransactionID     string  `json:"transaction_id"`
	BankTransactionID *string `json:"bank_transaction_id,omitempty"`
	BankReference     *string `json:"bank_reference,omitempty"`

	NgoID         int64  `json:"ngo_id"`
	AccountNumber string `json:"account_number"`

	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Cause       string  `json:"cause"`
	Description *string `json:"description,omitempty"`

	Status                 string    `json:"status"`
	DocumentUploadDeadline time.Time `json:"document_upload_deadline"`
	RemainingSeconds       int64     `json:"remaining_seconds"`

	ReceiverKey        string     `json:"receiver_key"`
	DocumentURL        *string    `json:"document_url,omitempty"`
	DocumentHash       *string    `json:"document_hash,omitempty"`
	VerificationHash   *string    `json:"verification_hash,omitempty"`
	NgoNotes           *string    `json:"ngo_notes,omitempty"`
	DocumentUploadedAt *time.Time `json:"document_uploaded_at,omitempty"`

	LedgerTxID *string    `json:"ledger_tx_id,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`

	ReminderCount  int        `json:"reminder_count"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`

	FeedbackStats txmodel.FeedbackStats `json:"feedback_stats"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromDataModel(m *txmodel.PendingTransaction, now time.Time) *Transaction {
	return &Transaction{
		ID:                     m.ID,
		TransactionID:          m.TransactionID,
		BankTransactionID:      m.BankTransactionID,
		BankReference:          m.BankReference,
		NgoID:                  m.NgoID,
		AccountNumber:          m.AccountNumber,
		Amount:                 m.Amount,
		Currency:               m.Currency,
		Cause:                  m.Cause,
		Description:            m.Description,
		Status:                 m.Status,
		DocumentUploadDeadline: m.DocumentUploadDeadline,
		RemainingSeconds:       int64(Remaining(m, now) / time.Second),
		ReceiverKey:            m.ReceiverKey,
		DocumentURL:            m.DocumentURL,
		DocumentHash:           m.DocumentHash,
		VerificationHash:       m.VerificationHash,
		NgoNotes:               m.NgoNotes,
		DocumentUploadedAt:     m.DocumentUploadedAt,
		LedgerTxID:             m.LedgerTxID,
		RecordedAt:             m.RecordedAt,
		ReminderCount:          m.ReminderCount,
		LastReminderAt:         m.LastReminderAt,
		FeedbackStats:          m.FeedbackStats,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func FromDataModelSlice(models []*txmodel.PendingTransaction, now time.Time) []*Transaction {
	result := make([]*Transaction, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m, now)
	}
	return result
}

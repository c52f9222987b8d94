package transaction

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PendingTransaction is the persistent withdrawal-accountability record.
type PendingTransaction struct {
	ID                int64   `gorm:"primaryKey"`
	TransactionID     string  `gorm:"column:transaction_id;not null;uniqueIndex"`
	BankTransactionID *string `gorm:"column:bank_transaction_id;uniqueIndex:idx_bank_identifiers"`
	BankReference     *string `gorm:"column:bank_reference;uniqueIndex:idx_bank_identifiers"`

	NgoID         int64  `gorm:"column:ngo_id;not null;index"`
	AccountNumber string `gorm:"column:account_number;not null;index"`

	Amount      float64 `gorm:"column:amount;not null"`
	Currency    string  `gorm:"column:currency;not null;default:IDR"`
	Cause       string  `gorm:"column:cause;not null"`
	Description *string `gorm:"column:description"`

	Status                 string    `gorm:"column:status;not null;default:pending;index"`
	DocumentUploadDeadline time.Time `gorm:"column:document_upload_deadline;not null"`

	ReceiverKey        string     `gorm:"column:receiver_key;not null;uniqueIndex"`
	DocumentURL        *string    `gorm:"column:document_url"`
	DocumentHash       *string    `gorm:"column:document_hash"`
	VerificationHash   *string    `gorm:"column:verification_hash"`
	NgoNotes           *string    `gorm:"column:ngo_notes"`
	DocumentUploadedAt *time.Time `gorm:"column:document_uploaded_at"`

	LedgerTxID *string    `gorm:"column:ledger_tx_id"`
	RecordedAt *time.Time `gorm:"column:recorded_at"`

	InitialNotified bool       `gorm:"column:initial_notified;not null;default:false"`
	ReminderCount   int        `gorm:"column:reminder_count;not null;default:0"`
	LastReminderAt  *time.Time `gorm:"column:last_reminder_at"`

	Feedback      FeedbackList  `gorm:"column:feedback;type:jsonb"`
	FeedbackStats FeedbackStats `gorm:"column:feedback_stats;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (PendingTransaction) TableName() string {
	return "pending_transactions"
}

// FeedbackEntry is embedded in the transaction row; it is never persisted on
// its own.
type FeedbackEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Rating      string    `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	ReasonCode  string    `json:"reason_code,omitempty"`
	SubmitterIP string    `json:"submitter_ip,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type FeedbackList []FeedbackEntry

func (l FeedbackList) Value() (driver.Value, error) {
	if l == nil {
		l = FeedbackList{}
	}
	return json.Marshal(l)
}

func (l *FeedbackList) Scan(value interface{}) error {
	if value == nil {
		*l = FeedbackList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported feedback column type %T", value)
	}
}

// FeedbackStats is the denormalized per-transaction summary, recomputed on
// every feedback write.
type FeedbackStats struct {
	ThumbsUpCount      int `json:"thumbs_up_count"`
	RedFlagCount       int `json:"red_flag_count"`
	TotalFeedbackCount int `json:"total_feedback_count"`
}

// RecomputeStats rebuilds the summary from the full entry list so the counts
// can never drift from the list itself.
func RecomputeStats(list FeedbackList) FeedbackStats {
	stats := FeedbackStats{TotalFeedbackCount: len(list)}
	for _, entry := range list {
		switch entry.Rating {
		case "THUMBS_UP":
			stats.ThumbsUpCount++
		case "RED_FLAG":
			stats.RedFlagCount++
		}
	}
	return stats
}

func (s FeedbackStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *FeedbackStats) Scan(value interface{}) error {
	if value == nil {
		*s = FeedbackStats{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported feedback_stats column type %T", value)
	}
}

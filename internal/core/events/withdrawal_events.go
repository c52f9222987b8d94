package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeWithdrawalCreated   = "withdrawal.created"
	EventTypeDocumentUploaded    = "withdrawal.document_uploaded"
	EventTypeTransactionExpired  = "withdrawal.expired"
	EventTypeTransactionRecorded = "withdrawal.recorded"
	EventTypeFeedbackAdded       = "withdrawal.feedback_added"
)

type WithdrawalCreatedEvent struct {
	BaseEvent
	TransactionID string    `json:"transaction_id"`
	NgoID         int64     `json:"ngo_id"`
	Amount        float64   `json:"amount"`
	Deadline      time.Time `json:"deadline"`
}

func NewWithdrawalCreatedEvent(transactionID string, ngoID int64, amount float64, deadline time.Time) *WithdrawalCreatedEvent {
	return &WithdrawalCreatedEvent{
		BaseEvent:     newBase(EventTypeWithdrawalCreated),
		TransactionID: transactionID,
		NgoID:         ngoID,
		Amount:        amount,
		Deadline:      deadline,
	}
}

type DocumentUploadedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	DocumentURL   string `json:"document_url"`
}

func NewDocumentUploadedEvent(transactionID, documentURL string) *DocumentUploadedEvent {
	return &DocumentUploadedEvent{
		BaseEvent:     newBase(EventTypeDocumentUploaded),
		TransactionID: transactionID,
		DocumentURL:   documentURL,
	}
}

type TransactionExpiredEvent struct {
	BaseEvent
	TransactionID string    `json:"transaction_id"`
	Deadline      time.Time `json:"deadline"`
}

func NewTransactionExpiredEvent(transactionID string, deadline time.Time) *TransactionExpiredEvent {
	return &TransactionExpiredEvent{
		BaseEvent:     newBase(EventTypeTransactionExpired),
		TransactionID: transactionID,
		Deadline:      deadline,
	}
}

type TransactionRecordedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	LedgerTxID    string `json:"ledger_tx_id"`
	Simulated     bool   `json:"simulated"`
}

func NewTransactionRecordedEvent(transactionID, ledgerTxID string, simulated bool) *TransactionRecordedEvent {
	return &TransactionRecordedEvent{
		BaseEvent:     newBase(EventTypeTransactionRecorded),
		TransactionID: transactionID,
		LedgerTxID:    ledgerTxID,
		Simulated:     simulated,
	}
}

type FeedbackAddedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	NgoID         int64  `json:"ngo_id"`
	Rating        string `json:"rating"`
}

func NewFeedbackAddedEvent(transactionID string, ngoID int64, rating string) *FeedbackAddedEvent {
	return &FeedbackAddedEvent{
		BaseEvent:     newBase(EventTypeFeedbackAdded),
		TransactionID: transactionID,
		NgoID:         ngoID,
		Rating:        rating,
	}
}

func newBase(eventType string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

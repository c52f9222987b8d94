package transaction

import (
	"time"

	errors "github.com/frahmantamala/ngo-accountability/internal"
	"github.com/frahmantamala/ngo-accountability/internal/core/common/validation"
)

// WithdrawalNotificationDTO is the inbound bank event that opens a
// verification window.
type WithdrawalNotificationDTO struct {
	AccountNumber  string  `json:"account_number"`
	Amount         float64 `json:"amount"`
	TransactionID  string  `json:"transaction_id"`
	BankReference  string  `json:"bank_reference"`
	Cause          string  `json:"cause"`
	Description    string  `json:"description"`
	WithdrawalType string  `json:"withdrawal_type"`
}

func (dto *WithdrawalNotificationDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("account_number", dto.AccountNumber).Required().MinLength(4).MaxLength(34)
	validator.Field("amount", dto.Amount).
		Required().
		Positive(errors.ErrCodeInvalidAmount).
		MaxDecimals(2, errors.ErrCodeInvalidAmount)
	validator.Field("cause", dto.Cause).Required().MaxLength(255)
	validator.Field("description", dto.Description).MaxLength(2000)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type WithdrawalNotificationResponse struct {
	TransactionID    string    `json:"transaction_id"`
	Deadline         time.Time `json:"deadline"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
}

// AttachDocumentDTO carries a pre-uploaded proof artifact.
type AttachDocumentDTO struct {
	DocumentURL      string `json:"document_url"`
	DocumentHash     string `json:"document_hash"`
	VerificationHash string `json:"verification_hash,omitempty"`
	NgoNotes         string `json:"ngo_notes,omitempty"`
}

func (dto *AttachDocumentDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("document_url", dto.DocumentURL).Required().URL(errors.ErrCodeInvalidDocument)
	validator.Field("document_hash", dto.DocumentHash).Required().HexHash(64, errors.ErrCodeInvalidDocument)
	validator.Field("verification_hash", dto.VerificationHash).HexHash(64, errors.ErrCodeInvalidDocument)
	validator.Field("ngo_notes", dto.NgoNotes).MaxLength(2000)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type AttachDocumentResponse struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	DocumentURL   string  `json:"document_url"`
	LedgerTxID    *string `json:"ledger_tx_id,omitempty"`
}

// DocumentLookupDTO asks for off-chain document metadata for a batch of
// ledger receiver keys.
type DocumentLookupDTO struct {
	ReceiverKeys []string `json:"receiver_keys"`
}

func (dto *DocumentLookupDTO) Validate() error {
	if len(dto.ReceiverKeys) == 0 {
		return errors.NewValidationError("receiver_keys must not be empty", errors.ErrCodeValidationFailed)
	}
	if len(dto.ReceiverKeys) > 100 {
		return errors.NewValidationError("receiver_keys must not exceed 100 entries", errors.ErrCodeValidationFailed)
	}
	return nil
}

type DocumentMetadata struct {
	ReceiverKey        string     `json:"receiver_key"`
	TransactionID      string     `json:"transaction_id"`
	Status             string     `json:"status"`
	DocumentURL        *string    `json:"document_url,omitempty"`
	VerificationHash   *string    `json:"verification_hash,omitempty"`
	DocumentUploadedAt *time.Time `json:"document_uploaded_at,omitempty"`
}

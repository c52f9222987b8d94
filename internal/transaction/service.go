package transaction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/ngo-accountability/internal"
	ngomodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/ngo"
	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/core/events"
	"github.com/frahmantamala/ngo-accountability/internal/notification"
	"github.com/google/uuid"
)

// Repository defines the data access methods for pending transactions.
// UpdateIfStatus is the optimistic-concurrency primitive: the patch is applied
// only while the stored status still equals expectedStatus.
type Repository interface {
	Create(tx *txmodel.PendingTransaction) error
	GetByID(id int64) (*txmodel.PendingTransaction, error)
	GetByTransactionID(transactionID string) (*txmodel.PendingTransaction, error)
	GetByReceiverKeys(keys []string) ([]*txmodel.PendingTransaction, error)
	ListByNgoID(ngoID int64, statuses []string) ([]*txmodel.PendingTransaction, error)
	ListByAccountNumber(accountNumber string, statuses []string) ([]*txmodel.PendingTransaction, error)
	FindPending() ([]*txmodel.PendingTransaction, error)
	FindUploadedNotRecorded() ([]*txmodel.PendingTransaction, error)
	FindExpiredNotRecorded() ([]*txmodel.PendingTransaction, error)
	FindExpiredCandidates(now time.Time) ([]*txmodel.PendingTransaction, error)
	FindReminderCandidates(now time.Time, cooldown time.Duration) ([]*txmodel.PendingTransaction, error)
	CountByStatus() (map[string]int64, error)
	UpdateIfStatus(id int64, expectedStatus string, patch map[string]interface{}) (bool, error)
	AppendFeedback(id int64, entry txmodel.FeedbackEntry) (*txmodel.PendingTransaction, error)
}

// NgoDirectory is the external NGO/user directory collaborator.
type NgoDirectory interface {
	GetByAccountNumber(accountNumber string) (*ngomodel.NGO, error)
	GetByID(id int64) (*ngomodel.NGO, error)
}

// SettlementRecorder is the ledger recording client. Implementations must be
// idempotent: a record that already carries a ledger identifier returns it
// without a new external call.
type SettlementRecorder interface {
	Record(ctx context.Context, tx *txmodel.PendingTransaction, proofHash *string) (ledgerTxID string, simulated bool, err error)
}

// Uploader stores a raw proof file and returns its public URL and content
// identifier.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (url, contentID string, err error)
}

type Service struct {
	repo         Repository
	directory    NgoDirectory
	dispatcher   notification.Dispatcher
	recorder     SettlementRecorder
	uploader     Uploader
	eventBus     *events.EventBus
	uploadWindow time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(
	repo Repository,
	directory NgoDirectory,
	dispatcher notification.Dispatcher,
	recorder SettlementRecorder,
	uploader Uploader,
	eventBus *events.EventBus,
	uploadWindow time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		directory:    directory,
		dispatcher:   dispatcher,
		recorder:     recorder,
		uploader:     uploader,
		eventBus:     eventBus,
		uploadWindow: uploadWindow,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the service clock. Tests use this to sit exactly on
// deadline boundaries.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateFromNotification opens a verification window for an inbound bank
// withdrawal event.
func (s *Service) CreateFromNotification(ctx context.Context, dto *WithdrawalNotificationDTO) (*WithdrawalNotificationResponse, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("withdrawal notification validation failed", "error", err, "account_number", dto.AccountNumber)
		return nil, err
	}

	ngo, err := s.directory.GetByAccountNumber(dto.AccountNumber)
	if err != nil {
		s.logger.Warn("no NGO for withdrawal account", "account_number", dto.AccountNumber)
		return nil, errors.ErrNgoNotFound
	}

	now := s.now()
	transactionID := uuid.NewString()
	record := &txmodel.PendingTransaction{
		TransactionID:          transactionID,
		NgoID:                  ngo.ID,
		AccountNumber:          dto.AccountNumber,
		Amount:                 dto.Amount,
		Currency:               CurrencyIDR,
		Cause:                  dto.Cause,
		Status:                 StatusPending,
		DocumentUploadDeadline: now.Add(s.uploadWindow),
		ReceiverKey:            ReceiverKey(transactionID),
		Feedback:               txmodel.FeedbackList{},
	}
	if dto.TransactionID != "" {
		record.BankTransactionID = &dto.TransactionID
	}
	if dto.BankReference != "" {
		record.BankReference = &dto.BankReference
	}
	if dto.Description != "" {
		record.Description = &dto.Description
	}

	if err := s.repo.Create(record); err != nil {
		s.logger.Error("failed to create pending transaction", "error", err, "account_number", dto.AccountNumber)
		return nil, err
	}

	s.logger.Info("verification window opened",
		"transaction_id", record.TransactionID,
		"ngo_id", ngo.ID,
		"amount", record.Amount,
		"deadline", record.DocumentUploadDeadline)

	go s.sendInitialNotice(record, ngo)

	s.eventBus.Publish(ctx, events.NewWithdrawalCreatedEvent(record.TransactionID, ngo.ID, record.Amount, record.DocumentUploadDeadline))

	return &WithdrawalNotificationResponse{
		TransactionID:    record.TransactionID,
		Deadline:         record.DocumentUploadDeadline,
		TimeLimitMinutes: int(s.uploadWindow / time.Minute),
	}, nil
}

// sendInitialNotice is best-effort: the verification window is open whether or
// not the NGO got the email.
func (s *Service) sendInitialNotice(record *txmodel.PendingTransaction, ngo *ngomodel.NGO) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.dispatcher.SendWithdrawalNotice(ctx, notification.Notice{
		TransactionID: record.TransactionID,
		Recipient:     ngo.ContactEmail,
		Amount:        record.Amount,
		Deadline:      record.DocumentUploadDeadline,
	})
	if err != nil {
		s.logger.Warn("withdrawal notice dispatch failed", "error", err, "transaction_id", record.TransactionID)
		return
	}

	if _, err := s.repo.UpdateIfStatus(record.ID, StatusPending, map[string]interface{}{
		"initial_notified": true,
	}); err != nil {
		s.logger.Warn("failed to mark initial notification", "error", err, "transaction_id", record.TransactionID)
	}
}

// AttachDocument is the verification gate. Late uploads are rejected, not
// silently accepted: an expired-but-still-pending record is first moved to
// EXPIRED via the conditional update, then the call fails with DeadlinePassed.
func (s *Service) AttachDocument(ctx context.Context, transactionID string, dto *AttachDocumentDTO) (*AttachDocumentResponse, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("attach document validation failed", "error", err, "transaction_id", transactionID)
		return nil, err
	}

	record, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}

	switch record.Status {
	case StatusPending:
		// proceed below
	case StatusDocumentUploaded:
		return nil, errors.ErrAlreadyUploaded
	default:
		return nil, errors.ErrNotAcceptingDocs
	}

	now := s.now()
	if IsExpired(record, now) {
		if ok, casErr := s.repo.UpdateIfStatus(record.ID, StatusPending, map[string]interface{}{
			"status": StatusExpired,
		}); casErr != nil {
			s.logger.Error("failed to expire past-deadline record", "error", casErr, "transaction_id", transactionID)
		} else if ok {
			s.logger.Info("rejected late upload, record expired", "transaction_id", transactionID, "deadline", record.DocumentUploadDeadline)
			s.eventBus.Publish(ctx, events.NewTransactionExpiredEvent(record.TransactionID, record.DocumentUploadDeadline))
		}
		return nil, errors.ErrDeadlinePassed
	}

	verificationHash := dto.VerificationHash
	if verificationHash == "" {
		verificationHash = dto.DocumentHash
	}

	patch := map[string]interface{}{
		"status":               StatusDocumentUploaded,
		"document_url":         dto.DocumentURL,
		"document_hash":        dto.DocumentHash,
		"verification_hash":    verificationHash,
		"document_uploaded_at": now,
	}
	if dto.NgoNotes != "" {
		patch["ngo_notes"] = dto.NgoNotes
	}

	ok, err := s.repo.UpdateIfStatus(record.ID, StatusPending, patch)
	if err != nil {
		s.logger.Error("failed to attach document", "error", err, "transaction_id", transactionID)
		return nil, errors.NewInternalError("failed to attach document", err)
	}
	if !ok {
		// Lost the race against the sweeper (or a concurrent upload).
		current, refetchErr := s.repo.GetByTransactionID(transactionID)
		if refetchErr == nil && current.Status == StatusDocumentUploaded {
			return nil, errors.ErrAlreadyUploaded
		}
		return nil, errors.ErrNotAcceptingDocs
	}

	s.logger.Info("proof document attached",
		"transaction_id", transactionID,
		"document_url", dto.DocumentURL,
		"verification_hash", verificationHash)

	go s.sendUploadConfirmation(record.TransactionID, record.NgoID)

	s.eventBus.Publish(ctx, events.NewDocumentUploadedEvent(record.TransactionID, dto.DocumentURL))

	updated, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}

	return &AttachDocumentResponse{
		TransactionID: updated.TransactionID,
		Status:        updated.Status,
		DocumentURL:   dto.DocumentURL,
		LedgerTxID:    updated.LedgerTxID,
	}, nil
}

// AttachDocumentFile stores the raw file with the object-storage collaborator
// first, then runs the same gate with the computed content hash.
func (s *Service) AttachDocumentFile(ctx context.Context, transactionID, filename, contentType string, data []byte, notes string) (*AttachDocumentResponse, error) {
	if len(data) == 0 {
		return nil, errors.NewValidationError("document file is empty", errors.ErrCodeInvalidDocument)
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	url, contentID, err := s.uploader.Upload(ctx, filename, contentType, data)
	if err != nil {
		s.logger.Error("object storage upload failed", "error", err, "transaction_id", transactionID, "filename", filename)
		return nil, errors.NewExternalError("failed to store document", errors.ErrCodeStorageFailed, err)
	}

	s.logger.Info("document stored",
		"transaction_id", transactionID,
		"content_id", contentID,
		"url", url)

	return s.AttachDocument(ctx, transactionID, &AttachDocumentDTO{
		DocumentURL:  url,
		DocumentHash: contentHash,
		NgoNotes:     notes,
	})
}

func (s *Service) sendUploadConfirmation(transactionID string, ngoID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ngo, err := s.directory.GetByID(ngoID)
	if err != nil {
		s.logger.Warn("upload confirmation skipped, NGO lookup failed", "error", err, "ngo_id", ngoID)
		return
	}

	if err := s.dispatcher.SendUploadConfirmation(ctx, notification.Notice{
		TransactionID: transactionID,
		Recipient:     ngo.ContactEmail,
	}); err != nil {
		s.logger.Warn("upload confirmation dispatch failed", "error", err, "transaction_id", transactionID)
	}
}

// GetByTransactionID returns the public status view including the live
// countdown.
func (s *Service) GetByTransactionID(transactionID string) (*Transaction, error) {
	record, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}
	return FromDataModel(record, s.now()), nil
}

func (s *Service) ListPendingByNgo(ngoID int64) ([]*Transaction, error) {
	records, err := s.repo.ListByNgoID(ngoID, []string{StatusPending, StatusDocumentUploaded})
	if err != nil {
		s.logger.Error("failed to list pending transactions", "error", err, "ngo_id", ngoID)
		return nil, err
	}
	return FromDataModelSlice(records, s.now()), nil
}

func (s *Service) ListPendingByAccountNumber(accountNumber string) ([]*Transaction, error) {
	records, err := s.repo.ListByAccountNumber(accountNumber, []string{StatusPending, StatusDocumentUploaded})
	if err != nil {
		s.logger.Error("failed to list pending transactions", "error", err, "account_number", accountNumber)
		return nil, err
	}
	return FromDataModelSlice(records, s.now()), nil
}

// LookupDocuments bridges the ledger's minimal on-chain payload back to the
// off-chain proof records for a batch of receiver keys.
func (s *Service) LookupDocuments(dto *DocumentLookupDTO) ([]DocumentMetadata, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	records, err := s.repo.GetByReceiverKeys(dto.ReceiverKeys)
	if err != nil {
		s.logger.Error("document lookup failed", "error", err)
		return nil, err
	}

	result := make([]DocumentMetadata, 0, len(records))
	for _, record := range records {
		result = append(result, DocumentMetadata{
			ReceiverKey:        record.ReceiverKey,
			TransactionID:      record.TransactionID,
			Status:             record.Status,
			DocumentURL:        record.DocumentURL,
			VerificationHash:   record.VerificationHash,
			DocumentUploadedAt: record.DocumentUploadedAt,
		})
	}
	return result, nil
}

// RetrySettlement re-drives the ledger recording for a record stuck after a
// partial failure. The recorder's idempotency guard makes this safe to call
// repeatedly.
func (s *Service) RetrySettlement(ctx context.Context, transactionID string) (*Transaction, error) {
	record, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}

	if record.Status != StatusDocumentUploaded && record.Status != StatusExpired && record.Status != StatusRecorded {
		return nil, errors.NewValidationError("transaction is not ready for settlement", errors.ErrCodeNotAcceptingDocs)
	}

	var proofHash *string
	if record.Status != StatusExpired {
		proofHash = record.VerificationHash
	}

	ledgerTxID, simulated, err := s.recorder.Record(ctx, record, proofHash)
	if err != nil {
		s.logger.Error("settlement retry failed", "error", err, "transaction_id", transactionID)
		return nil, errors.NewExternalError("ledger recording failed", errors.ErrCodeLedgerUnavailable, err)
	}

	s.logger.Info("settlement retry completed",
		"transaction_id", transactionID,
		"ledger_tx_id", ledgerTxID,
		"simulated", simulated)

	updated, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}
	return FromDataModel(updated, s.now()), nil
}

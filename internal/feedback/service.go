package feedback

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/ngo-accountability/internal"
	"github.com/frahmantamala/ngo-accountability/internal/core/common/validation"
	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/core/events"
	"github.com/frahmantamala/ngo-accountability/internal/ngo"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
)

// TransactionRepository is the slice of the record store the aggregator
// needs.
type TransactionRepository interface {
	GetByTransactionID(transactionID string) (*txmodel.PendingTransaction, error)
	ListByNgoID(ngoID int64, statuses []string) ([]*txmodel.PendingTransaction, error)
	AppendFeedback(id int64, entry txmodel.FeedbackEntry) (*txmodel.PendingTransaction, error)
}

// ReputationStore is the NGO directory surface that holds the aggregate
// score.
type ReputationStore interface {
	GetReputation(ngoID int64) (*ngo.Reputation, error)
	SetReputation(ngoID int64, thumbsUp, redFlags, total int) error
}

type SubmitFeedbackDTO struct {
	Rating     string `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	ReasonCode string `json:"reason_code,omitempty"`
}

func (dto *SubmitFeedbackDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("rating", dto.Rating).
		Required().
		OneOf([]string{transaction.RatingThumbsUp, transaction.RatingRedFlag}, errors.ErrCodeInvalidRating)
	validator.Field("comment", dto.Comment).MaxLength(1000)
	validator.Field("reason_code", dto.ReasonCode).MaxLength(64)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type FeedbackView struct {
	DisplayName string    `json:"display_name"`
	Rating      string    `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	ReasonCode  string    `json:"reason_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service folds per-transaction community feedback into the owning NGO's
// trust score. The NGO aggregate is recomputed from every transaction's
// feedback_stats on each write; counts therefore cannot drift.
type Service struct {
	repo     TransactionRepository
	ngoStore ReputationStore
	eventBus *events.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo TransactionRepository, ngoStore ReputationStore, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		ngoStore: ngoStore,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// AddFeedback appends one entry for the submitting user. Feedback is only
// accepted on documented withdrawals, never from the owning NGO, and at most
// once per user per transaction.
func (s *Service) AddFeedback(ctx context.Context, transactionID string, user *errors.AuthUser, dto *SubmitFeedbackDTO, submitterIP string) (*txmodel.FeedbackStats, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("feedback validation failed", "error", err, "transaction_id", transactionID)
		return nil, err
	}

	record, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}

	if record.DocumentURL == nil || *record.DocumentURL == "" {
		return nil, errors.ErrNoDocument
	}

	if user.NgoID != 0 && user.NgoID == record.NgoID {
		s.logger.Warn("self-feedback rejected", "transaction_id", transactionID, "ngo_id", record.NgoID)
		return nil, errors.ErrSelfFeedback
	}

	entry := txmodel.FeedbackEntry{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Rating:      dto.Rating,
		Comment:     dto.Comment,
		ReasonCode:  dto.ReasonCode,
		SubmitterIP: submitterIP,
		CreatedAt:   s.now(),
	}

	updated, err := s.repo.AppendFeedback(record.ID, entry)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("failed to append feedback", "error", err, "transaction_id", transactionID)
		return nil, errors.NewInternalError("failed to save feedback", err)
	}

	s.logger.Info("feedback recorded",
		"transaction_id", transactionID,
		"user_id", user.ID,
		"rating", dto.Rating,
		"total", updated.FeedbackStats.TotalFeedbackCount)

	if err := s.recomputeNgoReputation(record.NgoID); err != nil {
		// Feedback itself landed; the aggregate catches up on the next write.
		s.logger.Error("reputation recompute failed", "error", err, "ngo_id", record.NgoID)
	}

	s.eventBus.Publish(ctx, events.NewFeedbackAddedEvent(transactionID, record.NgoID, dto.Rating))

	stats := updated.FeedbackStats
	return &stats, nil
}

// recomputeNgoReputation sums feedback_stats across all of the NGO's
// transactions and stores the normalized score.
func (s *Service) recomputeNgoReputation(ngoID int64) error {
	records, err := s.repo.ListByNgoID(ngoID, nil)
	if err != nil {
		return err
	}

	var thumbsUp, redFlags, total int
	for _, record := range records {
		thumbsUp += record.FeedbackStats.ThumbsUpCount
		redFlags += record.FeedbackStats.RedFlagCount
		total += record.FeedbackStats.TotalFeedbackCount
	}

	return s.ngoStore.SetReputation(ngoID, thumbsUp, redFlags, total)
}

func (s *Service) ListFeedback(transactionID string) ([]FeedbackView, *txmodel.FeedbackStats, error) {
	record, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, nil, errors.ErrTransactionNotFound
	}

	views := make([]FeedbackView, 0, len(record.Feedback))
	for _, entry := range record.Feedback {
		views = append(views, FeedbackView{
			DisplayName: entry.DisplayName,
			Rating:      entry.Rating,
			Comment:     entry.Comment,
			ReasonCode:  entry.ReasonCode,
			CreatedAt:   entry.CreatedAt,
		})
	}

	stats := record.FeedbackStats
	return views, &stats, nil
}

// HasFeedback reports whether the user already submitted on this transaction.
func (s *Service) HasFeedback(transactionID, userID string) (bool, error) {
	record, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		return false, errors.ErrTransactionNotFound
	}

	for _, entry := range record.Feedback {
		if entry.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) GetReputation(ngoID int64) (*ngo.Reputation, error) {
	return s.ngoStore.GetReputation(ngoID)
}

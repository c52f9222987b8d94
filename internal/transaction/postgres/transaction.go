package postgres

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/ngo-accountability/internal"
	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
	"gorm.io/gorm"
)

// TransactionRepository implements the transaction.Repository interface using GORM
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) transaction.Repository {
	return &TransactionRepository{db: db}
}

// Create saves a new pending transaction. Bank identifier collisions surface
// as DuplicateTransaction so inbound notifications de-duplicate cleanly.
func (r *TransactionRepository) Create(record *txmodel.PendingTransaction) error {
	err := r.db.Create(record).Error
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func (r *TransactionRepository) GetByID(id int64) (*txmodel.PendingTransaction, error) {
	var record txmodel.PendingTransaction
	err := r.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *TransactionRepository) GetByTransactionID(transactionID string) (*txmodel.PendingTransaction, error) {
	var record txmodel.PendingTransaction
	err := r.db.Where("transaction_id = ?", transactionID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *TransactionRepository) GetByReceiverKeys(keys []string) ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	err := r.db.Where("receiver_key IN ?", keys).Find(&records).Error
	return records, err
}

func (r *TransactionRepository) ListByNgoID(ngoID int64, statuses []string) ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	query := r.db.Where("ngo_id = ?", ngoID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("document_upload_deadline ASC").Find(&records).Error
	return records, err
}

func (r *TransactionRepository) ListByAccountNumber(accountNumber string, statuses []string) ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	query := r.db.Where("account_number = ?", accountNumber)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("document_upload_deadline ASC").Find(&records).Error
	return records, err
}

func (r *TransactionRepository) FindPending() ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	err := r.db.Where("status = ?", transaction.StatusPending).
		Order("document_upload_deadline ASC").
		Find(&records).Error
	return records, err
}

func (r *TransactionRepository) FindUploadedNotRecorded() ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	err := r.db.Where("status = ? AND ledger_tx_id IS NULL", transaction.StatusDocumentUploaded).
		Order("document_uploaded_at ASC").
		Find(&records).Error
	return records, err
}

func (r *TransactionRepository) FindExpiredNotRecorded() ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	err := r.db.Where("status = ? AND ledger_tx_id IS NULL", transaction.StatusExpired).
		Order("document_upload_deadline ASC").
		Find(&records).Error
	return records, err
}

func (r *TransactionRepository) FindExpiredCandidates(now time.Time) ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	err := r.db.Where("status = ? AND document_upload_deadline < ?", transaction.StatusPending, now).
		Order("document_upload_deadline ASC").
		Find(&records).Error
	return records, err
}

// FindReminderCandidates returns still-pending records whose deadline lies
// ahead and whose last reminder (if any) is older than the cooldown.
func (r *TransactionRepository) FindReminderCandidates(now time.Time, cooldown time.Duration) ([]*txmodel.PendingTransaction, error) {
	var records []*txmodel.PendingTransaction
	cutoff := now.Add(-cooldown)
	err := r.db.Where("status = ? AND document_upload_deadline > ?", transaction.StatusPending, now).
		Where("last_reminder_at IS NULL OR last_reminder_at < ?", cutoff).
		Order("document_upload_deadline ASC").
		Find(&records).Error
	return records, err
}

func (r *TransactionRepository) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&txmodel.PendingTransaction{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// AppendFeedback adds one entry and recomputes the denormalized summary. The
// write is an optimistic compare-and-swap on updated_at: a concurrent append
// invalidates the read and the loop re-checks uniqueness against the fresh
// row, so two submissions from the same user cannot both land.
func (r *TransactionRepository) AppendFeedback(id int64, entry txmodel.FeedbackEntry) (*txmodel.PendingTransaction, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var record txmodel.PendingTransaction
		if err := r.db.Where("id = ?", id).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrTransactionNotFound
			}
			return nil, err
		}

		for _, existing := range record.Feedback {
			if existing.UserID == entry.UserID {
				return nil, apperrors.ErrDuplicateFeedback
			}
		}

		feedback := append(record.Feedback, entry)
		stats := txmodel.RecomputeStats(feedback)

		result := r.db.Model(&txmodel.PendingTransaction{}).
			Where("id = ? AND updated_at = ?", id, record.UpdatedAt).
			Updates(map[string]interface{}{
				"feedback":       feedback,
				"feedback_stats": stats,
				"updated_at":     time.Now(),
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the swap; retry against the fresh row.
			continue
		}

		record.Feedback = feedback
		record.FeedbackStats = stats
		return &record, nil
	}

	return nil, apperrors.NewConflictError("feedback submission conflicted, please retry", apperrors.ErrCodeDuplicateFeedback)
}

// UpdateIfStatus applies patch only while the stored status still equals
// expectedStatus. The WHERE clause makes read-check-write a single atomic
// statement; RowsAffected tells the caller whether it won the race.
func (r *TransactionRepository) UpdateIfStatus(id int64, expectedStatus string, patch map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(patch)+1)
	for k, v := range patch {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()

	result := r.db.Model(&txmodel.PendingTransaction{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

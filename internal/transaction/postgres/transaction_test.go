package postgres

import (
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/ngo-accountability/internal"
	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
)

func TestTransactionRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TransactionRepository Suite")
}

type SQLitePendingTransaction struct {
	ID                     int64   `gorm:"primaryKey"`
	TransactionID          string  `gorm:"column:transaction_id;not null;uniqueIndex"`
	BankTransactionID      *string `gorm:"column:bank_transaction_id;uniqueIndex:idx_bank_identifiers"`
	BankReference          *string `gorm:"column:bank_reference;uniqueIndex:idx_bank_identifiers"`
	NgoID                  int64   `gorm:"column:ngo_id;not null"`
	AccountNumber          string  `gorm:"column:account_number;not null"`
	Amount                 float64 `gorm:"column:amount;not null"`
	Currency               string  `gorm:"column:currency;not null"`
	Cause                  string  `gorm:"column:cause;not null"`
	Description            *string `gorm:"column:description"`
	Status                 string  `gorm:"column:status;not null"`
	DocumentUploadDeadline time.Time
	ReceiverKey            string     `gorm:"column:receiver_key;not null;uniqueIndex"`
	DocumentURL            *string    `gorm:"column:document_url"`
	DocumentHash           *string    `gorm:"column:document_hash"`
	VerificationHash       *string    `gorm:"column:verification_hash"`
	NgoNotes               *string    `gorm:"column:ngo_notes"`
	DocumentUploadedAt     *time.Time `gorm:"column:document_uploaded_at"`
	LedgerTxID             *string    `gorm:"column:ledger_tx_id"`
	RecordedAt             *time.Time `gorm:"column:recorded_at"`
	InitialNotified        bool       `gorm:"column:initial_notified"`
	ReminderCount          int        `gorm:"column:reminder_count"`
	LastReminderAt         *time.Time `gorm:"column:last_reminder_at"`
	Feedback               string     `gorm:"column:feedback"`
	FeedbackStats          string     `gorm:"column:feedback_stats"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (SQLitePendingTransaction) TableName() string {
	return "pending_transactions"
}

func newTestRecord(seq int, status string, deadline time.Time) *txmodel.PendingTransaction {
	transactionID := fmt.Sprintf("tx-%d", seq)
	return &txmodel.PendingTransaction{
		TransactionID:          transactionID,
		NgoID:                  7,
		AccountNumber:          "1102000301",
		Amount:                 250000,
		Currency:               "IDR",
		Cause:                  "disaster relief",
		Status:                 status,
		DocumentUploadDeadline: deadline,
		ReceiverKey:            transaction.ReceiverKey(transactionID),
		Feedback:               txmodel.FeedbackList{},
	}
}

var _ = Describe("TransactionRepository", func() {
	var (
		db   *gorm.DB
		repo transaction.Repository
		now  time.Time
	)

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLitePendingTransaction{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewTransactionRepository(db)
		now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		err = sqlDB.Close()
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Create", func() {
		It("persists a pending transaction", func() {
			record := newTestRecord(1, transaction.StatusPending, now.Add(72*time.Hour))

			err := repo.Create(record)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.ID).To(BeNumerically(">", 0))

			found, err := repo.GetByTransactionID("tx-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Status).To(Equal(transaction.StatusPending))
			Expect(found.ReceiverKey).To(Equal("wd-tx-1"))
		})

		It("maps duplicate transaction identifiers to DuplicateTransaction", func() {
			record := newTestRecord(1, transaction.StatusPending, now.Add(72*time.Hour))
			Expect(repo.Create(record)).To(Succeed())

			dup := newTestRecord(1, transaction.StatusPending, now.Add(72*time.Hour))
			err := repo.Create(dup)
			Expect(err).To(Equal(apperrors.ErrDuplicateTransaction))
		})

		It("maps duplicate bank identifiers to DuplicateTransaction", func() {
			bankTxID := "BANK-1"
			bankRef := "REF-1"

			first := newTestRecord(1, transaction.StatusPending, now.Add(72*time.Hour))
			first.BankTransactionID = &bankTxID
			first.BankReference = &bankRef
			Expect(repo.Create(first)).To(Succeed())

			second := newTestRecord(2, transaction.StatusPending, now.Add(72*time.Hour))
			second.BankTransactionID = &bankTxID
			second.BankReference = &bankRef
			err := repo.Create(second)
			Expect(err).To(Equal(apperrors.ErrDuplicateTransaction))
		})
	})

	Describe("GetByTransactionID", func() {
		It("returns NotFound for missing records", func() {
			_, err := repo.GetByTransactionID("missing")
			Expect(err).To(Equal(apperrors.ErrTransactionNotFound))
		})
	})

	Describe("UpdateIfStatus", func() {
		var record *txmodel.PendingTransaction

		BeforeEach(func() {
			record = newTestRecord(1, transaction.StatusPending, now.Add(72*time.Hour))
			Expect(repo.Create(record)).To(Succeed())
		})

		It("applies the patch while the status matches", func() {
			won, err := repo.UpdateIfStatus(record.ID, transaction.StatusPending, map[string]interface{}{
				"status": transaction.StatusExpired,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeTrue())

			found, _ := repo.GetByID(record.ID)
			Expect(found.Status).To(Equal(transaction.StatusExpired))
		})

		It("lets exactly one of two competing transitions win", func() {
			won, err := repo.UpdateIfStatus(record.ID, transaction.StatusPending, map[string]interface{}{
				"status": transaction.StatusDocumentUploaded,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeTrue())

			// second actor still believes the record is pending
			won, err = repo.UpdateIfStatus(record.ID, transaction.StatusPending, map[string]interface{}{
				"status": transaction.StatusExpired,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeFalse())

			found, _ := repo.GetByID(record.ID)
			Expect(found.Status).To(Equal(transaction.StatusDocumentUploaded))
		})

		It("reports no win for unknown records", func() {
			won, err := repo.UpdateIfStatus(9999, transaction.StatusPending, map[string]interface{}{
				"status": transaction.StatusExpired,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeFalse())
		})
	})

	Describe("sweep queries", func() {
		BeforeEach(func() {
			overdue := newTestRecord(1, transaction.StatusPending, now.Add(-time.Hour))
			fresh := newTestRecord(2, transaction.StatusPending, now.Add(48*time.Hour))
			uploaded := newTestRecord(3, transaction.StatusDocumentUploaded, now.Add(24*time.Hour))
			expired := newTestRecord(4, transaction.StatusExpired, now.Add(-24*time.Hour))
			recorded := newTestRecord(5, transaction.StatusRecorded, now.Add(-48*time.Hour))
			ledgerID := "LEDGER-5"
			recorded.LedgerTxID = &ledgerID

			for _, record := range []*txmodel.PendingTransaction{overdue, fresh, uploaded, expired, recorded} {
				Expect(repo.Create(record)).To(Succeed())
			}
		})

		It("finds only overdue pending records as expiry candidates", func() {
			candidates, err := repo.FindExpiredCandidates(now)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].TransactionID).To(Equal("tx-1"))
		})

		It("finds uploaded records without ledger linkage", func() {
			records, err := repo.FindUploadedNotRecorded()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].TransactionID).To(Equal("tx-3"))
		})

		It("finds expired records without ledger linkage", func() {
			records, err := repo.FindExpiredNotRecorded()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].TransactionID).To(Equal("tx-4"))
		})

		It("counts records per status", func() {
			counts, err := repo.CountByStatus()
			Expect(err).NotTo(HaveOccurred())
			Expect(counts[transaction.StatusPending]).To(Equal(int64(2)))
			Expect(counts[transaction.StatusDocumentUploaded]).To(Equal(int64(1)))
			Expect(counts[transaction.StatusExpired]).To(Equal(int64(1)))
			Expect(counts[transaction.StatusRecorded]).To(Equal(int64(1)))
		})
	})

	Describe("FindReminderCandidates", func() {
		It("honors the reminder cooldown", func() {
			cooldown := 6 * time.Hour

			never := newTestRecord(1, transaction.StatusPending, now.Add(12*time.Hour))
			Expect(repo.Create(never)).To(Succeed())

			recentReminder := newTestRecord(2, transaction.StatusPending, now.Add(12*time.Hour))
			Expect(repo.Create(recentReminder)).To(Succeed())
			justSent := now.Add(-time.Hour)
			_, err := repo.UpdateIfStatus(recentReminder.ID, transaction.StatusPending, map[string]interface{}{
				"last_reminder_at": justSent,
			})
			Expect(err).NotTo(HaveOccurred())

			staleReminder := newTestRecord(3, transaction.StatusPending, now.Add(12*time.Hour))
			Expect(repo.Create(staleReminder)).To(Succeed())
			longAgo := now.Add(-12 * time.Hour)
			_, err = repo.UpdateIfStatus(staleReminder.ID, transaction.StatusPending, map[string]interface{}{
				"last_reminder_at": longAgo,
			})
			Expect(err).NotTo(HaveOccurred())

			overdue := newTestRecord(4, transaction.StatusPending, now.Add(-time.Hour))
			Expect(repo.Create(overdue)).To(Succeed())

			candidates, err := repo.FindReminderCandidates(now, cooldown)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.TransactionID
			}
			Expect(ids).To(ConsistOf("tx-1", "tx-3"))
		})
	})

	Describe("AppendFeedback", func() {
		var record *txmodel.PendingTransaction

		BeforeEach(func() {
			record = newTestRecord(1, transaction.StatusDocumentUploaded, now.Add(-time.Hour))
			url := "https://storage.example.com/doc.pdf"
			record.DocumentURL = &url
			Expect(repo.Create(record)).To(Succeed())
		})

		It("appends an entry and recomputes the summary", func() {
			updated, err := repo.AppendFeedback(record.ID, txmodel.FeedbackEntry{
				UserID: "user-1", DisplayName: "Dewi", Rating: transaction.RatingThumbsUp, CreatedAt: now,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.FeedbackStats.TotalFeedbackCount).To(Equal(1))
			Expect(updated.FeedbackStats.ThumbsUpCount).To(Equal(1))

			updated, err = repo.AppendFeedback(record.ID, txmodel.FeedbackEntry{
				UserID: "user-2", DisplayName: "Budi", Rating: transaction.RatingRedFlag, CreatedAt: now,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.FeedbackStats.TotalFeedbackCount).To(Equal(2))
			Expect(updated.FeedbackStats.RedFlagCount).To(Equal(1))

			found, err := repo.GetByID(record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Feedback).To(HaveLen(2))
		})

		It("rejects a second entry from the same user", func() {
			_, err := repo.AppendFeedback(record.ID, txmodel.FeedbackEntry{
				UserID: "user-1", Rating: transaction.RatingThumbsUp, CreatedAt: now,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.AppendFeedback(record.ID, txmodel.FeedbackEntry{
				UserID: "user-1", Rating: transaction.RatingRedFlag, CreatedAt: now,
			})
			Expect(err).To(Equal(apperrors.ErrDuplicateFeedback))
		})

		It("returns NotFound for missing records", func() {
			_, err := repo.AppendFeedback(9999, txmodel.FeedbackEntry{UserID: "user-1", Rating: transaction.RatingThumbsUp})
			Expect(err).To(Equal(apperrors.ErrTransactionNotFound))
		})
	})

	Describe("GetByReceiverKeys", func() {
		It("returns records for the requested keys only", func() {
			first := newTestRecord(1, transaction.StatusDocumentUploaded, now)
			second := newTestRecord(2, transaction.StatusRecorded, now)
			third := newTestRecord(3, transaction.StatusPending, now)
			for _, record := range []*txmodel.PendingTransaction{first, second, third} {
				Expect(repo.Create(record)).To(Succeed())
			}

			records, err := repo.GetByReceiverKeys([]string{"wd-tx-1", "wd-tx-2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})
	})
})

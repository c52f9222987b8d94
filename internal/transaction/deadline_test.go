package transaction_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
)

var _ = Describe("Lifecycle", func() {
	Describe("CanTransition", func() {
		It("allows the documented happy path", func() {
			Expect(transaction.CanTransition(transaction.StatusPending, transaction.StatusDocumentUploaded)).To(BeTrue())
			Expect(transaction.CanTransition(transaction.StatusDocumentUploaded, transaction.StatusRecorded)).To(BeTrue())
		})

		It("allows the expiry path onto the ledger", func() {
			Expect(transaction.CanTransition(transaction.StatusPending, transaction.StatusExpired)).To(BeTrue())
			Expect(transaction.CanTransition(transaction.StatusExpired, transaction.StatusRecorded)).To(BeTrue())
		})

		It("allows cancellation before recording", func() {
			Expect(transaction.CanTransition(transaction.StatusPending, transaction.StatusCancelled)).To(BeTrue())
			Expect(transaction.CanTransition(transaction.StatusDocumentUploaded, transaction.StatusCancelled)).To(BeTrue())
		})

		It("never revisits an earlier state", func() {
			Expect(transaction.CanTransition(transaction.StatusDocumentUploaded, transaction.StatusPending)).To(BeFalse())
			Expect(transaction.CanTransition(transaction.StatusExpired, transaction.StatusPending)).To(BeFalse())
			Expect(transaction.CanTransition(transaction.StatusRecorded, transaction.StatusPending)).To(BeFalse())
		})

		It("refuses uploads after expiry", func() {
			Expect(transaction.CanTransition(transaction.StatusExpired, transaction.StatusDocumentUploaded)).To(BeFalse())
		})

		It("refuses leaving recorded or cancelled", func() {
			Expect(transaction.CanTransition(transaction.StatusRecorded, transaction.StatusCancelled)).To(BeFalse())
			Expect(transaction.CanTransition(transaction.StatusCancelled, transaction.StatusRecorded)).To(BeFalse())
		})
	})

	Describe("IsTerminal", func() {
		It("marks recorded, expired and cancelled as terminal", func() {
			Expect(transaction.IsTerminal(transaction.StatusRecorded)).To(BeTrue())
			Expect(transaction.IsTerminal(transaction.StatusExpired)).To(BeTrue())
			Expect(transaction.IsTerminal(transaction.StatusCancelled)).To(BeTrue())
			Expect(transaction.IsTerminal(transaction.StatusPending)).To(BeFalse())
			Expect(transaction.IsTerminal(transaction.StatusDocumentUploaded)).To(BeFalse())
		})
	})

	Describe("IsExpired", func() {
		var record *txmodel.PendingTransaction
		deadline := time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC)

		BeforeEach(func() {
			record = &txmodel.PendingTransaction{
				Status:                 transaction.StatusPending,
				DocumentUploadDeadline: deadline,
			}
		})

		It("is not expired before the deadline", func() {
			Expect(transaction.IsExpired(record, deadline.Add(-time.Second))).To(BeFalse())
		})

		It("is not expired exactly at the deadline", func() {
			Expect(transaction.IsExpired(record, deadline)).To(BeFalse())
		})

		It("is expired one second past the deadline", func() {
			Expect(transaction.IsExpired(record, deadline.Add(time.Second))).To(BeTrue())
		})

		It("never reports non-pending records as expired", func() {
			record.Status = transaction.StatusDocumentUploaded
			Expect(transaction.IsExpired(record, deadline.Add(time.Hour))).To(BeFalse())
		})
	})

	Describe("Remaining", func() {
		It("floors the countdown at zero", func() {
			record := &txmodel.PendingTransaction{
				DocumentUploadDeadline: time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC),
			}
			Expect(transaction.Remaining(record, record.DocumentUploadDeadline.Add(time.Hour))).To(Equal(time.Duration(0)))
			Expect(transaction.Remaining(record, record.DocumentUploadDeadline.Add(-time.Minute))).To(Equal(time.Minute))
		})
	})

	Describe("ReceiverKey", func() {
		It("prefixes the transaction identifier", func() {
			Expect(transaction.ReceiverKey("abc-123")).To(Equal("wd-abc-123"))
		})
	})
})

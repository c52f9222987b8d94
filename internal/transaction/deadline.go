package transaction

import (
	"time"

	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
)

// IsExpired reports whether a still-pending record has outlived its upload
// deadline. Records that already left PENDING are never "expired" here; their
// lifecycle is owned by the later states.
func IsExpired(tx *txmodel.PendingTransaction, now time.Time) bool {
	return tx.Status == StatusPending && now.After(tx.DocumentUploadDeadline)
}

// Remaining returns the time left until the upload deadline, floored at zero.
func Remaining(tx *txmodel.PendingTransaction, now time.Time) time.Duration {
	remaining := tx.DocumentUploadDeadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

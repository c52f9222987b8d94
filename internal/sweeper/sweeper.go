package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internal "github.com/frahmantamala/ngo-accountability/internal"
	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/core/events"
	"github.com/frahmantamala/ngo-accountability/internal/ledger"
	"github.com/frahmantamala/ngo-accountability/internal/notification"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
)

// Recorder is the ledger client surface the sweeper drives.
type Recorder interface {
	Record(ctx context.Context, tx *txmodel.PendingTransaction, proofHash *string) (ledgerTxID string, simulated bool, err error)
	ListByNgo(ctx context.Context, ngoID int64) ([]ledger.Entry, error)
}

// Stats is a point-in-time snapshot of the scheduler.
type Stats struct {
	Running        bool             `json:"running"`
	Ticks          uint64           `json:"ticks"`
	Expired        uint64           `json:"expired"`
	Recorded       uint64           `json:"recorded"`
	RemindersSent  uint64           `json:"reminders_sent"`
	Reconciled     uint64           `json:"reconciled"`
	RecordErrors   uint64           `json:"record_errors"`
	CountsByStatus map[string]int64 `json:"counts_by_status"`
}

// Sweeper is the state machine driver: a single periodic background task
// whose three passes advance records via the storage layer's conditional
// update, so interleaving with API-driven mutations is safe.
type Sweeper struct {
	repo       transaction.Repository
	recorder   Recorder
	dispatcher notification.Dispatcher
	directory  transaction.NgoDirectory
	eventBus   *events.EventBus
	cfg        internal.AccountabilityConfig
	logger     *slog.Logger
	now        func() time.Time

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sweepMu sync.Mutex
	running atomic.Bool

	ticks         atomic.Uint64
	expired       atomic.Uint64
	recorded      atomic.Uint64
	remindersSent atomic.Uint64
	reconciled    atomic.Uint64
	recordErrors  atomic.Uint64
}

func New(
	repo transaction.Repository,
	recorder Recorder,
	dispatcher notification.Dispatcher,
	directory transaction.NgoDirectory,
	eventBus *events.EventBus,
	cfg internal.AccountabilityConfig,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		repo:       repo,
		recorder:   recorder,
		dispatcher: dispatcher,
		directory:  directory,
		eventBus:   eventBus,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the sweeper clock for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start launches the periodic tick. Calling Start on a running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("sweeper already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		s.logger.Info("sweeper started", "interval", s.cfg.SweepInterval)

		for {
			select {
			case <-runCtx.Done():
				s.logger.Info("sweeper stopped")
				return
			case <-ticker.C:
				s.RunSweep(runCtx)
			}
		}
	}()
}

// Stop signals shutdown and waits for the in-flight pass to finish its
// current record. Ledger calls are not locally transactional with the status
// update, so a mid-record abort is never forced.
func (s *Sweeper) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// RunSweep executes one tick: reconcile, expiry, recording, reminders. Ticks
// never overlap; a manual trigger waits for a running tick to finish.
func (s *Sweeper) RunSweep(ctx context.Context) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	s.ticks.Add(1)
	start := s.now()

	s.reconcilePass(ctx)
	s.expiryPass(ctx)
	s.recordingPass(ctx)
	s.reminderPass(ctx)

	s.logger.Debug("sweep tick complete", "duration", time.Since(start))
}

// expiryPass moves past-deadline PENDING records to EXPIRED, then hands them
// to the ledger with no proof. One record's failure never aborts the pass.
func (s *Sweeper) expiryPass(ctx context.Context) {
	candidates, err := s.repo.FindExpiredCandidates(s.now())
	if err != nil {
		s.logger.Error("expiry pass query failed", "error", err)
		return
	}

	for _, record := range candidates {
		if ctx.Err() != nil {
			return
		}

		won, err := s.repo.UpdateIfStatus(record.ID, transaction.StatusPending, map[string]interface{}{
			"status": transaction.StatusExpired,
		})
		if err != nil {
			s.logger.Error("failed to expire record", "error", err, "transaction_id", record.TransactionID)
			continue
		}
		if !won {
			// An upload slipped in before the deadline check; leave it alone.
			s.logger.Debug("expiry lost race", "transaction_id", record.TransactionID)
			continue
		}

		s.expired.Add(1)
		s.logger.Info("verification window expired",
			"transaction_id", record.TransactionID,
			"deadline", record.DocumentUploadDeadline)
		s.eventBus.Publish(ctx, events.NewTransactionExpiredEvent(record.TransactionID, record.DocumentUploadDeadline))

		expiredRecord, err := s.repo.GetByID(record.ID)
		if err != nil {
			s.logger.Error("failed to reload expired record", "error", err, "transaction_id", record.TransactionID)
			continue
		}

		s.recordOne(ctx, expiredRecord, nil)
	}
}

// recordingPass pushes documented and expired-without-ledger records to the
// ledger. Failed records stay put and are retried next tick.
func (s *Sweeper) recordingPass(ctx context.Context) {
	uploaded, err := s.repo.FindUploadedNotRecorded()
	if err != nil {
		s.logger.Error("recording pass query failed", "error", err)
		return
	}
	expired, err := s.repo.FindExpiredNotRecorded()
	if err != nil {
		s.logger.Error("recording pass query failed", "error", err)
		return
	}

	for _, record := range uploaded {
		if ctx.Err() != nil {
			return
		}
		s.recordOne(ctx, record, record.VerificationHash)
	}
	for _, record := range expired {
		if ctx.Err() != nil {
			return
		}
		s.recordOne(ctx, record, nil)
	}
}

func (s *Sweeper) recordOne(ctx context.Context, record *txmodel.PendingTransaction, proofHash *string) {
	ledgerTxID, simulated, err := s.recorder.Record(ctx, record, proofHash)
	if err != nil {
		s.recordErrors.Add(1)
		s.logger.Error("ledger recording failed, will retry next tick",
			"error", err,
			"transaction_id", record.TransactionID)
		return
	}

	s.recorded.Add(1)
	s.eventBus.Publish(ctx, events.NewTransactionRecordedEvent(record.TransactionID, ledgerTxID, simulated))
}

// reminderPass alerts NGOs whose window is closing. Reminders respect a
// cooldown so one record is not spammed every tick.
func (s *Sweeper) reminderPass(ctx context.Context) {
	now := s.now()
	candidates, err := s.repo.FindReminderCandidates(now, s.cfg.ReminderCooldown)
	if err != nil {
		s.logger.Error("reminder pass query failed", "error", err)
		return
	}

	for _, record := range candidates {
		if ctx.Err() != nil {
			return
		}

		remaining := transaction.Remaining(record, now)
		if remaining <= 0 || remaining > s.cfg.ReminderThreshold {
			continue
		}

		ngo, err := s.directory.GetByID(record.NgoID)
		if err != nil {
			s.logger.Warn("reminder skipped, NGO lookup failed", "error", err, "ngo_id", record.NgoID)
			continue
		}

		err = s.dispatcher.SendReminder(ctx, notification.Notice{
			TransactionID: record.TransactionID,
			Recipient:     ngo.ContactEmail,
			Amount:        record.Amount,
			Deadline:      record.DocumentUploadDeadline,
			Remaining:     remaining,
		})
		if err != nil {
			s.logger.Warn("reminder dispatch failed", "error", err, "transaction_id", record.TransactionID)
			continue
		}

		if _, err := s.repo.UpdateIfStatus(record.ID, transaction.StatusPending, map[string]interface{}{
			"reminder_count":   record.ReminderCount + 1,
			"last_reminder_at": now,
		}); err != nil {
			s.logger.Error("failed to bump reminder bookkeeping", "error", err, "transaction_id", record.TransactionID)
			continue
		}

		s.remindersSent.Add(1)
		s.logger.Info("reminder sent",
			"transaction_id", record.TransactionID,
			"remaining", remaining,
			"reminder_count", record.ReminderCount+1)
	}
}

// reconcilePass repairs rows whose ledger call succeeded but whose local
// status update was lost (crash mid-recording). It reads the ledger back by
// NGO and adopts any entry already present for a candidate's receiver key, so
// the recording pass does not double-submit.
func (s *Sweeper) reconcilePass(ctx context.Context) {
	uploaded, err := s.repo.FindUploadedNotRecorded()
	if err != nil {
		s.logger.Error("reconcile pass query failed", "error", err)
		return
	}
	expired, err := s.repo.FindExpiredNotRecorded()
	if err != nil {
		s.logger.Error("reconcile pass query failed", "error", err)
		return
	}
	candidates := append(uploaded, expired...)
	if len(candidates) == 0 {
		return
	}

	entriesByNgo := make(map[int64]map[string]ledger.Entry)
	for _, record := range candidates {
		if ctx.Err() != nil {
			return
		}

		byKey, fetched := entriesByNgo[record.NgoID]
		if !fetched {
			entries, err := s.recorder.ListByNgo(ctx, record.NgoID)
			if err != nil {
				s.logger.Warn("ledger read-back failed", "error", err, "ngo_id", record.NgoID)
				entriesByNgo[record.NgoID] = map[string]ledger.Entry{}
				continue
			}
			byKey = make(map[string]ledger.Entry, len(entries))
			for _, entry := range entries {
				byKey[entry.ReceiverKey] = entry
			}
			entriesByNgo[record.NgoID] = byKey
		}

		entry, exists := byKey[record.ReceiverKey]
		if !exists {
			continue
		}

		won, err := s.repo.UpdateIfStatus(record.ID, record.Status, map[string]interface{}{
			"status":       transaction.StatusRecorded,
			"ledger_tx_id": entry.TxID,
			"recorded_at":  entry.RecordedAt,
		})
		if err != nil {
			s.logger.Error("reconcile update failed", "error", err, "transaction_id", record.TransactionID)
			continue
		}
		if won {
			s.reconciled.Add(1)
			s.logger.Info("repaired ledger linkage from read-back",
				"transaction_id", record.TransactionID,
				"ledger_tx_id", entry.TxID)
			s.eventBus.Publish(ctx, events.NewTransactionRecordedEvent(record.TransactionID, entry.TxID, false))
		}
	}
}

func (s *Sweeper) Stats() Stats {
	counts, err := s.repo.CountByStatus()
	if err != nil {
		s.logger.Error("failed to count transactions by status", "error", err)
		counts = map[string]int64{}
	}

	return Stats{
		Running:        s.running.Load(),
		Ticks:          s.ticks.Load(),
		Expired:        s.expired.Load(),
		Recorded:       s.recorded.Load(),
		RemindersSent:  s.remindersSent.Load(),
		Reconciled:     s.reconciled.Load(),
		RecordErrors:   s.recordErrors.Load(),
		CountsByStatus: counts,
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/ngo-accountability/internal/core/events"
	"github.com/frahmantamala/ngo-accountability/internal/ledger"
	"github.com/frahmantamala/ngo-accountability/internal/ngo"
	ngoPostgres "github.com/frahmantamala/ngo-accountability/internal/ngo/postgres"
	"github.com/frahmantamala/ngo-accountability/internal/notification"
	"github.com/frahmantamala/ngo-accountability/internal/sweeper"
	txPostgres "github.com/frahmantamala/ngo-accountability/internal/transaction/postgres"
	"github.com/frahmantamala/ngo-accountability/pkg/logger"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// sweeperCmd runs the deadline sweeper as a standalone process. Deployments
// that scale the API horizontally run exactly one of these instead of the
// in-process sweeper.
var sweeperCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Start the deadline sweeper worker",
	Long:  `Run the periodic sweeper that expires overdue withdrawals, records settlements on the ledger and sends deadline reminders.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweeperWorker()
	},
}

var sweepOnce bool

func startSweeperWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm connection: %v\n", err)
		os.Exit(1)
	}

	txRepo := txPostgres.NewTransactionRepository(gormDB)
	ngoRepo := ngoPostgres.NewNgoRepository(gormDB)
	ngoService := ngo.NewService(ngoRepo, appLogger)

	dispatcher := notification.NewHTTPDispatcher(
		config.Notification.BaseURL,
		config.Notification.APIKey,
		config.Notification.RequestTimeout,
		appLogger,
	)

	ledgerClient := ledger.NewClient(
		config.Ledger.BaseURL,
		config.Ledger.APIKey,
		config.Ledger.RequestTimeout,
		config.Ledger.AllowSimulated,
		txRepo,
		appLogger,
	)

	eventBus := events.NewEventBus(appLogger)
	registerAuditSubscribers(eventBus, appLogger)

	sw := sweeper.New(
		txRepo,
		ledgerClient,
		dispatcher,
		ngoService,
		eventBus,
		config.Accountability,
		appLogger,
	)

	if sweepOnce {
		appLogger.Info("running single sweep cycle")
		sw.RunSweep(context.Background())
		stats := sw.Stats()
		appLogger.Info("sweep complete",
			"expired", stats.Expired,
			"recorded", stats.Recorded,
			"reminders_sent", stats.RemindersSent,
			"reconciled", stats.Reconciled,
			"record_errors", stats.RecordErrors)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw.Start(ctx)

	appLogger.Info("sweeper worker is running",
		"sweep_interval", config.Accountability.SweepInterval,
		"upload_window", config.Accountability.UploadWindow)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	appLogger.Info("received signal, shutting down sweeper", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		sw.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		appLogger.Info("sweeper shutdown complete")
	case <-shutdownCtx.Done():
		appLogger.Warn("shutdown timeout reached, forcing exit")
	}
}

func init() {
	sweeperCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep cycle and exit")
}

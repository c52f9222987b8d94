package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/ngo-accountability/internal"
	"github.com/frahmantamala/ngo-accountability/internal/core/events"
	"github.com/frahmantamala/ngo-accountability/internal/feedback"
	"github.com/frahmantamala/ngo-accountability/internal/ledger"
	"github.com/frahmantamala/ngo-accountability/internal/ngo"
	ngoPostgres "github.com/frahmantamala/ngo-accountability/internal/ngo/postgres"
	"github.com/frahmantamala/ngo-accountability/internal/notification"
	"github.com/frahmantamala/ngo-accountability/internal/objectstorage"
	"github.com/frahmantamala/ngo-accountability/internal/sweeper"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
	txPostgres "github.com/frahmantamala/ngo-accountability/internal/transaction/postgres"
	"github.com/frahmantamala/ngo-accountability/internal/transport/middleware"
	"github.com/frahmantamala/ngo-accountability/internal/transport/rest"
	"github.com/frahmantamala/ngo-accountability/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and the background sweeper`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Router  *chi.Mux
	Sweeper *sweeper.Sweeper
	Logger  *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	deps.Sweeper.Start(sweeperCtx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.Sweeper.Stop()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over pgx connection: %w", err)
	}

	txRepo := txPostgres.NewTransactionRepository(gormDB)
	ngoRepo := ngoPostgres.NewNgoRepository(gormDB)

	eventBus := events.NewEventBus(appLogger)
	registerAuditSubscribers(eventBus, appLogger)

	ngoService := ngo.NewService(ngoRepo, appLogger)

	dispatcher := notification.NewHTTPDispatcher(
		config.Notification.BaseURL,
		config.Notification.APIKey,
		config.Notification.RequestTimeout,
		appLogger,
	)

	uploader := objectstorage.NewClient(
		config.ObjectStorage.BaseURL,
		config.ObjectStorage.Bucket,
		config.ObjectStorage.RequestTimeout,
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

	txService := transaction.NewService(
		txRepo,
		ngoService,
		dispatcher,
		ledgerClient,
		uploader,
		eventBus,
		config.Accountability.UploadWindow,
		appLogger,
	)

	feedbackService := feedback.NewService(txRepo, ngoService, eventBus, appLogger)

	sw := sweeper.New(
		txRepo,
		ledgerClient,
		dispatcher,
		ngoService,
		eventBus,
		config.Accountability,
		appLogger,
	)

	authenticator := middleware.NewAuthenticator(config.Security.JWTSecret, appLogger)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(
		router,
		db.DB,
		ledgerClient,
		authenticator,
		transaction.NewHandler(txService),
		feedback.NewHandler(feedbackService),
		sweeper.NewHandler(sw),
		appLogger,
	)

	return &Dependencies{
		Config:  config,
		Logger:  appLogger,
		DB:      db,
		Router:  router,
		Sweeper: sw,
	}, nil
}

// registerAuditSubscribers logs lifecycle events so operators can trace a
// withdrawal end to end from the application log alone.
func registerAuditSubscribers(bus *events.EventBus, lg *slog.Logger) {
	audit := func(ctx context.Context, event events.Event) error {
		lg.Info("audit",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"occurred_at", event.OccurredAt())
		return nil
	}

	bus.Subscribe(events.EventTypeWithdrawalCreated, audit)
	bus.Subscribe(events.EventTypeDocumentUploaded, audit)
	bus.Subscribe(events.EventTypeTransactionExpired, audit)
	bus.Subscribe(events.EventTypeTransactionRecorded, audit)
	bus.Subscribe(events.EventTypeFeedbackAdded, audit)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

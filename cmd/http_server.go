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

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pulseawards/vote-payments/internal"
	"github.com/pulseawards/vote-payments/internal/core/events"
	"github.com/pulseawards/vote-payments/internal/creator"
	creatorpostgres "github.com/pulseawards/vote-payments/internal/creator/postgres"
	"github.com/pulseawards/vote-payments/internal/gateway"
	"github.com/pulseawards/vote-payments/internal/payment"
	paymentpostgres "github.com/pulseawards/vote-payments/internal/payment/postgres"
	"github.com/pulseawards/vote-payments/internal/transport/middleware"
	"github.com/pulseawards/vote-payments/internal/transport/rest"
	"github.com/pulseawards/vote-payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle vote purchases, gateway webhooks and status polling`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger

	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	CreatorHandler *creator.Handler
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

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

func setupRoutes(deps *Dependencies) {
	deps.Router.Use(middleware.RequestID)
	deps.Router.Use(middleware.LoggingMiddleware(deps.Logger))

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.PaymentHandler,
		deps.WebhookHandler,
		deps.CreatorHandler,
		deps.Config.Security.AdminJWTSecret,
		deps.Logger,
	)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	creatorRepo := creatorpostgres.NewCreatorRepository(gormDB)
	creatorService := creator.NewService(creatorRepo, lg)

	paymentRepo := paymentpostgres.NewPaymentRepository(gormDB, creatorRepo)

	registry := gateway.NewRegistry(
		gateway.NewMpesaAdapter(gateway.MpesaConfig{
			BaseURL:        config.Mpesa.BaseURL,
			ConsumerKey:    config.Mpesa.ConsumerKey,
			ConsumerSecret: config.Mpesa.ConsumerSecret,
			ShortCode:      config.Mpesa.ShortCode,
			Passkey:        config.Mpesa.Passkey,
			CallbackURL:    config.Mpesa.CallbackURL,
			RequestTimeout: config.Mpesa.RequestTimeout,
		}, lg),
		gateway.NewPaystackAdapter(gateway.PaystackConfig{
			BaseURL:        config.Paystack.BaseURL,
			SecretKey:      config.Paystack.SecretKey,
			CallbackURL:    config.Paystack.CallbackURL,
			RequestTimeout: config.Paystack.RequestTimeout,
		}, lg),
	)

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	paymentService := payment.NewService(
		paymentRepo,
		creatorService,
		registry,
		eventBus,
		config.Pricing,
		config.Reconcile,
		lg,
	)

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     db,
		GormDB: gormDB,
		Router: chi.NewRouter(),

		PaymentHandler: payment.NewHandler(paymentService),
		WebhookHandler: payment.NewWebhookHandler(paymentService, registry),
		CreatorHandler: creator.NewHandler(creatorService),
	}, nil
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

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

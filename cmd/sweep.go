package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pulseawards/vote-payments/internal/core/events"
	"github.com/pulseawards/vote-payments/internal/creator"
	creatorpostgres "github.com/pulseawards/vote-payments/internal/creator/postgres"
	"github.com/pulseawards/vote-payments/internal/gateway"
	"github.com/pulseawards/vote-payments/internal/payment"
	paymentpostgres "github.com/pulseawards/vote-payments/internal/payment/postgres"
	"github.com/pulseawards/vote-payments/pkg/logger"
)

var (
	sweepOnce bool

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending payment attempts",
		Long: `Periodically expire pending payment attempts older than the reconcile
pending TTL. Complements the lazy expiry the status endpoint performs, so
attempts nobody polls still reach a terminal state.`,
		Run: func(cmd *cobra.Command, args []string) {
			startSweeper()
		},
	}
)

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep pass and exit")
}

func startSweeper() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize gorm: %v\n", err)
		os.Exit(1)
	}

	creatorRepo := creatorpostgres.NewCreatorRepository(gormDB)
	creatorService := creator.NewService(creatorRepo, lg)
	paymentRepo := paymentpostgres.NewPaymentRepository(gormDB, creatorRepo)

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	// The sweeper never submits or verifies, so an empty registry is fine.
	paymentService := payment.NewService(
		paymentRepo,
		creatorService,
		gateway.NewRegistry(),
		eventBus,
		config.Pricing,
		config.Reconcile,
		lg,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runPass := func() {
		expired, err := paymentService.ExpireStale(ctx, config.Reconcile.SweepBatch)
		if err != nil {
			lg.Error("sweep pass failed", "error", err)
			return
		}
		lg.Info("sweep pass finished", "expired", expired)
	}

	if sweepOnce {
		runPass()
		return
	}

	interval := config.Reconcile.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	lg.Info("sweeper started",
		"interval", interval.String(),
		"batch", config.Reconcile.SweepBatch,
		"pending_ttl", config.Reconcile.PendingTTL.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runPass()
		case sig := <-sigChan:
			lg.Info("received signal, stopping sweeper", "signal", sig)
			return
		}
	}
}

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
	"github.com/pulseawards/vote-payments/internal/gatewaysim"
	"github.com/pulseawards/vote-payments/pkg/logger"
)

var (
	simGateway   string
	simReference string
	simAmount    int64
	simCount     int

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run the local gateway simulator",
		Long: `Settle charges locally and deliver gateway-shaped webhook callbacks to a
running server, so the end-to-end reconciliation path can be exercised
without sandbox credentials.`,
		Run: func(cmd *cobra.Command, args []string) {
			runSimulator()
		},
	}
)

func init() {
	simulateCmd.Flags().StringVar(&simGateway, "gateway", paymentmodel.GatewayPush, "Gateway kind to simulate (push or redirect)")
	simulateCmd.Flags().StringVar(&simReference, "reference", "", "Gateway reference of the attempt to settle")
	simulateCmd.Flags().Int64Var(&simAmount, "amount", 1000, "Charge amount in the smallest currency unit")
	simulateCmd.Flags().IntVar(&simCount, "count", 1, "How many callbacks to deliver for the reference")
}

func runSimulator() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	if simReference == "" {
		fmt.Fprintln(os.Stderr, "--reference is required")
		os.Exit(1)
	}
	if simGateway != paymentmodel.GatewayPush && simGateway != paymentmodel.GatewayRedirect {
		fmt.Fprintf(os.Stderr, "unknown gateway kind %q\n", simGateway)
		os.Exit(1)
	}

	sim := gatewaysim.NewSimulator(config.Simulator, lg)

	// Duplicate deliveries (count > 1) are how we exercise the exactly-once
	// guarantee against a live server.
	for i := 0; i < simCount; i++ {
		if err := sim.Enqueue(gatewaysim.SettleJob{
			GatewayKind: simGateway,
			Reference:   simReference,
			AmountCents: simAmount,
		}); err != nil {
			lg.Error("failed to enqueue settle job", "error", err)
		}
	}

	lg.Info("simulator running, waiting for settlements. Press Ctrl+C to stop.",
		"reference", simReference,
		"gateway", simGateway,
		"count", simCount)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	lg.Info("received signal, shutting down simulator", "signal", sig)

	sim.Shutdown()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "feeflow",
	Short: "Operator CLI for the tuition invoicing pipeline",
	Long: `feeflow runs the invoicing pipeline jobs on demand.

Configuration is read from the environment (and .env when present), the same
way the api and scheduler apps read it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(
		processInvoicesCmd(),
		sendRemindersCmd(),
		sweepOverdueCmd(),
		materializeCmd(),
		migrateCmd(),
		serveCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

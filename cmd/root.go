// Package cmd implements the CLI for the kernel core.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gokernel/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "gokernel",
	Short: "A single-address-space preemptive kernel core",
	Long: `gokernel boots a simulated kernel: a process table, a priority
scheduler with aging, counting semaphores, and pipes, all driving an
interactive shell over the host terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: globalLogFormat,
		Output: logOutput,
	})
	logging.SetDefault(logger)
}

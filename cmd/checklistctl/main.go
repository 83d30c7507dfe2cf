// Command checklistctl reads and edits a checklist served by the checklist
// API, and can follow it live.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"checklist/api/internal/client"
	"checklist/api/internal/logging"
)

var (
	apiURL   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "checklistctl",
	Short:         "Work with a shared checklist",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultURL := os.Getenv("CHECKLIST_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:5001"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "checklist API base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(categoriesCmd, itemsCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newClient() (*client.Client, *zap.Logger, error) {
	logger, err := logging.New(logLevel, "console")
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(apiURL, client.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return c, logger, nil
}

func parseIDArg(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

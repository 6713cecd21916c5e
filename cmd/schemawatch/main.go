// Command schemawatch captures GraphQL operations from live traffic and
// keeps a Markdown document of their request and response shapes.
//
// Usage:
//
//	schemawatch serve                     # console, proxy and auto-export
//	schemawatch browse https://app.example.com/
//	schemawatch export -o api.md          # write the document and exit
//	schemawatch mcp                       # MCP tools over stdio
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/schemawatch/collector"
)

var version = "0.1.0-dev"

type options struct {
	configPath string
	db         string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "schemawatch:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "schemawatch",
		Short:         "Document GraphQL operations from observed traffic",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to schemawatch.yaml")
	root.PersistentFlags().StringVar(&opts.db, "db", "", "database file (overrides config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(opts),
		newBrowseCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newExportCmd(opts),
		newStatusCmd(opts),
		newClearCmd(opts),
		newMCPCmd(opts),
		newHashPasswordCmd(),
	)
	return root
}

// load resolves the configuration: file, then environment, then flags.
func (o *options) load() (*collector.Config, *slog.Logger, error) {
	cfg, err := collector.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.db != "" {
		cfg.DB = o.db
	}
	if o.logLevel != "" {
		cfg.LogLevel = strings.ToLower(o.logLevel)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openCollector starts a collector and waits for its store, for the
// one-shot commands.
func (o *options) openCollector(ctx context.Context) (*collector.Collector, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	cfg.Reload.Interval = -1
	c, err := collector.New(*cfg, collector.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	c.Start(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.WaitReady(waitCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.DB, err)
	}
	return c, nil
}

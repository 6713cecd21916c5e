package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/schemawatch/browsercap"
	"github.com/hazyhaar/schemawatch/collector"
	"github.com/hazyhaar/schemawatch/console"
)

func newServeCmd(opts *options) *cobra.Command {
	var withBrowser bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console, the capturing proxy and scheduled exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			c, err := collector.New(*cfg, collector.WithLogger(logger))
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			c.Start(ctx)

			con, err := console.New(c, console.WithLogger(logger))
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return con.ListenAndServe(ctx) })
			g.Go(func() error { return c.AutoExport(ctx) })
			if cfg.Proxy.Target != "" {
				g.Go(func() error { return serveProxy(ctx, c, cfg.Proxy, logger) })
			}
			if withBrowser && len(cfg.Browser.Pages) > 0 {
				g.Go(func() error {
					return browsercap.New(c, cfg.Browser, logger).Run(ctx)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withBrowser, "browser", false, "also open browser.pages with capture")
	return cmd
}

func serveProxy(ctx context.Context, c *collector.Collector, cfg collector.ProxyConfig, logger *slog.Logger) error {
	rp, err := c.ReverseProxy(cfg.Target)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rp,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("proxy: listening", "addr", cfg.Addr, "target", cfg.Target)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newBrowseCmd(opts *options) *cobra.Command {
	var headful, stealth bool
	cmd := &cobra.Command{
		Use:   "browse [url...]",
		Short: "Open pages in Chrome and capture their GraphQL traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Browser.Pages = args
			}
			if headful {
				off := false
				cfg.Browser.Headless = &off
			}
			if stealth {
				cfg.Browser.Stealth = true
			}
			if len(cfg.Browser.Pages) == 0 {
				return errors.New("no pages to open: pass URLs or set browser.pages")
			}

			c, err := collector.New(*cfg, collector.WithLogger(logger))
			if err != nil {
				return err
			}
			defer c.Close()
			c.Start(cmd.Context())

			return browsercap.New(c, cfg.Browser, logger).Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	cmd.Flags().BoolVar(&stealth, "stealth", false, "apply stealth evasions")
	return cmd
}

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the schemawatch tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCollector(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			srv := mcp.NewServer(&mcp.Implementation{Name: "schemawatch", Version: version}, nil)
			c.RegisterMCP(srv)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

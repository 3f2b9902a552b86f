package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ha1tch/qconsole/pkg/server"
	"github.com/ha1tch/qconsole/pkg/version"
)

// shutdownTimeout bounds the wait for in-flight requests on shutdown.
const shutdownTimeout = 30 * time.Second

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		host     string
		port     int
		watch    bool
		strict   bool
		noBanner bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		Long: `Run the console HTTP server.

Every operation is a POST of a JSON body to "/" naming the operation in its
"function" field. Documents are rendered with GET /?function=documentGenerate.
GET /health and GET /metrics serve liveness and Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("strict") {
				cfg.Server.StrictOperations = strict
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, appOptions{watch: watch, logOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(server.FromConfig(cfg), a.dispatcher, a.logger)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !noBanner {
				printBanner(out, srv.Addr(), a)
			}

			<-ctx.Done()
			a.logger.System().Info("shutdown signal received")
			fmt.Fprintln(out, "\nShutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config: 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config: 8080)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch the library folder for changes")
	cmd.Flags().BoolVar(&strict, "strict", false, "Answer unknown operations with an error envelope")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "Suppress startup banner")

	return cmd
}

func printBanner(out io.Writer, addr string, a *app) {
	fmt.Fprintf(out, "qconsole server started (version %s)\n", version.Version)
	fmt.Fprintf(out, "  Listening: http://%s/\n", addr)
	fmt.Fprintf(out, "  Backend: %s (dialect %s)\n", a.cfg.Backend.Driver, a.exec.Dialect().Name())
	if a.cfg.Library.Enabled() {
		fmt.Fprintf(out, "  Library: %s (%s)\n", a.cfg.Library.Folder, a.cfg.Library.Kind)
	} else {
		fmt.Fprintln(out, "  Library: disabled (views unavailable)")
	}
	fmt.Fprintf(out, "  Page ceiling: %d rows\n", a.cfg.Query.PageCeiling)
}

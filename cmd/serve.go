package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/identity"
	"github.com/sells-group/trackd/internal/ingest"
	"github.com/sells-group/trackd/internal/monitoring"
	transporthttp "github.com/sells-group/trackd/internal/transport/http"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracking server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		monitoring.InitMetrics()

		resolver := identity.NewResolver(st)
		var queue *identity.Queue
		if cfg.Resolver.Mode != "sync" {
			queue = identity.NewQueue(resolver, identity.QueueConfig{
				Size:        cfg.Resolver.QueueSize,
				Workers:     cfg.Resolver.Workers,
				MaxAttempts: cfg.Resolver.MaxAttempts,
				Backoff:     time.Duration(cfg.Resolver.BackoffMS) * time.Millisecond,
			})
			queue.Start(ctx)
			defer queue.Close()
		}

		svc := ingest.New(st, resolver, queue)
		server := transporthttp.NewServer(st, svc, resolver)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           transporthttp.NewRouter(server, cfg.Server),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown failed", zap.Error(err))
			}
		}()

		zap.L().Info("tracking server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/internal/logger"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Service: "authcore",
		Version: version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()

	engine, err := buildEngine(cfg, be, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := httpapi.Options{
		Logger:     log,
		TrustProxy: cfg.Server.TrustProxy,
		AdminToken: cfg.Server.AdminToken,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.NewCollector(engine).Handler()
	}
	if cfg.Env == "dev" {
		opts.Deliver = devDelivery(log)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(engine, opts),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	return serveUntilDone(ctx, srv, cfg, log)
}

func serveUntilDone(ctx context.Context, srv *http.Server, cfg *config.Config, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// devDelivery prints codes to the log so flows can be driven by hand.
func devDelivery(log *zap.Logger) httpapi.DeliverFunc {
	return func(_ context.Context, c *authcore.IssuedCode) error {
		log.Info("one-time code",
			zap.String("email", c.Email),
			zap.String("kind", string(c.Kind)),
			zap.String("code", c.Code),
		)
		return nil
	}
}

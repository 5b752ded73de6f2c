package main

import (
	"context"
	"errors"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/adapters/auth/token"
	"github.com/vncsmyrnk/tally/internal/adapters/handler/http"
	"github.com/vncsmyrnk/tally/internal/app"
	"github.com/vncsmyrnk/tally/internal/config"
)

func main() {
	cfg, err := config.Load("server", os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tally, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start ledger")
	}
	defer tally.Close()

	handler := http.NewHandler(http.RouterConfig{
		Service:  tally.Tallying,
		Verifier: token.NewVerifier(cfg.JWTSecret),
		AdminKey: cfg.AdminKey,
		Log:      log,
	})
	server := &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.SweepInterval > 0 {
		go tally.Sweeper.Start(ctx, cfg.SweepInterval)
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}

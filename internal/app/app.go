package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/you/otpgate/internal/config"
	"github.com/you/otpgate/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Run serves until ctx is cancelled, then stops the HTTP server and the scheduler
// and closes the stores.
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	zlog := logger
	ctx = zlog.WithContext(ctx)

	for _, w := range cfg.Warnings() {
		zlog.Warn().Msg(w)
	}

	gin.SetMode(cfg.GinMode)

	c, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		zlog.Info().Msg("closing stores")
		if err := c.Close(); err != nil {
			zlog.Err(err).Msg("error while closing stores")
		}
	}()

	cron, err := scheduler.New(ctx)
	if err != nil {
		return err
	}
	if _, err := scheduler.RegisterSweep(ctx, cron, c.OTPSvc, cfg.OTPSweepInterval); err != nil {
		_ = cron.Shutdown()
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("otp server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		_ = cron.Shutdown()
		return err
	case <-ctx.Done():
	}

	zlog.Info().Msg("starting application shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Err(err).Msg("error while shutting down the http server")
	}

	zlog.Info().Msg("shutting down cron scheduler")
	if err := cron.Shutdown(); err != nil {
		zlog.Err(err).Msg("error while shutting down the cron scheduler")
	}
	return nil
}

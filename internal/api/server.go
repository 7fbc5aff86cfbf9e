package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Serve listens on the configured address until ctx is done or the process
// receives SIGINT or SIGTERM, then shuts down gracefully.
func (app *Application) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", app.Config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", app.Config.Addr, err)
	}
	return app.serve(ctx, ln)
}

func (app *Application) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           app.Handler(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       seconds(app.Config.ReadTimeoutSeconds, 30),
		WriteTimeout:      seconds(app.Config.WriteTimeoutSeconds, 150),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.log().Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	app.log().Info("starting server", zap.String("addr", ln.Addr().String()))

	err := srv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}

	app.log().Info("stopped server", zap.String("addr", ln.Addr().String()))
	return nil
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

package devserver

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/B4xAbhishek/aqua-ai-answers/internal/config"
	"github.com/B4xAbhishek/aqua-ai-answers/internal/logger"
)

// Run starts the dev server and blocks until shutdown or error.
func Run() error {
	log := logger.New("aqua-devserver")

	cfg, err := config.LoadDevServer()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = log.Level(config.ParseLevel(cfg.LogLevel))

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("sqlite_path", cfg.SQLitePath).
		Str("jwt_issuer", cfg.JWTIssuer).
		Msg("Dev server starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := Open(cfg.SQLitePath)
	if err != nil {
		log.Error().Stack().Err(errors.Wrap(err, "open store")).Msg("Store unavailable")
		return err
	}
	defer func() { _ = store.Close() }()

	tokens, err := NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		return err
	}
	srv := New(store, tokens, WithLogger(log))
	defer srv.Close()

	server := newHTTPServer(ctx, cfg.HTTPAddr(), srv.Handler())
	errCh := serveHTTP(server, log)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		// Streams are hijacked and invisible to Shutdown; end them first.
		srv.Close()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "listen and serve")
		}
	}()
	return errCh
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relayd/internal/config"
	"relayd/internal/httpapi"
	"relayd/internal/relay"
)

// shutdownGrace is how long in-flight streams may finish after a stop signal.
const shutdownGrace = 5 * time.Second

func runServe(cmd *cobra.Command, fv *flagValues) error {
	cfg, err := resolveConfig(cmd, fv, os.Getenv)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogFormat, os.Stderr)
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, log, ln)
}

// serve runs the relay on ln until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger, ln net.Listener) error {
	svc := relay.New(newUpstream(cfg), relay.Options{ChunkSize: cfg.ChunkSizeBytes}, log.Level(zerologLevel(cfg.LogLevel)))

	// Streams get canceled only once the grace period is over.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetBaseContext(baseCtx)
	staticDir, err := config.ExpandHome(cfg.StaticDir)
	if err != nil {
		return err
	}
	if st, err := os.Stat(staticDir); err == nil && st.IsDir() {
		httpapi.SetStaticDir(staticDir)
	} else {
		log.Warn().Str("static_dir", cfg.StaticDir).Msg("static directory not found; front-end disabled")
		httpapi.SetStaticDir("")
	}
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	httpapi.SetCORSOptions(cfg.CORSEnabled, origins,
		[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
		[]string{"Content-Type", "X-Request-Id", "X-Log-Level"})

	srv := &http.Server{
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: generation streams are unbounded.
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("upstream", cfg.UpstreamURL).Msg("relayd listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err = srv.Shutdown(shCtx)
	cancelBase()
	if err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete; aborting open streams")
		_ = srv.Close()
	}
	return nil
}

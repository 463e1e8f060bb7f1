package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vango-go/vibevote/pkg/core/catalog"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/vibevote/pkg/gateway/server"
)

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	loadCatalog  func(path string) (*catalog.Catalog, error)
	newGateway   func(ctx context.Context, cfg config.Config, logger *slog.Logger) (gemini.Gateway, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig:  config.LoadFromEnv,
		loadCatalog: catalog.LoadFile,
		newGateway: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (gemini.Gateway, error) {
			opts := []gemini.Option{gemini.WithLogger(logger)}
			if cfg.GeminiBaseURL != "" {
				opts = append(opts, gemini.WithBaseURL(cfg.GeminiBaseURL))
			}
			return gemini.New(ctx, cfg.GeminiAPIKey, opts...)
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level != nil {
		level.Set(cfg.LogLevel)
	}
	for _, issue := range cfg.Issues() {
		logger.Warn("configuration issue", "issue", issue)
	}

	lineup := catalog.Default()
	if cfg.CatalogFile != "" && deps.loadCatalog != nil {
		lineup, err = deps.loadCatalog(cfg.CatalogFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}

	gw, err := deps.newGateway(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}

	srv := gatewayserver.New(cfg, logger, gatewayserver.Deps{
		Gateway: gw,
		Catalog: lineup,
		Metrics: metrics.New(metrics.DefaultNamespace),
	})
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go srv.RunJanitor(janitorCtx)

	logger.Info("starting vibevote", "addr", cfg.Addr, "artists", lineup.Len(), "gemini_configured", gw.Configured())

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining()
	srv.WarnLiveSessionsDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	// A failed graceful shutdown still releases relays, sessions and poll loops.
	shutdownErr := stopHTTP(shutdownCtx, logger, httpSrv)

	// Websockets are hijacked, so Shutdown does not wait for them.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.WaitLiveSessions(waitCtx) {
		srv.CancelLiveSessions()
	}

	stopJanitor()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer closeCancel()
	if err := srv.Close(closeCtx); err != nil {
		logger.Warn("sessions did not close cleanly", "error", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	logger.Info("vibevote stopped")
	return nil
}

// stopHTTP shuts httpSrv down and force-closes whatever is still open when
// ctx expires.
func stopHTTP(ctx context.Context, logger *slog.Logger, httpSrv *http.Server) error {
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http server did not drain in time", "error", err)
		_ = httpSrv.Close()
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, envFile string, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	// Existing environment wins over the file; a missing file is fine.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "vibevote: load %s: %v\n", envFile, err)
			return 1
		}
	}

	if err := runServer(ctx, logger, level, deps); err != nil {
		fmt.Fprintf(stderr, "vibevote: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, ".env", defaultServerDeps()))
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"courier/internal/client"
	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/storage"
	"courier/pkg/bootstrap"
	"courier/pkg/health"
	"courier/pkg/metrics"
)

func runCmd() *cobra.Command {
	var (
		stdin  bool
		source string
		level  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client until interrupted",
		Long:  "run starts the client, serves /health and /metrics on server.port and optionally forwards stdin lines as log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			var lines io.Reader
			if stdin {
				lines = os.Stdin
			}
			if err := app.Run(ctx, lines, source, level); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Client stopped with error", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdin, "stdin", false, "Forward each stdin line as a log event")
	cmd.Flags().StringVar(&source, "source", "stdin", "Log source for forwarded lines")
	cmd.Flags().StringVar(&level, "level", "info", "Log level for forwarded lines")
	return cmd
}

type App struct {
	*bootstrap.Base
	client *client.Client
	server *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing("courier"); err != nil {
		return err
	}

	metrics.RegisterClientMetrics()

	c, err := client.New(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	if err := c.Startup(ctx); err != nil {
		_ = c.Close(ctx)
		return err
	}
	a.client = c
	a.OnShutdown(c.Close)

	if a.Config.Server.Port > 0 {
		a.initHTTPServer()
	}
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewStorageChecker(a.client.Storage()))
	healthRegistry.Register(health.NewQueueChecker(a.client.Queue(), a.Config.Queue.MaxItems))
	if rs, ok := a.client.Storage().(*storage.Redis); ok {
		healthRegistry.Register(health.NewRedisChecker(rs.Client()))
	}
	if b := a.client.Breaker(); b != nil {
		healthRegistry.Register(health.NewBreakerChecker(b))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
	a.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})
}

// Run blocks until ctx is done. When lines is non-nil every line read from
// it is submitted as a log event; EOF does not stop the client.
func (a *App) Run(ctx context.Context, lines io.Reader, source, level string) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	if lines != nil {
		go a.forward(gCtx, lines, source, level)
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(gCtx))
	})

	return g.Wait()
}

func (a *App) forward(ctx context.Context, r io.Reader, source, level string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := scanner.Text(); line != "" {
			a.client.SubmitLog(ctx, source, line, level)
		}
	}
	if err := scanner.Err(); err != nil {
		a.Logger.WarnwCtx(ctx, "Stopped reading stdin", "error", err)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"courier/internal/collector"
	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/bootstrap"
	"courier/pkg/logging"
)

const serviceName = "collector-mock"

type App struct {
	*bootstrap.Base
	collector *collector.Server
	server    *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log.ForService(serviceName))}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(serviceName); err != nil {
		return err
	}

	var opts []collector.Option
	if a.Config.Tracing.Enabled {
		opts = append(opts, collector.WithTracing(serviceName))
	}
	a.collector = collector.New(a.Config.Collector, a.Logger, opts...)
	a.OnShutdown(func(context.Context) error {
		a.collector.Close()
		return nil
	})

	gin.SetMode(gin.ReleaseMode)
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Collector.Port),
		Handler: a.collector.Router(),
	}
	a.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Collector initialized",
		"port", a.Config.Collector.Port,
		"settings_version", a.Config.Collector.SettingsVersion,
		"api_keys", len(a.Config.Collector.APIKeys),
		"rate_limit", a.Config.Collector.RateLimit.Enabled,
	)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Collector.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if kafkaCfg := a.Config.Collector.Kafka; len(kafkaCfg.Brokers) > 0 && kafkaCfg.EventsTopic != "" {
		ingest := collector.NewKafkaIngest(a.collector, kafkaCfg, a.Config.Collector.KafkaGroupID, a.Logger)
		g.Go(func() error {
			return ingest.Run(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(gCtx))
	})

	return g.Wait()
}

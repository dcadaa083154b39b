// Package bootstrap holds the start-up and shutdown plumbing shared by the
// commands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/tracing"
)

// ShutdownFunc releases one resource.
type ShutdownFunc func(ctx context.Context) error

type Base struct {
	Config *config.Config
	Logger logger.Logger

	shutdown []ShutdownFunc
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// OnShutdown registers fn to run during Shutdown. Functions run in reverse
// registration order.
func (b *Base) OnShutdown(fn ShutdownFunc) {
	if fn != nil {
		b.shutdown = append(b.shutdown, fn)
	}
}

func (b *Base) InitTracing(serviceName string) error {
	tp, err := tracing.Init(b.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tp != nil {
		b.OnShutdown(tp.Shutdown)
	}
	return nil
}

func (b *Base) Shutdown(ctx context.Context) error {
	b.Logger.Info("Shutting down application...")

	var result *multierror.Error
	for i := len(b.shutdown) - 1; i >= 0; i-- {
		if err := b.shutdown[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	b.shutdown = nil

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}

package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/tracing"
)

// Run executes the registered plugins in priority order until one cancels.
// A plugin error or panic is logged and cancels the event; nothing is
// returned to the caller.
func Run(ctx context.Context, pc *PluginContext) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerPipeline, "pipeline.run")
	defer span.End()

	if pc.Event != nil && pc.Event.ReferenceID != "" {
		ctx = logging.WithReferenceID(ctx, pc.Event.ReferenceID)
	}

	for _, reg := range pc.Config.Plugins() {
		if pc.Cancelled {
			break
		}

		pluginCtx := logging.WithPlugin(ctx, reg.Name)
		start := time.Now()
		err := runPlugin(pluginCtx, reg.Plugin, pc)
		metrics.ObservePluginDuration(reg.Name, time.Since(start))

		if err != nil {
			metrics.IncPluginFailure(reg.Name)
			tracing.RecordError(span, err)
			pc.Log().ErrorwCtx(pluginCtx, "Error running plugin",
				"plugin", reg.Name,
				"error", err,
			)
			pc.Cancelled = true
		}
	}

	outcome := "accepted"
	if pc.Cancelled {
		outcome = "cancelled"
	}
	metrics.IncPipelineEvent(outcome)
	tracing.SetSpanAttributes(span, attribute.String("courier.outcome", outcome))
}

func runPlugin(ctx context.Context, p Plugin, pc *PluginContext) error {
	return apperrors.Guard(func() error {
		if err := p.Run(ctx, pc); err != nil {
			return apperrors.Wrap(err, apperrors.ErrPluginFailed)
		}
		return nil
	})
}

// Startup invokes every Starter plugin once. Failures are logged.
func Startup(ctx context.Context, lc *LifecycleContext) {
	for _, reg := range lc.Config.Plugins() {
		starter, ok := reg.Plugin.(Starter)
		if !ok {
			continue
		}
		if err := lifecycle(func() error { return starter.Startup(ctx, lc) }); err != nil {
			lc.Log().ErrorwCtx(logging.WithPlugin(ctx, reg.Name), "Error starting plugin",
				"plugin", reg.Name,
				"error", err,
			)
		}
	}
}

// Suspend invokes every Suspender plugin once. Failures are logged.
func Suspend(ctx context.Context, lc *LifecycleContext) {
	for _, reg := range lc.Config.Plugins() {
		suspender, ok := reg.Plugin.(Suspender)
		if !ok {
			continue
		}
		if err := lifecycle(func() error { return suspender.Suspend(ctx, lc) }); err != nil {
			lc.Log().ErrorwCtx(logging.WithPlugin(ctx, reg.Name), "Error suspending plugin",
				"plugin", reg.Name,
				"error", err,
			)
		}
	}
}

func lifecycle(fn func() error) error {
	return apperrors.Guard(fn)
}

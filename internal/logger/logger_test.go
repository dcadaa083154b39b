package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"courier/internal/config"
	"courier/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":    zapcore.DebugLevel,
		"trace":    zapcore.DebugLevel,
		"warn":     zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"fatal":    zapcore.ErrorLevel,
		"anything": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		log, err := New(config.LoggingConfig{Level: "info", Format: format})
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}

func TestContextFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core)).ForService("courier")

	ctx := logging.WithPlugin(context.Background(), "ErrorPlugin")
	log.InfowCtx(ctx, "Plugin ran", "duration_ms", 3)
	log.InfowCtx(logging.WithServiceName(ctx, "collector"), "Consumed")

	entries := recorded.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ErrorPlugin", fields["plugin"])
	assert.Equal(t, "courier", fields["service_name"])
	assert.EqualValues(t, 3, fields["duration_ms"])
	assert.Equal(t, "collector", entries[1].ContextMap()["service_name"])
}

func TestTraceFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	log.ErrorwCtx(trace.ContextWithSpanContext(context.Background(), sc), "Submit failed")
	log.ErrorwCtx(context.Background(), "No span")

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, sc.TraceID().String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, sc.SpanID().String(), entries[0].ContextMap()["span_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

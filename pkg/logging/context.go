package logging

import (
	"context"
)

type contextKey string

const (
	ReferenceIDKey contextKey = "reference_id"
	PluginKey      contextKey = "plugin"
	ServiceNameKey contextKey = "service_name"
	BatchIDKey     contextKey = "batch_id"
)

func WithReferenceID(ctx context.Context, referenceID string) context.Context {
	return context.WithValue(ctx, ReferenceIDKey, referenceID)
}

func WithPlugin(ctx context.Context, plugin string) context.Context {
	return context.WithValue(ctx, PluginKey, plugin)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func GetReferenceID(ctx context.Context) string {
	return getString(ctx, ReferenceIDKey)
}

func GetPlugin(ctx context.Context) string {
	return getString(ctx, PluginKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func GetBatchID(ctx context.Context) string {
	return getString(ctx, BatchIDKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if referenceID := GetReferenceID(ctx); referenceID != "" {
		fields = append(fields, string(ReferenceIDKey), referenceID)
	}

	if plugin := GetPlugin(ctx); plugin != "" {
		fields = append(fields, string(PluginKey), plugin)
	}

	if batchID := GetBatchID(ctx); batchID != "" {
		fields = append(fields, string(BatchIDKey), batchID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
